package config

import (
	"time"

	"github.com/cuongbtq/media-conversor/internal/notify"
	"github.com/cuongbtq/media-conversor/internal/pipeline"
	"github.com/cuongbtq/media-conversor/shared/logger"
	"github.com/cuongbtq/media-conversor/shared/objectstore"
	"github.com/cuongbtq/media-conversor/shared/postgresql"
	"github.com/cuongbtq/media-conversor/shared/rabbitmq"
)

// LoggerConfig maps the logging section to the logger package
func (c *LoggingConfig) LoggerConfig() *logger.Config {
	return &logger.Config{
		Level:        c.Level,
		Format:       c.Format,
		Output:       c.Output,
		EnableSource: c.EnableCaller,
		TimeFormat:   time.RFC3339,
	}
}

// ClientConfig maps the rabbitmq section to the broker client
func (c *RabbitMQConfig) ClientConfig() *rabbitmq.Config {
	return &rabbitmq.Config{
		Host:              c.Host,
		Port:              c.Port,
		User:              c.User,
		Password:          c.Password,
		VHost:             c.VHost,
		RetryAttempts:     c.Connection.RetryAttempts,
		RetryInterval:     c.Connection.RetryInterval,
		Heartbeat:         c.Connection.Heartbeat,
		ConnectionTimeout: c.Connection.ConnectionTimeout,
		PublisherConfirms: c.Publish.Confirms,
		PublishTimeout:    c.Publish.Timeout,
	}
}

// ClientConfig maps the database section to the PostgreSQL client
func (c *DatabaseConfig) ClientConfig() *postgresql.Config {
	return &postgresql.Config{
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		Password:        c.Password,
		Database:        c.Database,
		SSLMode:         c.SSLMode,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
	}
}

// ClientConfig maps the storage section to the object store client
func (c *StorageConfig) ClientConfig() *objectstore.Config {
	return &objectstore.Config{
		Endpoint:     c.Endpoint,
		AccessKey:    c.AccessKey,
		SecretKey:    c.SecretKey,
		UseSSL:       c.UseSSL,
		Region:       c.Region,
		UploadBucket: c.UploadBucket,
		OutputBucket: c.OutputBucket,
		URLExpiry:    c.URLExpiry,
	}
}

// NotifyConfig maps the email section to the notifier
func (c *EmailConfig) NotifyConfig() notify.Config {
	return notify.Config{
		SMTPHost: c.SMTPHost,
		SMTPPort: c.SMTPPort,
		Username: c.Username,
		Password: c.Password,
		From:     c.From,
	}
}

// Topology returns the broker objects shared by the producer, workers and tooling
func (c *Config) Topology() pipeline.Topology {
	t := c.RabbitMQ.Topology
	return pipeline.Topology{
		WorkQueue:          t.WorkQueue,
		StatusQueue:        t.StatusQueue,
		RetryExchange:      t.RetryExchange,
		DeadLetterExchange: t.DeadLetterExchange,
		DeadLetterQueue:    t.DeadLetterQueue,
		RetryDelays:        append([]time.Duration(nil), c.Retry.Delays...),
	}
}
