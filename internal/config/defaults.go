package config

import (
	"os"
	"time"
)

const (
	defaultWorkQueue          = "video_conversion"
	defaultStatusQueue        = "status_queue"
	defaultRetryExchange      = "video_retry_exchange"
	defaultDeadLetterExchange = "video_dlx"
	defaultDeadLetterQueue    = "video_conversion_failed"

	defaultFFmpegBinary    = "ffmpeg"
	defaultURLExpiry       = 24 * time.Hour
	defaultMaxFileSize     = 100 << 20 // 100 MiB
	defaultShutdownTimeout = 30 * time.Second
	defaultSMTPPort        = 587
)

// DefaultRetryDelays is the delay schedule used when none is configured
var DefaultRetryDelays = []time.Duration{5 * time.Second, 10 * time.Second, 30 * time.Second}

// applyEnvOverrides lets secrets come from the environment instead of the YAML file
func (c *Config) applyEnvOverrides() {
	overrides := map[string]*string{
		"RABBITMQ_PASSWORD":  &c.RabbitMQ.Password,
		"DATABASE_PASSWORD":  &c.Database.Password,
		"STORAGE_ACCESS_KEY": &c.Storage.AccessKey,
		"STORAGE_SECRET_KEY": &c.Storage.SecretKey,
		"SMTP_PASSWORD":      &c.Email.Password,
	}
	for key, target := range overrides {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*target = v
		}
	}
}

func (c *Config) applyDefaults() {
	t := &c.RabbitMQ.Topology
	setDefault(&t.WorkQueue, defaultWorkQueue)
	setDefault(&t.StatusQueue, defaultStatusQueue)
	setDefault(&t.RetryExchange, defaultRetryExchange)
	setDefault(&t.DeadLetterExchange, defaultDeadLetterExchange)
	setDefault(&t.DeadLetterQueue, defaultDeadLetterQueue)
	setDefault(&c.RabbitMQ.VHost, "/")

	if len(c.Retry.Delays) == 0 {
		c.Retry.Delays = append([]time.Duration(nil), DefaultRetryDelays...)
	}

	if c.Worker.Concurrency <= 0 {
		c.Worker.Concurrency = 1
	}
	if c.Worker.PrefetchCount <= 0 {
		c.Worker.PrefetchCount = 1
	}
	if c.Worker.ShutdownTimeout <= 0 {
		c.Worker.ShutdownTimeout = defaultShutdownTimeout
	}
	setDefault(&c.Worker.TempDir, os.TempDir())

	setDefault(&c.FFmpeg.Binary, defaultFFmpegBinary)

	if c.Storage.URLExpiry <= 0 {
		c.Storage.URLExpiry = defaultURLExpiry
	}
	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = defaultSMTPPort
	}
	if c.Upload.MaxFileSize <= 0 {
		c.Upload.MaxFileSize = defaultMaxFileSize
	}
	setDefault(&c.StatusStore.Driver, StoreDriverMemory)
}

func setDefault(target *string, value string) {
	if *target == "" {
		*target = value
	}
}
