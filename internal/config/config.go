package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Status store drivers
const (
	StoreDriverMemory   = "memory"
	StoreDriverPostgres = "postgres"
)

// Config represents the complete application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	RabbitMQ    RabbitMQConfig    `yaml:"rabbitmq"`
	Retry       RetryConfig       `yaml:"retry"`
	Logging     LoggingConfig     `yaml:"logging"`
	App         AppConfig         `yaml:"app"`
	Worker      WorkerConfig      `yaml:"worker"`
	FFmpeg      FFmpegConfig      `yaml:"ffmpeg"`
	Storage     StorageConfig     `yaml:"storage"`
	Email       EmailConfig       `yaml:"email"`
	Upload      UploadConfig      `yaml:"upload"`
	StatusStore StatusStoreConfig `yaml:"status_store"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and topology configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Topology   TopologyConfig   `yaml:"topology"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// TopologyConfig names the durable broker objects of the pipeline
type TopologyConfig struct {
	WorkQueue          string `yaml:"work_queue"`
	StatusQueue        string `yaml:"status_queue"`
	RetryExchange      string `yaml:"retry_exchange"`
	DeadLetterExchange string `yaml:"dead_letter_exchange"`
	DeadLetterQueue    string `yaml:"dead_letter_queue"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish settings
type PublishConfig struct {
	Confirms bool          `yaml:"confirms"`
	Timeout  time.Duration `yaml:"timeout"`
}

// RetryConfig holds the per-attempt delay schedule
type RetryConfig struct {
	Delays      []time.Duration `yaml:"delays"`
	MaxAttempts int             `yaml:"max_attempts"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	PrefetchCount   int           `yaml:"prefetch_count"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	TempDir         string        `yaml:"temp_dir"`
}

// FFmpegConfig holds the transcoder binary location
type FFmpegConfig struct {
	Binary string `yaml:"binary"`
}

// StorageConfig holds object store configuration
type StorageConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	AccessKey    string        `yaml:"access_key"`
	SecretKey    string        `yaml:"secret_key"`
	UseSSL       bool          `yaml:"use_ssl"`
	Region       string        `yaml:"region"`
	UploadBucket string        `yaml:"upload_bucket"`
	OutputBucket string        `yaml:"output_bucket"`
	URLExpiry    time.Duration `yaml:"url_expiry"`
}

// EmailConfig holds SMTP settings for completion notifications
type EmailConfig struct {
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// UploadConfig holds limits for the upload endpoint
type UploadConfig struct {
	MaxFileSize int64 `yaml:"max_file_size"`
}

// StatusStoreConfig selects where status records are projected
type StatusStoreConfig struct {
	Driver string `yaml:"driver"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnvOverrides()
	config.applyDefaults()

	return &config, nil
}

// Attempts returns maxAttempts: the number of retries granted after the first attempt.
// It defaults to the length of the delay schedule.
func (r RetryConfig) Attempts() int {
	if r.MaxAttempts > 0 {
		return r.MaxAttempts
	}
	return len(r.Delays)
}
