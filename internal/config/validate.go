package config

import "fmt"

// ValidateAPIConfig checks the settings the API service needs
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	if err := c.validateStorage(); err != nil {
		return err
	}

	switch c.StatusStore.Driver {
	case StoreDriverMemory:
	case StoreDriverPostgres:
		if err := c.validateDatabase(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown status_store driver: %q", c.StatusStore.Driver)
	}

	return nil
}

// ValidateWorkerConfig checks the settings the worker service needs
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	if err := c.validateRetry(); err != nil {
		return err
	}

	if err := c.validateStorage(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.PrefetchCount != 1 {
		return fmt.Errorf("worker prefetch_count must be 1 (one delivery in flight per worker), got %d", c.Worker.PrefetchCount)
	}

	if c.Worker.JobTimeout < 0 {
		return fmt.Errorf("worker job_timeout must not be negative")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.FFmpeg.Binary == "" {
		return fmt.Errorf("ffmpeg binary is required")
	}

	return nil
}

// ValidateCLIConfig checks the settings the operator CLI needs
func (c *Config) ValidateCLIConfig() error {
	if err := c.validateRabbitMQ(); err != nil {
		return err
	}
	return c.validateRetry()
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	t := c.RabbitMQ.Topology
	names := map[string]string{
		"work_queue":           t.WorkQueue,
		"status_queue":         t.StatusQueue,
		"retry_exchange":       t.RetryExchange,
		"dead_letter_exchange": t.DeadLetterExchange,
		"dead_letter_queue":    t.DeadLetterQueue,
	}
	for field, name := range names {
		if name == "" {
			return fmt.Errorf("rabbitmq topology %s is required", field)
		}
	}

	if t.WorkQueue == t.DeadLetterQueue || t.WorkQueue == t.StatusQueue || t.StatusQueue == t.DeadLetterQueue {
		return fmt.Errorf("rabbitmq work, status and dead-letter queues must be distinct")
	}

	return nil
}

func (c *Config) validateRetry() error {
	if len(c.Retry.Delays) == 0 {
		return fmt.Errorf("retry delays must not be empty")
	}

	for i, d := range c.Retry.Delays {
		if d <= 0 {
			return fmt.Errorf("retry delay %d must be greater than 0", i)
		}
	}

	if c.Retry.MaxAttempts < 0 || c.Retry.Attempts() > len(c.Retry.Delays) {
		return fmt.Errorf("retry max_attempts must be between 1 and %d (one delay per retry)", len(c.Retry.Delays))
	}

	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.Endpoint == "" {
		return fmt.Errorf("storage endpoint is required")
	}

	if c.Storage.UploadBucket == "" || c.Storage.OutputBucket == "" {
		return fmt.Errorf("storage upload_bucket and output_bucket are required")
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}
