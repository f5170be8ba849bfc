package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuongbtq/media-conversor/internal/config"
	"github.com/cuongbtq/media-conversor/internal/convert"
	"github.com/cuongbtq/media-conversor/internal/notify"
	"github.com/cuongbtq/media-conversor/internal/pipeline"
	"github.com/cuongbtq/media-conversor/shared/logger"
	"github.com/cuongbtq/media-conversor/shared/objectstore"
	"github.com/cuongbtq/media-conversor/shared/rabbitmq"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := logger.New(cfg.Logging.LoggerConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.Int("concurrency", cfg.Worker.Concurrency),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Verify ffmpeg before taking any work
	ffmpeg := convert.NewFFmpeg(cfg.FFmpeg.Binary, appLogger.Logger)
	if err := ffmpeg.Check(ctx); err != nil {
		return err
	}

	// Initialize object store
	store, err := objectstore.NewClient(cfg.Storage.ClientConfig(), appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize object store: %w", err)
	}
	if err := store.EnsureBuckets(ctx); err != nil {
		return fmt.Errorf("failed to prepare buckets: %w", err)
	}

	// Initialize RabbitMQ client
	rabbitClient, err := rabbitmq.NewClient(cfg.RabbitMQ.ClientConfig(), appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	topology := cfg.Topology()
	if err := pipeline.DeclareTopology(rabbitClient.GetChannel(), topology, appLogger.Logger); err != nil {
		return fmt.Errorf("failed to declare broker topology: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	// Wire the pipeline
	status := pipeline.NewStatusChannel(rabbitClient, topology.StatusQueue, appLogger.Logger)
	processor := convert.NewProcessor(&convert.ProcessorConfig{
		Logger:    appLogger.Logger,
		Storage:   store,
		Converter: ffmpeg,
		Notifier:  notify.New(cfg.Email.NotifyConfig()),
		TempDir:   cfg.Worker.TempDir,
	})

	hostname, _ := os.Hostname()
	pool := pipeline.NewPool(&pipeline.PoolConfig{
		Logger:      appLogger.Logger,
		Consumer:    rabbitClient,
		Queue:       topology.WorkQueue,
		Prefetch:    cfg.Worker.PrefetchCount,
		Concurrency: cfg.Worker.Concurrency,
		WorkerID:    fmt.Sprintf("%s-%s-%d", cfg.App.Name, hostname, os.Getpid()),
		Worker: pipeline.WorkerConfig{
			Logger:      appLogger.Logger,
			Handler:     processor,
			Retry:       pipeline.NewRetryRouter(rabbitClient, topology.RetryExchange, len(topology.RetryDelays), appLogger.Logger),
			DeadLetters: pipeline.NewDeadLetters(rabbitClient, nil, status, topology, appLogger.Logger),
			Status:      status,
			MaxAttempts: cfg.Retry.Attempts(),
			JobTimeout:  cfg.Worker.JobTimeout,
		},
	})
	pool.Start(ctx)

	appLogger.Info("Worker service started successfully",
		slog.String("queue", topology.WorkQueue),
		slog.Int("max_attempts", cfg.Retry.Attempts()),
	)

	// Wait for interrupt signal, a worker failure or a lost broker connection
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-pool.Errors():
		appLogger.Error("Worker error", slog.Any("error", err))
		runErr = err
	case amqpErr := <-rabbitClient.NotifyClosed():
		appLogger.Error("RabbitMQ connection lost", slog.Any("error", amqpErr))
		runErr = fmt.Errorf("rabbitmq connection lost: %v", amqpErr)
	}

	// Stop intake; in-flight deliveries finish within the shutdown timeout
	if err := pool.Stop(cfg.Worker.ShutdownTimeout); err != nil {
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit", slog.Any("error", err))
	}

	appLogger.Info("Worker service shutdown complete")
	return runErr
}
