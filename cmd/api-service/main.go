package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuongbtq/media-conversor/internal/api/handler"
	"github.com/cuongbtq/media-conversor/internal/api/router"
	"github.com/cuongbtq/media-conversor/internal/config"
	"github.com/cuongbtq/media-conversor/internal/pipeline"
	"github.com/cuongbtq/media-conversor/internal/tracker"
	"github.com/cuongbtq/media-conversor/shared/logger"
	"github.com/cuongbtq/media-conversor/shared/objectstore"
	"github.com/cuongbtq/media-conversor/shared/postgresql"
	"github.com/cuongbtq/media-conversor/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

// trackerPrefetch bounds unacked status records held by the tracker
const trackerPrefetch = 32

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
	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := logger.New(cfg.Logging.LoggerConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize object store
	store, err := objectstore.NewClient(cfg.Storage.ClientConfig(), appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize object store: %w", err)
	}
	if err := store.EnsureBuckets(ctx); err != nil {
		return fmt.Errorf("failed to prepare buckets: %w", err)
	}

	// Initialize status store
	statusStore, closeStore, err := initStatusStore(ctx, cfg, appLogger.Logger)
	if err != nil {
		return err
	}
	defer closeStore()

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

	// Status tracker and producer
	statusTracker := tracker.New(&tracker.Config{
		Logger: appLogger.Logger,
		Source: pipeline.NewQueueSource(rabbitClient, topology.StatusQueue, cfg.App.Name+"-status-tracker", trackerPrefetch),
		Store:  statusStore,
	})

	status := pipeline.NewStatusChannel(rabbitClient, topology.StatusQueue, appLogger.Logger)
	// queued is stored before the job id is returned, so an immediate poll finds it
	status.RecordLocally(statusTracker)
	producer := pipeline.NewProducer(rabbitClient, status, topology.WorkQueue, appLogger.Logger)

	errChan := make(chan error, 2)
	go func() {
		if err := statusTracker.Run(ctx); err != nil {
			errChan <- fmt.Errorf("status tracker stopped: %w", err)
		}
	}()

	// Initialize router
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	r := router.SetupRouter(&handler.Dependencies{
		Logger:          appLogger.Logger,
		Enqueuer:        producer,
		Statuses:        statusTracker,
		Uploads:         store,
		MaxFileSize:     cfg.Upload.MaxFileSize,
		BrokerConnected: rabbitClient.IsConnected,
	})

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server failed: %w", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("API service error", slog.Any("error", err))
		runErr = err
	case amqpErr := <-rabbitClient.NotifyClosed():
		appLogger.Error("RabbitMQ connection lost", slog.Any("error", amqpErr))
		runErr = fmt.Errorf("rabbitmq connection lost: %v", amqpErr)
	}

	appLogger.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return runErr
}

// initStatusStore builds the configured status store and its cleanup
func initStatusStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (tracker.Store, func(), error) {
	if cfg.StatusStore.Driver != config.StoreDriverPostgres {
		logger.Info("Using in-memory status store")
		return tracker.NewMemoryStore(), func() {}, nil
	}

	dbClient, err := postgresql.NewClient(cfg.Database.ClientConfig(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	store := tracker.NewPostgresStore(dbClient)
	if err := store.EnsureSchema(ctx); err != nil {
		dbClient.Close()
		return nil, nil, err
	}

	logger.Info("Database connection established")
	return store, func() { dbClient.Close() }, nil
}
