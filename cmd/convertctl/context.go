package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/cuongbtq/media-conversor/internal/config"
	"github.com/cuongbtq/media-conversor/internal/domain"
	"github.com/cuongbtq/media-conversor/internal/pipeline"
	"github.com/cuongbtq/media-conversor/shared/logger"
	"github.com/cuongbtq/media-conversor/shared/rabbitmq"
)

const defaultConfigPath = "configs/convertctl/config.yaml"

type enqueuer interface {
	Enqueue(ctx context.Context, req domain.ConversionRequest) (string, error)
}

type deadLetterQueue interface {
	List(limit int) ([]pipeline.DeadLetter, error)
	Requeue(ctx context.Context, limit int) (int, error)
	Purge() (int, error)
}

// session is one broker connection shared by a single command
type session struct {
	topology    pipeline.Topology
	declare     func() error
	producer    enqueuer
	deadLetters deadLetterQueue
	close       func()
}

type connectFunc func(cfg *config.Config) (*session, error)

type commandContext struct {
	configFlag *string
	connect    connectFunc

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, connect connectFunc) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		connect:    connect,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		path := strings.TrimSpace(*c.configFlag)
		if path == "" {
			path = os.Getenv("CONVERTCTL_CONFIG_PATH")
		}
		if path == "" {
			path = defaultConfigPath
		}

		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = fmt.Errorf("failed to load config: %w", err)
			return
		}
		if err := cfg.ValidateCLIConfig(); err != nil {
			c.configErr = fmt.Errorf("invalid config: %w", err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withSession connects to the broker, declares the topology and runs fn
func (c *commandContext) withSession(fn func(*session) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}

	s, err := c.connect(cfg)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.declare(); err != nil {
		if errors.Is(err, domain.ErrTopologyConflict) {
			return fmt.Errorf("%w; an existing broker object was declared with different arguments", err)
		}
		return err
	}
	return fn(s)
}

// connectBroker opens the real RabbitMQ session used outside tests
func connectBroker(cfg *config.Config) (*session, error) {
	logCfg := cfg.Logging.LoggerConfig()
	if logCfg.Output == "" || logCfg.Output == "stdout" {
		// stdout carries command output
		logCfg.Output = "stderr"
	}
	appLogger, err := logger.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	rabbitClient, err := rabbitmq.NewClient(cfg.RabbitMQ.ClientConfig(), appLogger.Logger)
	if err != nil {
		appLogger.Close()
		return nil, fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	reader, err := rabbitClient.OpenChannel()
	if err != nil {
		rabbitClient.Close()
		appLogger.Close()
		return nil, err
	}

	topology := cfg.Topology()
	status := pipeline.NewStatusChannel(rabbitClient, topology.StatusQueue, appLogger.Logger)

	return &session{
		topology: topology,
		declare: func() error {
			return pipeline.DeclareTopology(rabbitClient.GetChannel(), topology, appLogger.Logger)
		},
		producer:    pipeline.NewProducer(rabbitClient, status, topology.WorkQueue, appLogger.Logger),
		deadLetters: pipeline.NewDeadLetters(rabbitClient, reader, status, topology, appLogger.Logger),
		close: func() {
			rabbitClient.Close()
			appLogger.Close()
		},
	}, nil
}
