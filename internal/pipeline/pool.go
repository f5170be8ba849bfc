package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// PoolConfig holds worker pool configuration
type PoolConfig struct {
	Logger      *slog.Logger
	Consumer    Consumer
	Queue       string
	Prefetch    int
	Concurrency int
	WorkerID    string
	// Worker is the template for every worker; Source and WorkerID are set per instance
	Worker WorkerConfig
}

// Pool runs independent workers, each with its own consumer and prefetch
type Pool struct {
	logger  *slog.Logger
	workers []*Worker
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	errs    chan error
}

// NewPool creates concurrency workers consuming the same queue
func NewPool(cfg *PoolConfig) *Pool {
	p := &Pool{
		logger: cfg.Logger,
		errs:   make(chan error, cfg.Concurrency),
	}

	for i := 0; i < cfg.Concurrency; i++ {
		workerCfg := cfg.Worker
		workerCfg.WorkerID = fmt.Sprintf("%s-%d", cfg.WorkerID, i)
		workerCfg.Source = NewQueueSource(cfg.Consumer, cfg.Queue, workerCfg.WorkerID, cfg.Prefetch)
		p.workers = append(p.workers, NewWorker(&workerCfg))
	}

	return p
}

// Start spawns one goroutine per worker
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	p.logger.Info("Spawning worker pool",
		slog.Int("concurrency", len(p.workers)),
	)

	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			if err := w.Run(ctx); err != nil {
				p.logger.Error("Worker exited with error",
					slog.String("worker_id", w.workerID),
					slog.Any("error", err),
				)
				p.errs <- fmt.Errorf("worker %s: %w", w.workerID, err)
			}
		}(w)
	}

	p.logger.Info("Worker pool spawned successfully",
		slog.Int("worker_count", len(p.workers)),
	)
}

// Errors delivers the error of every worker that stopped on its own
func (p *Pool) Errors() <-chan error {
	return p.errs
}

// Stop stops intake and waits up to timeout for in-flight deliveries to finish
func (p *Pool) Stop(timeout time.Duration) error {
	p.logger.Info("Stopping worker pool...")
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Worker pool stopped")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("worker pool did not stop within %s", timeout)
	}
}
