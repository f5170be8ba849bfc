package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cuongbtq/media-conversor/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler is the conversion collaborator invoked once per attempt.
// The returned map is published with the completed status.
type Handler interface {
	Handle(ctx context.Context, env domain.Envelope) (map[string]string, error)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, env domain.Envelope) (map[string]string, error)

// Handle calls f
func (f HandlerFunc) Handle(ctx context.Context, env domain.Envelope) (map[string]string, error) {
	return f(ctx, env)
}

// Outcome is the final state of one delivery
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeRetryScheduled
	OutcomeDeadLettered
	// OutcomeRejected is a malformed delivery rejected without requeue
	OutcomeRejected
	// OutcomeRequeued is a delivery returned to the work queue because the retry publish failed
	OutcomeRequeued
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeRetryScheduled:
		return "retry_scheduled"
	case OutcomeDeadLettered:
		return "dead_lettered"
	case OutcomeRejected:
		return "rejected"
	case OutcomeRequeued:
		return "requeued"
	default:
		return "unknown"
	}
}

// WorkerConfig holds worker dependencies
type WorkerConfig struct {
	Logger      *slog.Logger
	Source      DeliverySource
	Handler     Handler
	Retry       *RetryRouter
	DeadLetters *DeadLetters
	Status      *StatusChannel
	MaxAttempts int
	WorkerID    string
	// JobTimeout bounds one handler call; zero means no timeout
	JobTimeout time.Duration
}

// Worker processes one delivery at a time
type Worker struct {
	logger      *slog.Logger
	source      DeliverySource
	handler     Handler
	retry       *RetryRouter
	deadLetters *DeadLetters
	status      *StatusChannel
	maxAttempts int
	workerID    string
	jobTimeout  time.Duration
}

// NewWorker creates a new worker instance
func NewWorker(cfg *WorkerConfig) *Worker {
	return &Worker{
		logger:      cfg.Logger.With(slog.String("worker_id", cfg.WorkerID)),
		source:      cfg.Source,
		handler:     cfg.Handler,
		retry:       cfg.Retry,
		deadLetters: cfg.DeadLetters,
		status:      cfg.Status,
		maxAttempts: cfg.MaxAttempts,
		workerID:    cfg.WorkerID,
		jobTimeout:  cfg.JobTimeout,
	}
}

// Run pulls deliveries until ctx is done or the broker closes the stream.
// A delivery that was already received is always finished, even after ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	stream, err := w.source.Deliveries(ctx)
	if err != nil {
		return err
	}

	w.logger.Info("Worker started")

	for {
		delivery, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("Worker stopping - context canceled")
				return nil
			}
			if errors.Is(err, domain.ErrDeliveriesClosed) {
				w.logger.Warn("Worker stopping - delivery stream closed")
			}
			return err
		}

		w.handleDelivery(ctx, delivery)
	}
}

// handleDelivery runs one delivery through RECEIVED -> PROCESSING -> terminal state.
// Every publish for the delivery happens before it is acked.
func (w *Worker) handleDelivery(ctx context.Context, delivery amqp.Delivery) Outcome {
	env, err := domain.DecodeEnvelope(delivery.Body)
	if err != nil {
		w.logger.Error("Rejecting malformed delivery",
			slog.String("message_id", delivery.MessageId),
			slog.Uint64("delivery_tag", delivery.DeliveryTag),
			slog.Any("error", err),
		)
		// the work queue dead-letters rejected deliveries
		w.nack(delivery, env.JobID, false)
		return OutcomeRejected
	}

	// shutdown must not abandon an accepted delivery
	jobCtx := context.WithoutCancel(ctx)

	logger := w.logger.With(
		slog.String("job_id", env.JobID),
		slog.Int("attempts", env.Attempts),
	)
	logger.Info("Processing job",
		slog.String("input_ref", env.InputRef),
		slog.String("output_format", string(env.OutputFormat)),
	)

	w.status.Publish(jobCtx, env, domain.StatusProcessing, "", nil)

	started := time.Now()
	result, handleErr := w.invoke(jobCtx, env)
	if handleErr == nil {
		w.status.Publish(jobCtx, env, domain.StatusCompleted, "", result)
		w.ack(delivery, env.JobID)
		logger.Info("Job completed successfully",
			slog.Duration("duration", time.Since(started)),
		)
		return OutcomeSucceeded
	}

	next := env.WithFailure(handleErr)
	logger.Warn("Job attempt failed",
		slog.Duration("duration", time.Since(started)),
		slog.Any("error", handleErr),
	)

	if next.Attempts <= w.maxAttempts {
		if err := w.retry.ScheduleRetry(jobCtx, next, next.Attempts-1); err != nil {
			logger.Error("Failed to schedule retry, requeueing delivery",
				slog.Any("error", err),
			)
			w.nack(delivery, env.JobID, true)
			return OutcomeRequeued
		}
		w.ack(delivery, env.JobID)
		return OutcomeRetryScheduled
	}

	routeErr := w.deadLetters.Route(jobCtx, next)
	w.status.Publish(jobCtx, next, domain.StatusFailed, handleErr.Error(), nil)
	if routeErr != nil {
		logger.Error("Failed to route job to dead-letter exchange, rejecting delivery",
			slog.Any("error", routeErr),
		)
		w.nack(delivery, env.JobID, false)
		return OutcomeDeadLettered
	}

	w.ack(delivery, env.JobID)
	logger.Error("Job failed permanently",
		slog.Any("error", errors.Join(domain.ErrRetryExhausted, handleErr)),
	)
	return OutcomeDeadLettered
}

func (w *Worker) invoke(ctx context.Context, env domain.Envelope) (map[string]string, error) {
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}
	return w.handler.Handle(ctx, env)
}

func (w *Worker) ack(delivery amqp.Delivery, jobID string) {
	if err := delivery.Ack(false); err != nil {
		w.logger.Error("Failed to ACK message",
			slog.String("job_id", jobID),
			slog.Uint64("delivery_tag", delivery.DeliveryTag),
			slog.Any("error", err),
		)
	}
}

func (w *Worker) nack(delivery amqp.Delivery, jobID string, requeue bool) {
	if err := delivery.Nack(false, requeue); err != nil {
		w.logger.Error("Failed to NACK message",
			slog.String("job_id", jobID),
			slog.Uint64("delivery_tag", delivery.DeliveryTag),
			slog.Bool("requeue", requeue),
			slog.Any("error", err),
		)
	}
}
