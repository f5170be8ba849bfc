package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/cuongbtq/media-conversor/internal/domain"
	"github.com/google/uuid"
)

// Producer assigns job identities and places envelopes on the work queue
type Producer struct {
	publisher Publisher
	status    *StatusChannel
	workQueue string
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// NewProducer creates a new producer
func NewProducer(publisher Publisher, status *StatusChannel, workQueue string, logger *slog.Logger) *Producer {
	return &Producer{
		publisher: publisher,
		status:    status,
		workQueue: workQueue,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Enqueue publishes the queued status and then the persistent envelope, returning the job id.
// It fails with ErrQueueUnavailable when the broker cannot take the envelope; it never retries.
func (p *Producer) Enqueue(ctx context.Context, req domain.ConversionRequest) (string, error) {
	if !p.publisher.IsConnected() {
		return "", fmt.Errorf("%w: broker connection is closed", domain.ErrQueueUnavailable)
	}

	env := domain.Envelope{
		JobID:        p.newID(),
		InputRef:     req.InputRef,
		OutputFormat: req.OutputFormat,
		Attempts:     0,
		SubmittedAt:  p.now().UTC(),
		Metadata:     maps.Clone(req.Metadata),
	}

	msg, err := envelopeMessage(env)
	if err != nil {
		return "", err
	}

	// queued status happens-before the envelope so pollers never see an unknown job
	p.status.Publish(ctx, env, domain.StatusQueued, "", nil)

	if err := p.publisher.Publish(ctx, "", p.workQueue, msg); err != nil {
		p.logger.Error("Failed to enqueue conversion job",
			slog.String("job_id", env.JobID),
			slog.Any("error", err),
		)
		return "", fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}

	p.logger.Info("Conversion job enqueued",
		slog.String("job_id", env.JobID),
		slog.String("input_ref", env.InputRef),
		slog.String("output_format", string(env.OutputFormat)),
	)

	return env.JobID, nil
}
