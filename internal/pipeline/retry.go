package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/media-conversor/internal/domain"
)

// RetryRouter publishes failed envelopes to the delay queue of their attempt tier.
// The delay is enforced by the queue's message TTL; the router keeps no timers.
type RetryRouter struct {
	publisher Publisher
	exchange  string
	tiers     int
	logger    *slog.Logger
}

// NewRetryRouter creates a retry router over tiers delay queues bound to exchange
func NewRetryRouter(publisher Publisher, exchange string, tiers int, logger *slog.Logger) *RetryRouter {
	return &RetryRouter{
		publisher: publisher,
		exchange:  exchange,
		tiers:     tiers,
		logger:    logger,
	}
}

// ScheduleRetry publishes env to the delay queue selected by attemptIndex
func (r *RetryRouter) ScheduleRetry(ctx context.Context, env domain.Envelope, attemptIndex int) error {
	if attemptIndex < 0 || attemptIndex >= r.tiers {
		return fmt.Errorf("%w: index %d, %d tiers", domain.ErrNoRetryTier, attemptIndex, r.tiers)
	}

	msg, err := envelopeMessage(env)
	if err != nil {
		return err
	}

	key := RetryRoutingKey(attemptIndex)
	if err := r.publisher.Publish(ctx, r.exchange, key, msg); err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}

	r.logger.Info("Job retry scheduled",
		slog.String("job_id", env.JobID),
		slog.Int("attempts", env.Attempts),
		slog.String("routing_key", key),
	)

	return nil
}
