package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/media-conversor/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// QueueReader is the subset of *amqp.Channel used to inspect the dead-letter queue
type QueueReader interface {
	Get(queue string, autoAck bool) (amqp.Delivery, bool, error)
	QueuePurge(name string, noWait bool) (int, error)
}

// DeadLetter is one entry of the dead-letter queue
type DeadLetter struct {
	Envelope domain.Envelope
	// Raw holds the body when it is not a valid envelope
	Raw []byte
	Err error
}

// DeadLetters routes exhausted envelopes to the dead-letter exchange and lets
// operators inspect, requeue and purge the dead-letter queue
type DeadLetters struct {
	publisher Publisher
	reader    QueueReader
	status    *StatusChannel
	topology  Topology
	logger    *slog.Logger
}

// NewDeadLetters creates the dead-letter router. reader may be nil for workers
// that only route.
func NewDeadLetters(publisher Publisher, reader QueueReader, status *StatusChannel, topology Topology, logger *slog.Logger) *DeadLetters {
	return &DeadLetters{
		publisher: publisher,
		reader:    reader,
		status:    status,
		topology:  topology,
		logger:    logger,
	}
}

// Route publishes the final envelope copy to the dead-letter exchange
func (d *DeadLetters) Route(ctx context.Context, env domain.Envelope) error {
	msg, err := envelopeMessage(env)
	if err != nil {
		return err
	}

	// same routing key the work queue uses when the broker dead-letters a rejected delivery
	if err := d.publisher.Publish(ctx, d.topology.DeadLetterExchange, d.topology.WorkQueue, msg); err != nil {
		return fmt.Errorf("failed to publish to dead-letter exchange: %w", err)
	}

	d.logger.Warn("Job moved to dead-letter queue",
		slog.String("job_id", env.JobID),
		slog.Int("attempts", env.Attempts),
		slog.String("last_error", env.LastError),
	)
	return nil
}

// List returns up to limit entries without removing them from the queue
func (d *DeadLetters) List(limit int) ([]DeadLetter, error) {
	deliveries, err := d.take(limit)
	defer d.release(deliveries)
	if err != nil {
		return nil, err
	}

	letters := make([]DeadLetter, 0, len(deliveries))
	for _, delivery := range deliveries {
		letters = append(letters, decodeDeadLetter(delivery))
	}
	return letters, nil
}

// Requeue moves up to limit envelopes back to the work queue with attempts reset.
// Each requeued job starts a new lifecycle with a fresh queued status.
// Entries that are not valid envelopes stay in the dead-letter queue.
func (d *DeadLetters) Requeue(ctx context.Context, limit int) (int, error) {
	deliveries, err := d.take(limit)
	if err != nil {
		d.release(deliveries)
		return 0, err
	}

	requeued := 0
	for i, delivery := range deliveries {
		letter := decodeDeadLetter(delivery)
		if letter.Err != nil {
			d.logger.Warn("Skipping malformed dead letter",
				slog.String("message_id", delivery.MessageId),
				slog.Any("error", letter.Err),
			)
			d.release(deliveries[i : i+1])
			continue
		}

		env := letter.Envelope
		env.Attempts = 0
		env.LastError = ""

		msg, err := envelopeMessage(env)
		if err == nil {
			d.status.Publish(ctx, env, domain.StatusQueued, "requeued from dead-letter queue", nil)
			err = d.publisher.Publish(ctx, "", d.topology.WorkQueue, msg)
		}
		if err != nil {
			d.release(deliveries[i:])
			return requeued, fmt.Errorf("failed to requeue job %s: %w", env.JobID, err)
		}

		if err := delivery.Ack(false); err != nil {
			d.release(deliveries[i+1:])
			return requeued, fmt.Errorf("failed to ack dead letter %s: %w", env.JobID, err)
		}

		d.logger.Info("Dead letter requeued",
			slog.String("job_id", env.JobID),
		)
		requeued++
	}

	return requeued, nil
}

// Purge drops every message in the dead-letter queue and returns how many were removed
func (d *DeadLetters) Purge() (int, error) {
	if d.reader == nil {
		return 0, errors.New("dead-letter queue reader is not configured")
	}

	count, err := d.reader.QueuePurge(d.topology.DeadLetterQueue, false)
	if err != nil {
		return 0, fmt.Errorf("failed to purge dead-letter queue: %w", err)
	}

	d.logger.Warn("Dead-letter queue purged",
		slog.String("queue", d.topology.DeadLetterQueue),
		slog.Int("messages", count),
	)
	return count, nil
}

// take gets up to limit deliveries without acking them; a non-positive limit reads until empty
func (d *DeadLetters) take(limit int) ([]amqp.Delivery, error) {
	if d.reader == nil {
		return nil, errors.New("dead-letter queue reader is not configured")
	}

	var deliveries []amqp.Delivery
	for limit <= 0 || len(deliveries) < limit {
		delivery, ok, err := d.reader.Get(d.topology.DeadLetterQueue, false)
		if err != nil {
			return deliveries, fmt.Errorf("failed to read dead-letter queue: %w", err)
		}
		if !ok {
			break
		}
		deliveries = append(deliveries, delivery)
	}
	return deliveries, nil
}

func (d *DeadLetters) release(deliveries []amqp.Delivery) {
	for _, delivery := range deliveries {
		if err := delivery.Nack(false, true); err != nil {
			d.logger.Error("Failed to return dead letter to queue",
				slog.String("message_id", delivery.MessageId),
				slog.Any("error", err),
			)
		}
	}
}

func decodeDeadLetter(delivery amqp.Delivery) DeadLetter {
	env, err := domain.DecodeEnvelope(delivery.Body)
	if err != nil {
		return DeadLetter{Raw: delivery.Body, Err: err}
	}
	return DeadLetter{Envelope: env}
}
