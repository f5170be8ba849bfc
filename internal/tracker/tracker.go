package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/media-conversor/internal/domain"
	"github.com/cuongbtq/media-conversor/internal/pipeline"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Config holds tracker dependencies
type Config struct {
	Logger *slog.Logger
	Source pipeline.DeliverySource
	Store  Store
}

// Tracker consumes the status channel and answers status queries
type Tracker struct {
	logger *slog.Logger
	source pipeline.DeliverySource
	store  Store
}

// New creates a new tracker
func New(cfg *Config) *Tracker {
	return &Tracker{
		logger: cfg.Logger,
		source: cfg.Source,
		store:  cfg.Store,
	}
}

// Run consumes status records until ctx is done or the stream closes
func (t *Tracker) Run(ctx context.Context) error {
	stream, err := t.source.Deliveries(ctx)
	if err != nil {
		return err
	}

	t.logger.Info("Status tracker started")

	for {
		delivery, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				t.logger.Info("Status tracker stopped")
				return nil
			}
			return err
		}
		t.handle(ctx, delivery)
	}
}

func (t *Tracker) handle(ctx context.Context, delivery amqp.Delivery) {
	rec, err := decodeRecord(delivery.Body)
	if err != nil {
		t.logger.Warn("Dropping malformed status record",
			slog.String("body", string(delivery.Body)),
			slog.Any("error", err),
		)
		if nackErr := delivery.Nack(false, false); nackErr != nil {
			t.logger.Error("Failed to NACK status record", slog.Any("error", nackErr))
		}
		return
	}

	if err := t.apply(ctx, rec); err != nil {
		t.logger.Error("Failed to store job status",
			slog.String("job_id", rec.JobID),
			slog.Any("error", err),
		)
		if nackErr := delivery.Nack(false, true); nackErr != nil {
			t.logger.Error("Failed to NACK status record", slog.Any("error", nackErr))
		}
		return
	}

	if err := delivery.Ack(false); err != nil {
		t.logger.Error("Failed to ACK status record",
			slog.String("job_id", rec.JobID),
			slog.Any("error", err),
		)
	}
}

// Record stores a status record produced in this process without waiting for its broker copy.
// The broker copy is applied again later, which leaves the store unchanged.
func (t *Tracker) Record(ctx context.Context, rec domain.StatusRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	return t.apply(ctx, rec)
}

func (t *Tracker) apply(ctx context.Context, rec domain.StatusRecord) error {
	applied, err := t.store.Apply(ctx, rec)
	if err != nil {
		return err
	}
	if !applied {
		t.logger.Debug("Ignoring superseded job status",
			slog.String("job_id", rec.JobID),
			slog.String("status", string(rec.Status)),
			slog.Int("attempts", rec.Attempts),
		)
	}
	return nil
}

func decodeRecord(body []byte) (domain.StatusRecord, error) {
	var rec domain.StatusRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return domain.StatusRecord{}, fmt.Errorf("invalid status record: %w", err)
	}
	if err := validateRecord(rec); err != nil {
		return domain.StatusRecord{}, err
	}
	return rec, nil
}

func validateRecord(rec domain.StatusRecord) error {
	if _, err := uuid.Parse(rec.JobID); err != nil {
		return fmt.Errorf("invalid status record: job_id %q is not a UUID", rec.JobID)
	}
	if !rec.Status.IsValid() {
		return fmt.Errorf("invalid status record: unknown status %q", rec.Status)
	}
	if rec.Attempts < 0 {
		return fmt.Errorf("invalid status record: negative attempts")
	}
	return nil
}

// QueryStatus returns the latest status of a job or domain.ErrJobNotFound
func (t *Tracker) QueryStatus(ctx context.Context, jobID string) (domain.StatusRecord, error) {
	return t.store.Get(ctx, jobID)
}
