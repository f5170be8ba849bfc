package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/media-conversor/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// StatusSink receives status records in-process
type StatusSink interface {
	Record(ctx context.Context, rec domain.StatusRecord) error
}

// StatusChannel publishes status records, fire-and-forget
type StatusChannel struct {
	publisher Publisher
	queue     string
	logger    *slog.Logger
	now       func() time.Time
	local     StatusSink
}

// NewStatusChannel creates a status channel publishing to queue via the default exchange
func NewStatusChannel(publisher Publisher, queue string, logger *slog.Logger) *StatusChannel {
	return &StatusChannel{
		publisher: publisher,
		queue:     queue,
		logger:    logger,
		now:       time.Now,
	}
}

// RecordLocally hands every record to sink before it is published, so a reader
// backed by sink sees the record as soon as Publish returns
func (s *StatusChannel) RecordLocally(sink StatusSink) {
	s.local = sink
}

// Publish sends a record for env. Failures are logged and swallowed.
func (s *StatusChannel) Publish(ctx context.Context, env domain.Envelope, status domain.Status, detail string, result map[string]string) {
	record := domain.StatusRecord{
		JobID:     env.JobID,
		Status:    status,
		Timestamp: s.now().UTC(),
		Attempts:  env.Attempts,
		Detail:    detail,
		Result:    result,
	}

	if s.local != nil {
		if err := s.local.Record(ctx, record); err != nil {
			s.logger.Warn("Failed to record job status locally",
				slog.String("job_id", record.JobID),
				slog.String("status", string(record.Status)),
				slog.Any("error", err),
			)
		}
	}

	if err := s.publish(ctx, record); err != nil {
		s.logger.Warn("Failed to publish job status",
			slog.String("job_id", record.JobID),
			slog.String("status", string(record.Status)),
			slog.Any("error", err),
		)
		return
	}

	s.logger.Debug("Job status published",
		slog.String("job_id", record.JobID),
		slog.String("status", string(record.Status)),
		slog.Int("attempts", record.Attempts),
	)
}

func (s *StatusChannel) publish(ctx context.Context, record domain.StatusRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStatusPublishFailed, err)
	}

	err = s.publisher.Publish(ctx, "", s.queue, amqp.Publishing{
		ContentType:  envelopeContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    record.JobID,
		Type:         statusType,
		Timestamp:    record.Timestamp,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStatusPublishFailed, err)
	}
	return nil
}
