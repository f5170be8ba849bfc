package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/cuongbtq/media-conversor/internal/domain"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducer_Enqueue(t *testing.T) {
	tp := newTestPipeline(nil)
	metadata := map[string]string{domain.MetadataEmail: "user@example.com"}

	jobID, err := tp.producer.Enqueue(context.Background(), domain.ConversionRequest{
		InputRef:     "uploads/clip.mp4",
		OutputFormat: domain.FormatMP3,
		Metadata:     metadata,
	})
	require.NoError(t, err)

	_, err = uuid.Parse(jobID)
	assert.NoError(t, err)

	require.Len(t, tp.publisher.messages, 2)
	// queued status is published before the envelope
	assert.Equal(t, "status_queue", tp.publisher.messages[0].routingKey)
	assert.Equal(t, "video_conversion", tp.publisher.messages[1].routingKey)

	records := tp.publisher.statuses(t)
	require.Len(t, records, 1)
	assert.Equal(t, domain.StatusQueued, records[0].Status)
	assert.Equal(t, jobID, records[0].JobID)

	msg := tp.publisher.messages[1].msg
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, jobID, msg.MessageId)

	env := decodeBody(t, tp.publisher.messages[1])
	assert.Equal(t, jobID, env.JobID)
	assert.Equal(t, 0, env.Attempts)
	assert.Equal(t, "uploads/clip.mp4", env.InputRef)
	assert.Equal(t, domain.FormatMP3, env.OutputFormat)
	assert.False(t, env.SubmittedAt.IsZero())
	assert.Equal(t, metadata, env.Metadata)
}

func TestProducer_UniqueIDs(t *testing.T) {
	tp := newTestPipeline(nil)
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		jobID, err := tp.producer.Enqueue(context.Background(), domain.ConversionRequest{InputRef: "a", OutputFormat: domain.FormatWAV})
		require.NoError(t, err)
		assert.False(t, seen[jobID])
		seen[jobID] = true
	}
}

func TestProducer_QueueUnavailable(t *testing.T) {
	t.Run("disconnected", func(t *testing.T) {
		tp := newTestPipeline(nil)
		tp.publisher.disconnected = true

		_, err := tp.producer.Enqueue(context.Background(), domain.ConversionRequest{InputRef: "a", OutputFormat: domain.FormatMP4})
		assert.ErrorIs(t, err, domain.ErrQueueUnavailable)
		assert.Empty(t, tp.publisher.messages)
	})

	t.Run("publish fails", func(t *testing.T) {
		tp := newTestPipeline(nil)
		tp.publisher.fail = func(_, key string) error {
			if key == "video_conversion" {
				return errors.New("channel/connection is not open")
			}
			return nil
		}

		_, err := tp.producer.Enqueue(context.Background(), domain.ConversionRequest{InputRef: "a", OutputFormat: domain.FormatMP4})
		assert.ErrorIs(t, err, domain.ErrQueueUnavailable)
	})

	t.Run("status failure is swallowed", func(t *testing.T) {
		tp := newTestPipeline(nil)
		tp.publisher.fail = func(_, key string) error {
			if key == "status_queue" {
				return errors.New("boom")
			}
			return nil
		}

		jobID, err := tp.producer.Enqueue(context.Background(), domain.ConversionRequest{InputRef: "a", OutputFormat: domain.FormatMP4})
		require.NoError(t, err)
		assert.NotEmpty(t, jobID)
	})
}
