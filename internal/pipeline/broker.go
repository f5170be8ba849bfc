// Package pipeline implements the asynchronous conversion job pipeline on top of
// RabbitMQ: topology declaration, the producer, the status channel, the retry and
// dead-letter routers and the worker loop.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/cuongbtq/media-conversor/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends one message to an exchange. shared/rabbitmq.Client implements it.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error
	IsConnected() bool
}

// Topology names the broker objects shared by every pipeline role
type Topology struct {
	WorkQueue          string
	StatusQueue        string
	RetryExchange      string
	DeadLetterExchange string
	DeadLetterQueue    string
	RetryDelays        []time.Duration
}

// RetryQueueName returns the delay queue for the given attempt index
func (t Topology) RetryQueueName(attemptIndex int) string {
	return fmt.Sprintf("%s_retry_%d", t.WorkQueue, attemptIndex)
}

// RetryRoutingKey returns the retry exchange routing key for the given attempt index
func RetryRoutingKey(attemptIndex int) string {
	return fmt.Sprintf("retry-%d", attemptIndex)
}

const (
	envelopeContentType = "application/json"
	envelopeType        = "conversion.job"
	statusType          = "conversion.status"
	attemptsHeader      = "x-attempts"
)

// envelopeMessage builds a persistent message for an envelope.
// The attempts header is informational; workers read attempts from the body.
func envelopeMessage(env domain.Envelope) (amqp.Publishing, error) {
	body, err := env.Marshal()
	if err != nil {
		return amqp.Publishing{}, err
	}

	return amqp.Publishing{
		ContentType:  envelopeContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    env.JobID,
		Type:         envelopeType,
		Timestamp:    time.Now(),
		Headers:      amqp.Table{attemptsHeader: int32(env.Attempts)},
		Body:         body,
	}, nil
}
