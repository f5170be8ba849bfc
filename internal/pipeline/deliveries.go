package pipeline

import (
	"context"

	"github.com/cuongbtq/media-conversor/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer is implemented by shared/rabbitmq.Client
type Consumer interface {
	Consume(ctx context.Context, queue, consumerTag string, prefetch int) (<-chan amqp.Delivery, error)
}

// DeliverySource produces a fresh delivery stream each time it is asked
type DeliverySource interface {
	Deliveries(ctx context.Context) (*DeliveryStream, error)
}

// DeliveryStream is a blocking pull iterator over broker deliveries
type DeliveryStream struct {
	deliveries <-chan amqp.Delivery
}

// NewDeliveryStream wraps a push channel of deliveries
func NewDeliveryStream(deliveries <-chan amqp.Delivery) *DeliveryStream {
	return &DeliveryStream{deliveries: deliveries}
}

// Next blocks until a delivery is available, ctx is done, or the broker closes the stream
func (s *DeliveryStream) Next(ctx context.Context) (amqp.Delivery, error) {
	select {
	case <-ctx.Done():
		return amqp.Delivery{}, ctx.Err()
	case d, ok := <-s.deliveries:
		if !ok {
			return amqp.Delivery{}, domain.ErrDeliveriesClosed
		}
		return d, nil
	}
}

// QueueSource opens a dedicated consumer on a queue
type QueueSource struct {
	consumer    Consumer
	queue       string
	consumerTag string
	prefetch    int
}

// NewQueueSource creates a source consuming queue with the given tag and prefetch
func NewQueueSource(consumer Consumer, queue, consumerTag string, prefetch int) *QueueSource {
	return &QueueSource{
		consumer:    consumer,
		queue:       queue,
		consumerTag: consumerTag,
		prefetch:    prefetch,
	}
}

// Deliveries starts a consumer that is cancelled when ctx is done
func (q *QueueSource) Deliveries(ctx context.Context) (*DeliveryStream, error) {
	deliveries, err := q.consumer.Consume(ctx, q.queue, q.consumerTag, q.prefetch)
	if err != nil {
		return nil, err
	}
	return NewDeliveryStream(deliveries), nil
}
