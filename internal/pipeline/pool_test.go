package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/media-conversor/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConsumer struct {
	mu       sync.Mutex
	tags     []string
	prefetch []int
	streams  map[string]chan amqp.Delivery
	err      error
}

func (c *fakeConsumer) Consume(_ context.Context, queue, consumerTag string, prefetch int) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	if queue != testTopology.WorkQueue {
		return nil, errors.New("unexpected queue")
	}
	c.tags = append(c.tags, consumerTag)
	c.prefetch = append(c.prefetch, prefetch)
	ch := make(chan amqp.Delivery, 1)
	if c.streams == nil {
		c.streams = make(map[string]chan amqp.Delivery)
	}
	c.streams[consumerTag] = ch
	return ch, nil
}

func (c *fakeConsumer) started() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tags)
}

func TestDeliveryStream_Next(t *testing.T) {
	ch := make(chan amqp.Delivery, 1)
	stream := NewDeliveryStream(ch)

	ch <- amqp.Delivery{DeliveryTag: 42}
	d, err := stream.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), d.DeliveryTag)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = stream.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	close(ch)
	_, err = stream.Next(context.Background())
	assert.ErrorIs(t, err, domain.ErrDeliveriesClosed)
}

func TestQueueSource_Restartable(t *testing.T) {
	consumer := &fakeConsumer{}
	source := NewQueueSource(consumer, testTopology.WorkQueue, "worker-0", 1)

	_, err := source.Deliveries(context.Background())
	require.NoError(t, err)
	_, err = source.Deliveries(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, consumer.started())
}

func TestPool_StartStop(t *testing.T) {
	tp := newTestPipeline(nil)
	consumer := &fakeConsumer{}
	handler := &scriptedHandler{}

	pool := NewPool(&PoolConfig{
		Logger:      newTestLogger(),
		Consumer:    consumer,
		Queue:       testTopology.WorkQueue,
		Prefetch:    1,
		Concurrency: 3,
		WorkerID:    "worker-test",
		Worker: WorkerConfig{
			Logger:      newTestLogger(),
			Handler:     handler,
			Retry:       tp.retry,
			DeadLetters: tp.dlq,
			Status:      tp.status,
			MaxAttempts: 3,
		},
	})
	pool.Start(context.Background())

	require.Eventually(t, func() bool { return consumer.started() == 3 }, time.Second, 5*time.Millisecond)

	consumer.mu.Lock()
	assert.ElementsMatch(t, []string{"worker-test-0", "worker-test-1", "worker-test-2"}, consumer.tags)
	assert.Equal(t, []int{1, 1, 1}, consumer.prefetch)
	consumer.mu.Unlock()

	require.NoError(t, pool.Stop(time.Second))
	select {
	case err := <-pool.Errors():
		t.Fatalf("unexpected worker error: %v", err)
	default:
	}
}

func TestPool_WorkerError(t *testing.T) {
	tp := newTestPipeline(nil)
	consumer := &fakeConsumer{err: errors.New("channel closed")}

	pool := NewPool(&PoolConfig{
		Logger:      newTestLogger(),
		Consumer:    consumer,
		Queue:       testTopology.WorkQueue,
		Prefetch:    1,
		Concurrency: 1,
		WorkerID:    "worker-test",
		Worker: WorkerConfig{
			Logger:      newTestLogger(),
			Handler:     &scriptedHandler{},
			Retry:       tp.retry,
			DeadLetters: tp.dlq,
			Status:      tp.status,
			MaxAttempts: 3,
		},
	})
	pool.Start(context.Background())

	select {
	case err := <-pool.Errors():
		assert.Contains(t, err.Error(), "worker-test-0")
	case <-time.After(time.Second):
		t.Fatal("expected worker error")
	}
	require.NoError(t, pool.Stop(time.Second))
}
