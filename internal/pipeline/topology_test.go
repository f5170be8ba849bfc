package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/cuongbtq/media-conversor/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type declaredQueue struct {
	name string
	args amqp.Table
}

type binding struct {
	queue, key, exchange string
}

type fakeDeclarer struct {
	exchanges []string
	queues    []declaredQueue
	bindings  []binding
	queueErr  map[string]error
}

func (d *fakeDeclarer) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp.Table) error {
	if kind != amqp.ExchangeDirect || !durable {
		return &amqp.Error{Code: amqp.PreconditionFailed, Reason: "unexpected exchange definition"}
	}
	d.exchanges = append(d.exchanges, name)
	return nil
}

func (d *fakeDeclarer) QueueDeclare(name string, durable, _, _, _ bool, args amqp.Table) (amqp.Queue, error) {
	if err := d.queueErr[name]; err != nil {
		return amqp.Queue{}, err
	}
	if !durable {
		return amqp.Queue{}, &amqp.Error{Code: amqp.PreconditionFailed, Reason: "queue must be durable"}
	}
	d.queues = append(d.queues, declaredQueue{name: name, args: args})
	return amqp.Queue{Name: name}, nil
}

func (d *fakeDeclarer) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	d.bindings = append(d.bindings, binding{queue: name, key: key, exchange: exchange})
	return nil
}

func (d *fakeDeclarer) queue(name string) (declaredQueue, bool) {
	for _, q := range d.queues {
		if q.name == name {
			return q, true
		}
	}
	return declaredQueue{}, false
}

func TestDeclareTopology(t *testing.T) {
	d := &fakeDeclarer{}
	require.NoError(t, DeclareTopology(d, testTopology, newTestLogger()))

	assert.ElementsMatch(t, []string{"video_dlx", "video_retry_exchange"}, d.exchanges)

	work, ok := d.queue("video_conversion")
	require.True(t, ok)
	assert.Equal(t, "video_dlx", work.args["x-dead-letter-exchange"])
	assert.Equal(t, "video_conversion", work.args["x-dead-letter-routing-key"])

	_, ok = d.queue("video_conversion_failed")
	assert.True(t, ok)
	_, ok = d.queue("status_queue")
	assert.True(t, ok)

	wantTTL := []int64{5000, 10000, 30000}
	for i, ttl := range wantTTL {
		q, ok := d.queue(testTopology.RetryQueueName(i))
		require.True(t, ok, "delay queue %d", i)
		assert.Equal(t, ttl, q.args["x-message-ttl"])
		assert.Equal(t, "", q.args["x-dead-letter-exchange"])
		assert.Equal(t, "video_conversion", q.args["x-dead-letter-routing-key"])
		assert.Contains(t, d.bindings, binding{queue: q.name, key: RetryRoutingKey(i), exchange: "video_retry_exchange"})
	}

	assert.Contains(t, d.bindings, binding{queue: "video_conversion_failed", key: "video_conversion", exchange: "video_dlx"})
	assert.Len(t, d.queues, 6)
}

func TestDeclareTopology_Idempotent(t *testing.T) {
	d := &fakeDeclarer{}
	require.NoError(t, DeclareTopology(d, testTopology, newTestLogger()))
	require.NoError(t, DeclareTopology(d, testTopology, newTestLogger()))
	assert.Len(t, d.queues, 12)
}

func TestDeclareTopology_Conflict(t *testing.T) {
	d := &fakeDeclarer{queueErr: map[string]error{
		"video_conversion": &amqp.Error{Code: amqp.PreconditionFailed, Reason: "PRECONDITION_FAILED - inequivalent arg 'x-dead-letter-exchange'"},
	}}

	err := DeclareTopology(d, testTopology, newTestLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTopologyConflict)
	assert.Contains(t, err.Error(), "video_conversion")
}

func TestDeclareTopology_OtherError(t *testing.T) {
	d := &fakeDeclarer{queueErr: map[string]error{
		"status_queue": amqp.ErrClosed,
	}}

	err := DeclareTopology(d, testTopology, newTestLogger())
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrTopologyConflict)
	assert.ErrorIs(t, err, amqp.ErrClosed)
}

func TestDeclareTopology_EmptySchedule(t *testing.T) {
	topo := testTopology
	topo.RetryDelays = nil

	err := DeclareTopology(&fakeDeclarer{}, topo, newTestLogger())
	assert.Error(t, err)
}

func TestTopologyNames(t *testing.T) {
	assert.Equal(t, "video_conversion_retry_2", testTopology.RetryQueueName(2))
	assert.Equal(t, "retry-0", RetryRoutingKey(0))
}

func TestRetryRouter_OutOfRange(t *testing.T) {
	tp := newTestPipeline(nil)
	env := domain.Envelope{JobID: "6f1c1b7e-2a4d-4c55-9a4f-3f7b7f0c1e11", InputRef: "a", OutputFormat: domain.FormatMP3, SubmittedAt: time.Now()}

	for _, idx := range []int{-1, 3} {
		err := tp.retry.ScheduleRetry(context.Background(), env, idx)
		assert.ErrorIs(t, err, domain.ErrNoRetryTier)
	}
	assert.Empty(t, tp.publisher.messages)
}

func TestRetryRouter_Publishes(t *testing.T) {
	tp := newTestPipeline(nil)
	env := domain.Envelope{JobID: "6f1c1b7e-2a4d-4c55-9a4f-3f7b7f0c1e11", InputRef: "a", OutputFormat: domain.FormatWAV, Attempts: 3, SubmittedAt: time.Now()}

	require.NoError(t, tp.retry.ScheduleRetry(context.Background(), env, 2))

	msgs := tp.publisher.to("video_retry_exchange", "retry-2")
	require.Len(t, msgs, 1)
	assert.Equal(t, amqp.Persistent, msgs[0].msg.DeliveryMode)
	assert.Equal(t, env.JobID, msgs[0].msg.MessageId)
	assert.Equal(t, int32(3), msgs[0].msg.Headers[attemptsHeader])
}
