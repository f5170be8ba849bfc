package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/media-conversor/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testTopology = Topology{
	WorkQueue:          "video_conversion",
	StatusQueue:        "status_queue",
	RetryExchange:      "video_retry_exchange",
	DeadLetterExchange: "video_dlx",
	DeadLetterQueue:    "video_conversion_failed",
	RetryDelays:        []time.Duration{5 * time.Second, 10 * time.Second, 30 * time.Second},
}

type published struct {
	exchange   string
	routingKey string
	msg        amqp.Publishing
}

// fakePublisher records publishes in order; fail decides per message whether to error
type fakePublisher struct {
	mu           sync.Mutex
	disconnected bool
	fail         func(exchange, routingKey string) error
	messages     []published
}

func (p *fakePublisher) Publish(_ context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		if err := p.fail(exchange, routingKey); err != nil {
			return err
		}
	}
	p.messages = append(p.messages, published{exchange: exchange, routingKey: routingKey, msg: msg})
	return nil
}

func (p *fakePublisher) IsConnected() bool {
	return !p.disconnected
}

func (p *fakePublisher) to(exchange, routingKey string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, m := range p.messages {
		if m.exchange == exchange && m.routingKey == routingKey {
			out = append(out, m)
		}
	}
	return out
}

func (p *fakePublisher) statuses(t *testing.T) []domain.StatusRecord {
	t.Helper()
	var records []domain.StatusRecord
	for _, m := range p.to("", testTopology.StatusQueue) {
		var rec domain.StatusRecord
		require.NoError(t, json.Unmarshal(m.msg.Body, &rec))
		records = append(records, rec)
	}
	return records
}

func failOn(exchange string) func(string, string) error {
	return func(ex, _ string) error {
		if ex == exchange {
			return errors.New("channel closed")
		}
		return nil
	}
}

// fakeAcknowledger records acks and nacks by delivery tag
type fakeAcknowledger struct {
	mu     sync.Mutex
	acked  []uint64
	nacked []nackCall
}

type nackCall struct {
	tag     uint64
	requeue bool
}

func (a *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked = append(a.nacked, nackCall{tag: tag, requeue: requeue})
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func newDelivery(ack amqp.Acknowledger, tag uint64, body []byte) amqp.Delivery {
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: tag, Body: body}
}

func envelopeDelivery(t *testing.T, ack amqp.Acknowledger, tag uint64, env domain.Envelope) amqp.Delivery {
	t.Helper()
	body, err := env.Marshal()
	require.NoError(t, err)
	return newDelivery(ack, tag, body)
}

func decodeBody(t *testing.T, m published) domain.Envelope {
	t.Helper()
	env, err := domain.DecodeEnvelope(m.msg.Body)
	require.NoError(t, err)
	return env
}

// scriptedHandler fails the first failures calls and then succeeds
type scriptedHandler struct {
	failures int
	calls    []domain.Envelope
	result   map[string]string
}

func (h *scriptedHandler) Handle(_ context.Context, env domain.Envelope) (map[string]string, error) {
	h.calls = append(h.calls, env)
	if len(h.calls) <= h.failures {
		return nil, domain.NewConversionError("ffmpeg exited with status 1", nil)
	}
	return h.result, nil
}

type testPipeline struct {
	publisher *fakePublisher
	status    *StatusChannel
	producer  *Producer
	retry     *RetryRouter
	dlq       *DeadLetters
}

func newTestPipeline(reader QueueReader) *testPipeline {
	logger := newTestLogger()
	pub := &fakePublisher{}
	status := NewStatusChannel(pub, testTopology.StatusQueue, logger)
	return &testPipeline{
		publisher: pub,
		status:    status,
		producer:  NewProducer(pub, status, testTopology.WorkQueue, logger),
		retry:     NewRetryRouter(pub, testTopology.RetryExchange, len(testTopology.RetryDelays), logger),
		dlq:       NewDeadLetters(pub, reader, status, testTopology, logger),
	}
}

func (tp *testPipeline) worker(handler Handler, maxAttempts int) *Worker {
	return NewWorker(&WorkerConfig{
		Logger:      newTestLogger(),
		Handler:     handler,
		Retry:       tp.retry,
		DeadLetters: tp.dlq,
		Status:      tp.status,
		MaxAttempts: maxAttempts,
		WorkerID:    "test-worker",
	})
}
