package pipeline

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/media-conversor/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Declarer is the subset of *amqp.Channel used to declare the topology
type Declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// DeclareTopology idempotently declares the work queue, the retry exchange with one
// delay queue per schedule entry, the dead-letter exchange and queue, and the status queue.
// A declaration that conflicts with an existing object fails with ErrTopologyConflict.
func DeclareTopology(ch Declarer, t Topology, logger *slog.Logger) error {
	if len(t.RetryDelays) == 0 {
		return fmt.Errorf("retry delay schedule is empty")
	}

	// Dead-letter exchange and queue first: the work queue points at them
	if err := declareExchange(ch, t.DeadLetterExchange); err != nil {
		return err
	}
	if err := declareQueue(ch, t.DeadLetterQueue, nil); err != nil {
		return err
	}
	if err := bindQueue(ch, t.DeadLetterQueue, t.WorkQueue, t.DeadLetterExchange); err != nil {
		return err
	}

	// Work queue; rejected deliveries land in the dead-letter queue
	workArgs := amqp.Table{
		"x-dead-letter-exchange":    t.DeadLetterExchange,
		"x-dead-letter-routing-key": t.WorkQueue,
	}
	if err := declareQueue(ch, t.WorkQueue, workArgs); err != nil {
		return err
	}

	// Retry exchange with one consumer-less delay queue per tier
	if err := declareExchange(ch, t.RetryExchange); err != nil {
		return err
	}
	for i, delay := range t.RetryDelays {
		name := t.RetryQueueName(i)
		args := amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": t.WorkQueue,
			"x-message-ttl":             delay.Milliseconds(),
		}
		if err := declareQueue(ch, name, args); err != nil {
			return err
		}
		if err := bindQueue(ch, name, RetryRoutingKey(i), t.RetryExchange); err != nil {
			return err
		}
	}

	if err := declareQueue(ch, t.StatusQueue, nil); err != nil {
		return err
	}

	logger.Info("Broker topology declared",
		slog.String("work_queue", t.WorkQueue),
		slog.String("retry_exchange", t.RetryExchange),
		slog.Int("retry_tiers", len(t.RetryDelays)),
		slog.String("dead_letter_queue", t.DeadLetterQueue),
		slog.String("status_queue", t.StatusQueue),
	)

	return nil
}

func declareExchange(ch Declarer, name string) error {
	err := ch.ExchangeDeclare(
		name,                // name
		amqp.ExchangeDirect, // type
		true,                // durable
		false,               // auto-deleted
		false,               // internal
		false,               // no-wait
		nil,                 // arguments
	)
	if err != nil {
		return wrapDeclareError(fmt.Sprintf("exchange %q", name), err)
	}
	return nil
}

func declareQueue(ch Declarer, name string, args amqp.Table) error {
	_, err := ch.QueueDeclare(
		name,  // name
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		args,  // arguments
	)
	if err != nil {
		return wrapDeclareError(fmt.Sprintf("queue %q", name), err)
	}
	return nil
}

func bindQueue(ch Declarer, queue, key, exchange string) error {
	if err := ch.QueueBind(queue, key, exchange, false, nil); err != nil {
		return wrapDeclareError(fmt.Sprintf("binding %q -> %q", exchange, queue), err)
	}
	return nil
}

func wrapDeclareError(object string, err error) error {
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) && amqpErr.Code == amqp.PreconditionFailed {
		return fmt.Errorf("%w: %s: %v", domain.ErrTopologyConflict, object, err)
	}
	return fmt.Errorf("failed to declare %s: %w", object, err)
}
