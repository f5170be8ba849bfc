package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNotConnected is returned when an operation needs a live connection
var ErrNotConnected = errors.New("not connected to RabbitMQ")

// Config holds RabbitMQ connection configuration
type Config struct {
	Host              string
	Port              int
	User              string
	Password          string
	VHost             string
	RetryAttempts     int
	RetryInterval     time.Duration
	Heartbeat         time.Duration
	ConnectionTimeout time.Duration
	PublisherConfirms bool
	PublishTimeout    time.Duration
}

// Client owns one broker connection, a publish channel and any consumer channels opened from it
type Client struct {
	config    *Config
	conn      *amqp.Connection
	channel   *amqp.Channel
	logger    *slog.Logger
	closeChan <-chan *amqp.Error

	mu        sync.Mutex
	consumers []*amqp.Channel
}

// NewClient creates a new RabbitMQ client
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	client := &Client{
		config: config,
		logger: logger,
	}

	if err := client.connect(); err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ client: %w", err)
	}

	return client, nil
}

// DSN builds the AMQP URL for the configured broker
func (c *Config) DSN() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.VHost,
	}
	return u.String()
}

// connect establishes connection to RabbitMQ with retry logic
func (c *Client) connect() error {
	var err error

	amqpConfig := amqp.Config{
		Heartbeat: c.config.Heartbeat,
		Locale:    "en_US",
	}
	if c.config.ConnectionTimeout > 0 {
		amqpConfig.Dial = amqp.DefaultDial(c.config.ConnectionTimeout)
	}

	attempts := c.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		c.logger.Info("Connecting to RabbitMQ",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
		)

		c.conn, err = amqp.DialConfig(c.config.DSN(), amqpConfig)
		if err == nil {
			c.logger.Info("Successfully connected to RabbitMQ")
			break
		}

		c.logger.Error("Failed to connect to RabbitMQ",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
		)

		if attempt < attempts {
			time.Sleep(c.config.RetryInterval)
		}
	}

	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, err)
	}

	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	if c.config.PublisherConfirms {
		if err := c.channel.Confirm(false); err != nil {
			c.channel.Close()
			c.conn.Close()
			return fmt.Errorf("failed to enable publisher confirms: %w", err)
		}
	}

	// Monitor the connection and the publish channel; either closing leaves the client unusable
	connClosed := c.conn.NotifyClose(make(chan *amqp.Error, 1))
	channelClosed := c.channel.NotifyClose(make(chan *amqp.Error, 1))
	c.closeChan = watchClosed(connClosed, channelClosed)

	c.logger.Info("RabbitMQ client initialized",
		slog.String("host", c.config.Host),
		slog.String("vhost", c.config.VHost),
		slog.Bool("publisher_confirms", c.config.PublisherConfirms),
	)

	return nil
}

// Publish publishes a message and, when confirms are enabled, waits for the broker ack
func (c *Client) Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if c.config.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.PublishTimeout)
		defer cancel()
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	confirm, err := c.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		msg,
	)
	if err != nil {
		c.logger.Error("Failed to publish message to RabbitMQ",
			slog.String("exchange", exchange),
			slog.String("routing_key", routingKey),
			slog.Any("error", err),
		)
		return fmt.Errorf("failed to publish message: %w", err)
	}

	// confirm is nil when the channel is not in confirm mode
	if confirm != nil {
		acked, err := confirm.WaitContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to wait for publish confirmation: %w", err)
		}
		if !acked {
			return fmt.Errorf("message nacked by broker (exchange=%q routing_key=%q)", exchange, routingKey)
		}
	}

	c.logger.Debug("Message published to RabbitMQ",
		slog.String("exchange", exchange),
		slog.String("routing_key", routingKey),
		slog.Int("body_size", len(msg.Body)),
	)

	return nil
}

// OpenChannel opens a dedicated channel, typically one per consumer.
// The channel is closed by Close.
func (c *Client) OpenChannel() (*amqp.Channel, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	c.mu.Lock()
	c.consumers = append(c.consumers, ch)
	c.mu.Unlock()

	return ch, nil
}

// Consume starts consuming from queue on a dedicated channel with the given prefetch.
// The consumer is cancelled when ctx is done; unacknowledged deliveries stay ackable.
func (c *Client) Consume(ctx context.Context, queue, consumerTag string, prefetch int) (<-chan amqp.Delivery, error) {
	ch, err := c.OpenChannel()
	if err != nil {
		return nil, err
	}

	// prefetch_size 0: no byte limit; global false: per consumer
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	messages, err := ch.Consume(
		queue,       // queue
		consumerTag, // consumer tag
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume messages: %w", err)
	}

	go func() {
		<-ctx.Done()
		if err := ch.Cancel(consumerTag, false); err != nil && !errors.Is(err, amqp.ErrClosed) {
			c.logger.Warn("Failed to cancel consumer",
				slog.String("consumer_tag", consumerTag),
				slog.Any("error", err),
			)
		}
	}()

	c.logger.Info("Started consuming messages from RabbitMQ",
		slog.String("queue", queue),
		slog.String("consumer_tag", consumerTag),
		slog.Int("prefetch_count", prefetch),
	)

	return messages, nil
}

// Close closes consumer channels, the publish channel and the connection
func (c *Client) Close() error {
	c.logger.Info("Closing RabbitMQ connection")

	c.mu.Lock()
	consumers := c.consumers
	c.consumers = nil
	c.mu.Unlock()

	for _, ch := range consumers {
		if err := ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			c.logger.Error("Failed to close RabbitMQ consumer channel",
				slog.Any("error", err),
			)
		}
	}

	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			c.logger.Error("Failed to close RabbitMQ channel",
				slog.Any("error", err),
			)
		}
	}

	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ connection",
				slog.Any("error", err),
			)
			return err
		}
	}

	c.logger.Info("RabbitMQ connection closed successfully")
	return nil
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	return c.conn != nil && !c.conn.IsClosed() && c.channel != nil && !c.channel.IsClosed()
}

// NotifyClosed delivers the error that closed the connection or the publish channel.
// A graceful Close delivers nil.
func (c *Client) NotifyClosed() <-chan *amqp.Error {
	return c.closeChan
}

// watchClosed forwards the first close notification of the connection or the
// publish channel, then closes the returned channel
func watchClosed(connClosed, channelClosed <-chan *amqp.Error) <-chan *amqp.Error {
	out := make(chan *amqp.Error, 1)
	go func() {
		defer close(out)

		var err *amqp.Error
		select {
		case err = <-connClosed:
		case err = <-channelClosed:
		}
		if err != nil {
			out <- err
		}
	}()
	return out
}

// GetChannel returns the publish channel for declarations and queue inspection
func (c *Client) GetChannel() *amqp.Channel {
	return c.channel
}
