package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Circuit breaker states
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures = 5
	openTimeout = 30 * time.Second
)

type Client struct {
	url          string
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string

	// Circuit breaker state for publishing
	failureCount int64
	state        int32
	mu           sync.Mutex
	lastFailure  time.Time
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	client := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
	}

	if err := client.connect(); err != nil {
		return nil, err
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return client, nil
}

func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	c.conn = conn
	c.channel = channel
	return nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	err = c.channel.QueueBind(
		c.queueName,    // queue name
		c.queueName,    // routing key (same as queue name for direct exchange)
		c.exchangeName, // exchange
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// reconnect re-dials the broker with exponential backoff. It gives up once
// the context is cancelled.
func (c *Client) reconnect(ctx context.Context) error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}

	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(exponentialBackoff(attempt)):
		}

		if err := c.connect(); err != nil {
			slog.WarnContext(ctx, "AMQP reconnect failed",
				"error", err,
				"attempt", attempt+1)
			continue
		}
		if err := c.setup(); err != nil {
			slog.WarnContext(ctx, "AMQP setup after reconnect failed",
				"error", err,
				"attempt", attempt+1)
			continue
		}

		slog.InfoContext(ctx, "AMQP reconnected", "attempt", attempt+1)
		return nil
	}
}

// exponentialBackoff returns the wait before the given retry attempt,
// doubling from one second and capped at 30 seconds.
func exponentialBackoff(attempt int) time.Duration {
	if attempt > 4 {
		return 30 * time.Second
	}
	return time.Duration(1<<attempt) * time.Second
}

// isConnectionError reports whether an error looks like a broken broker
// connection rather than a protocol or application failure.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, fragment := range []string{
		"connection refused",
		"connection closed",
		"EOF",
		"broken pipe",
		"use of closed network connection",
	} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}

	c.mu.Lock()
	last := c.lastFailure
	c.mu.Unlock()

	if time.Since(last) > openTimeout {
		atomic.StoreInt32(&c.state, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()

	if atomic.AddInt64(&c.failureCount, 1) >= maxFailures {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

// PublishTransactionSync queues a transaction for mirroring to the cloud store.
func (c *Client) PublishTransactionSync(ctx context.Context, id string) error {
	return c.publish(ctx, NewTransactionSyncMessage(id))
}

// PublishTransactionDelete queues a transaction removal from the cloud store.
func (c *Client) PublishTransactionDelete(ctx context.Context, id string) error {
	return c.publish(ctx, NewTransactionDeleteMessage(id))
}

// PublishBudgetSync queues a budget setting for mirroring to the cloud store.
func (c *Client) PublishBudgetSync(ctx context.Context, key string) error {
	return c.publish(ctx, NewBudgetSyncMessage(key))
}

func (c *Client) publish(ctx context.Context, msg *SyncMessage) error {
	if c.isCircuitOpen() {
		return fmt.Errorf("circuit breaker is open, not publishing %s", msg.Op)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("publish message: %w", err)
	}

	c.recordSuccess()
	slog.InfoContext(ctx, "Published sync message",
		"op", msg.Op,
		"id", msg.ID,
		"key", msg.Key,
		"exchange", c.exchangeName,
		"queue", c.queueName)

	return nil
}

// Consume delivers sync messages to handler until the context is cancelled.
// Handler errors nack with requeue, malformed messages are dropped. A closed
// delivery channel triggers a reconnect.
func (c *Client) Consume(ctx context.Context, handler func(*SyncMessage) error) error {
	for {
		msgs, err := c.channel.Consume(
			c.queueName, // queue
			"",          // consumer
			false,       // auto-ack (we want manual ack)
			false,       // exclusive
			false,       // no-local
			false,       // no-wait
			nil,         // args
		)
		if err != nil {
			if isConnectionError(err) {
				if rerr := c.reconnect(ctx); rerr != nil {
					return rerr
				}
				continue
			}
			return fmt.Errorf("start consuming: %w", err)
		}

		slog.InfoContext(ctx, "Started consuming sync messages", "queue", c.queueName)

		if err := c.consumeLoop(ctx, msgs, handler); err != nil {
			return err
		}

		// Delivery channel closed, re-establish the connection.
		if rerr := c.reconnect(ctx); rerr != nil {
			return rerr
		}
	}
}

func (c *Client) consumeLoop(ctx context.Context, msgs <-chan amqp091.Delivery, handler func(*SyncMessage) error) error {
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return nil
			}

			msg, err := SyncMessageFromJSON(delivery.Body)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to unmarshal message", "error", err)
				delivery.Nack(false, false) // reject and don't requeue
				continue
			}

			if err := handler(msg); err != nil {
				slog.ErrorContext(ctx, "Failed to handle message",
					"error", err,
					"op", msg.Op,
					"id", msg.ID,
					"key", msg.Key)
				delivery.Nack(false, true) // reject and requeue
				continue
			}

			delivery.Ack(false)
			slog.DebugContext(ctx, "Processed sync message",
				"op", msg.Op,
				"id", msg.ID,
				"key", msg.Key)
		}
	}
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
