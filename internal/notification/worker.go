package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Retry is an exponential backoff policy with jitter.
type Retry struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetry() Retry {
	return Retry{MaxAttempts: 5, BaseDelay: 500 * time.Millisecond, MaxDelay: 8 * time.Second}
}

// Backoff returns the delay before the given retry (1-based): base * 2^(attempt-1)
// with up to ±25% jitter, capped at MaxDelay.
func (r Retry) Backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return r.BaseDelay
	}

	backoff := r.BaseDelay * time.Duration(1<<(attempt-1))

	if quarter := int64(backoff / 4); quarter > 0 {
		backoff += time.Duration(rand.Int64N(2*quarter+1) - quarter)
	}

	if r.MaxDelay > 0 && backoff > r.MaxDelay {
		backoff = r.MaxDelay
	}

	return backoff
}

// Do calls fn until it succeeds, attempts run out or ctx is done.
func (r Retry) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := max(r.MaxAttempts, 1)

	var err error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}

		if attempt == attempts {
			break
		}

		timer := time.NewTimer(r.Backoff(attempt))

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("giving up after %d attempts: %w", attempts, err)
}

// Worker delivers queued messages through a Sender, retrying failed deliveries.
type Worker struct {
	deliver Sender
	retry   Retry
}

func NewWorker(deliver Sender, retry Retry) *Worker {
	return &Worker{deliver: deliver, retry: retry}
}

// Run processes deliveries until the channel closes or ctx is done. Messages
// that cannot be decoded or still fail after all retries are rejected without
// requeue so the broker can dead-letter them.
func (w *Worker) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}

			w.handle(ctx, d)
		}
	}
}

func (w *Worker) handle(ctx context.Context, d amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		slog.Error("failed to decode notification", "routing_key", d.RoutingKey, "error", err)
		_ = d.Nack(false, false)

		return
	}

	err := w.retry.Do(ctx, func(ctx context.Context) error {
		return w.deliver.Send(ctx, msg)
	})
	if err != nil {
		slog.Error("failed to deliver notification", "id", msg.ID, "kind", msg.Kind, "error", err)
		_ = d.Nack(false, false)

		return
	}

	_ = d.Ack(false)
}

// Consumer binds the delivery queue to the notification exchange.
type Consumer struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func NewConsumer(url, exchange, queue string, prefetch int) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	fail := func(step string, err error) (*Consumer, error) {
		_ = ch.Close()
		_ = conn.Close()

		return nil, fmt.Errorf("%s: %w", step, err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fail("declare exchange", err)
	}

	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return fail("declare queue", err)
	}

	if err := ch.QueueBind(q.Name, "notification.#", exchange, false, nil); err != nil {
		return fail("bind queue", err)
	}

	if prefetch <= 0 {
		prefetch = 8
	}

	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fail("set qos", err)
	}

	return &Consumer{conn: conn, ch: ch, queue: q.Name}, nil
}

func (c *Consumer) Deliveries(ctx context.Context) (<-chan amqp.Delivery, error) {
	return c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
}

func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}

	if c.conn != nil {
		return c.conn.Close()
	}

	return nil
}
