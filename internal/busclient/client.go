// Package busclient turns the broker's one-way publish into a
// cancellable request/reply primitive: correlation ids, a private reply
// queue, and an in-memory pending-call table protected by a mutex.
package busclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aras-services/aras-gateway/internal/gatewayerr"
)

var tracer = otel.Tracer("aras-gateway/busclient")

// Client owns one long-lived AMQP connection, one publish channel
// guarded by a mutex, and one consumer goroutine draining a single
// private reply queue. This is the broker-channel-sharing model spec
// §9 leaves open: amqp091-go's *Channel is not safe for concurrent
// Publish, so every call serializes through publishMu rather than
// leasing a channel per caller.
type Client struct {
	conn        *amqp.Connection
	publishCh   *amqp.Channel
	publishMu   sync.Mutex
	replyQueue  string
	correlation *correlationTable
	breaker     *gobreaker.CircuitBreaker[any]
	metrics     *metrics
}

// Dial connects to the broker at url, declares an exclusive,
// auto-deleting reply queue, and starts the consumer goroutine that
// demultiplexes replies by correlation id.
func Dial(url string, reg prometheus.Registerer) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("busclient: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("busclient: open channel: %w", err)
	}

	replyQueue, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("busclient: declare reply queue: %w", err)
	}

	deliveries, err := ch.Consume(replyQueue.Name, "", true, true, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("busclient: consume reply queue: %w", err)
	}

	c := &Client{
		conn:        conn,
		publishCh:   ch,
		replyQueue:  replyQueue.Name,
		correlation: newCorrelationTable(),
		metrics:     newMetrics(reg),
		breaker: gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:        "bus-publish",
			MaxRequests: 1,
			Interval:    0,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}

	go c.consumeReplies(deliveries)

	return c, nil
}

func (c *Client) consumeReplies(deliveries <-chan amqp.Delivery) {
	for d := range deliveries {
		c.correlation.deliver(d.CorrelationId, d.Body)
	}
}

// Call publishes payload to queue and blocks until the correlated reply
// arrives or ctx is done, whichever comes first. It is safe to invoke
// concurrently from any number of callers.
func (c *Client) Call(ctx context.Context, queue string, payload []byte) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "bus.call", trace.WithAttributes(
		attribute.String("messaging.destination", queue),
	))
	defer span.End()

	start := time.Now()
	outcome := outcomeOK
	defer func() {
		c.metrics.callsTotal.WithLabelValues(outcome).Inc()
		c.metrics.callDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	correlationID := uuid.NewString()
	span.SetAttributes(attribute.String("messaging.message.conversation_id", correlationID))

	pending := c.correlation.register(correlationID)

	_, err := c.breaker.Execute(func() (any, error) {
		c.publishMu.Lock()
		defer c.publishMu.Unlock()
		return nil, c.publishCh.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
			ContentType:   "application/json",
			CorrelationId: correlationID,
			ReplyTo:       c.replyQueue,
			Body:          payload,
		})
	})
	if err != nil {
		c.correlation.remove(correlationID)
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			outcome = outcomeBrokerUnavailable
			span.SetStatus(codes.Error, "broker unavailable")
			return nil, gatewayerr.Wrap(gatewayerr.KindUpstreamTimeout, "broker unavailable", err)
		}
		outcome = outcomePublishError
		span.SetStatus(codes.Error, "publish failed")
		return nil, gatewayerr.Wrap(gatewayerr.KindUnexpected, "publish failed", err)
	}

	select {
	case body := <-pending.reply:
		return body, nil
	case <-ctx.Done():
		c.correlation.remove(correlationID)
		if ctx.Err() == context.DeadlineExceeded {
			outcome = outcomeTimeout
			span.SetStatus(codes.Error, "deadline exceeded")
			return nil, gatewayerr.Wrap(gatewayerr.KindUpstreamTimeout, "bus call timed out", ctx.Err())
		}
		outcome = outcomeCancelled
		span.SetStatus(codes.Error, "cancelled")
		return nil, gatewayerr.Wrap(gatewayerr.KindCancelled, "bus call cancelled", ctx.Err())
	}
}

// PendingCount reports the number of in-flight calls, i.e. the size of
// the correlation table, which drains on reply or cancellation.
func (c *Client) PendingCount() int {
	return c.correlation.len()
}

// Close tears down the consumer, channel, and connection in that order.
func (c *Client) Close() error {
	if err := c.publishCh.Close(); err != nil {
		c.conn.Close()
		return fmt.Errorf("busclient: close channel: %w", err)
	}
	return c.conn.Close()
}
