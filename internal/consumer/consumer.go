package consumer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/tmarchand/order-enrichment/common/broker"
	"github.com/tmarchand/order-enrichment/internal/domain"
)

// Pipeline is the shape C6 drives a message through: acquire the lock,
// enrich, and clear any live retry entry on success. It is the same
// pipeline the scheduler (C7) drives for due retry entries.
type Pipeline interface {
	Process(ctx context.Context, msg domain.OrderMessage) error
}

// Consumer is C6: reads the orders topic and hands messages to the
// pipeline under a lock, acking unconditionally after one attempt.
// Redelivery from the broker is never used for retry.
type Consumer struct {
	pipeline    Pipeline
	concurrency int
	instanceID  string
	logger      *slog.Logger
}

func New(pipeline Pipeline, concurrency int, logger *slog.Logger) *Consumer {
	if concurrency <= 0 {
		concurrency = 3
	}
	return &Consumer{
		pipeline:    pipeline,
		concurrency: concurrency,
		instanceID:  uuid.NewString(),
		logger:      logger,
	}
}

// Listen consumes the orders queue until ctx is cancelled. It spawns
// Consumer.concurrency workers pulling from the same delivery channel;
// per-order serialization is guaranteed by the lock service, not here.
func (c *Consumer) Listen(ctx context.Context, ch *amqp.Channel) error {
	msgs, err := ch.Consume(
		broker.OrdersTopic,
		"",
		false, // auto-ack: false, this consumer always acks explicitly
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}
	c.logger.Info("consumer listening", "instanceId", c.instanceID, "concurrency", c.concurrency)

	for i := 0; i < c.concurrency; i++ {
		go c.worker(ctx, msgs)
	}

	<-ctx.Done()
	return ctx.Err()
}

func (c *Consumer) worker(ctx context.Context, msgs <-chan amqp.Delivery) {
	tracer := otel.Tracer("order-enrichment")
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-msgs:
			if !ok {
				return
			}
			c.handle(ctx, tracer, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, tracer trace.Tracer, d amqp.Delivery) {
	spanCtx := broker.ExtractTraceContext(ctx, d.Headers)
	spanCtx, span := tracer.Start(spanCtx, "orders.consume")
	defer span.End()

	var msg domain.OrderMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.logger.Warn("malformed order message", "err", err)
		if recErr := c.recordMalformed(spanCtx, d.Body, err); recErr != nil {
			c.logger.Error("failed recording malformed message", "err", recErr)
		}
		_ = d.Ack(false)
		return
	}
	if err := msg.Validate(); err != nil {
		c.logger.Warn("malformed order message", "orderId", msg.OrderID, "err", err)
		if recErr := c.recordMalformed(spanCtx, d.Body, err); recErr != nil {
			c.logger.Error("failed recording malformed message", "err", recErr)
		}
		_ = d.Ack(false)
		return
	}

	if err := c.pipeline.Process(spanCtx, msg); err != nil {
		c.logger.Warn("order processing failed, recorded for retry", "orderId", msg.OrderID, "err", err)
	}

	// Always ack after one attempt: the broker is never used for retry.
	_ = d.Ack(false)
}

func (c *Consumer) recordMalformed(ctx context.Context, body []byte, cause error) error {
	if recorder, ok := c.pipeline.(MalformedRecorder); ok {
		return recorder.RecordMalformed(ctx, body, cause)
	}
	return nil
}

// MalformedRecorder lets a pipeline optionally capture unparseable payloads
// in the retry queue (they will exhaust attempts and land in the DLQ, per
// §7's uniform-flow policy for Malformed).
type MalformedRecorder interface {
	RecordMalformed(ctx context.Context, body []byte, cause error) error
}
