package broker

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Topic names. OrdersTopic carries inbound OrderMessage events. OrdersDLQTopic
// is an operator-visibility sibling that receives a copy of the payload
// whenever the retry queue promotes an entry to dead-letter. It is never
// consumed for retry: broker redelivery is never used to drive retry, all
// retry/backoff state lives in the retry queue.
const (
	OrdersTopic    = "orders"
	OrdersDLQTopic = "orders-dlq"
)

// Connect dials the broker, opens a channel, and declares the topics this
// engine owns. The returned close func tears down the channel then the
// connection, in that order.
func Connect(user, pass, host, port string) (*amqp.Channel, func() error, error) {
	address := fmt.Sprintf("amqp://%s:%s@%s:%s/", user, pass, host, port)

	conn, err := amqp.Dial(address)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareTopics(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, err
	}

	closeFn := func() error {
		if err := ch.Close(); err != nil {
			return err
		}
		return conn.Close()
	}

	return ch, closeFn, nil
}

func declareTopics(ch *amqp.Channel) error {
	for _, name := range []string{OrdersTopic, OrdersDLQTopic} {
		if _, err := ch.QueueDeclare(
			name,  // name
			true,  // durable
			false, // auto-delete
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", name, err)
		}
	}
	return nil
}

// PublishDeadLetter copies a dead-lettered order's raw payload onto
// OrdersDLQTopic for operator visibility. Best-effort: callers log a failure
// here, they never treat it as a processing failure of the order itself.
func PublishDeadLetter(ctx context.Context, ch *amqp.Channel, body []byte) error {
	return ch.PublishWithContext(
		ctx,
		"",
		OrdersDLQTopic,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
			Headers:     InjectTraceContext(ctx),
		},
	)
}

// DeadLetterPublisher adapts an open channel to retryqueue.DeadLetterPublisher,
// so the retry queue can publish to OrdersDLQTopic without importing this
// package directly.
type DeadLetterPublisher struct {
	Channel *amqp.Channel
}

func (p DeadLetterPublisher) PublishDeadLetter(ctx context.Context, body []byte) error {
	return PublishDeadLetter(ctx, p.Channel, body)
}
