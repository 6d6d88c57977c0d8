package broker

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
)

// InjectTraceContext injects the current span's trace context into AMQP
// message headers using the W3C TraceContext propagator.
func InjectTraceContext(ctx context.Context) amqp.Table {
	headers := make(amqp.Table)
	carrier := &AMQPHeadersCarrier{headers: headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return headers
}

// ExtractTraceContext recovers a trace context previously injected into
// AMQP message headers.
func ExtractTraceContext(ctx context.Context, headers amqp.Table) context.Context {
	carrier := &AMQPHeadersCarrier{headers: headers}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// AMQPHeadersCarrier adapts amqp.Table to propagation.TextMapCarrier.
type AMQPHeadersCarrier struct {
	headers amqp.Table
}

func (c *AMQPHeadersCarrier) Get(key string) string {
	if val, ok := c.headers[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func (c *AMQPHeadersCarrier) Set(key, value string) {
	c.headers[key] = value
}

func (c *AMQPHeadersCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for k := range c.headers {
		keys = append(keys, k)
	}
	return keys
}
