// Package pipeline wires the lock, enricher, and retry queue into the
// single per-order flow that both the consumer (C6) and the scheduler
// (C7) drive: acquire the lock, enrich, clear any live retry entry on
// success, record the failure on the retry queue otherwise.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/tmarchand/order-enrichment/internal/domain"
)

// Locker is the subset of C3 the pipeline depends on.
type Locker interface {
	WithLock(ctx context.Context, orderID string, body func(ctx context.Context) error) error
}

// Enricher is the subset of C5 the pipeline depends on.
type Enricher interface {
	Enrich(ctx context.Context, msg domain.OrderMessage) (domain.EnrichedOrder, error)
}

// RetryQueue is the subset of C4 the pipeline depends on.
type RetryQueue interface {
	Record(ctx context.Context, msg domain.OrderMessage, cause error) error
	Clear(ctx context.Context, orderID string) error
}

// Pipeline drives one order through lock -> enrich -> clear/record. A
// failure inside Process is never returned as a fatal error to its
// caller: it is captured in the retry queue and the caller always acks
// or moves on to the next candidate.
type Pipeline struct {
	lock   Locker
	enrich Enricher
	retry  RetryQueue
	log    *slog.Logger
}

func New(lock Locker, enrich Enricher, retry RetryQueue, log *slog.Logger) *Pipeline {
	return &Pipeline{lock: lock, enrich: enrich, retry: retry, log: log}
}

// Process runs the order through the pipeline once. A returned error
// means the attempt failed and was handed to the retry queue (a failure
// of that write is logged, and the original error is still returned); it
// never means the caller should retry delivery itself.
func (p *Pipeline) Process(ctx context.Context, msg domain.OrderMessage) error {
	err := p.lock.WithLock(ctx, msg.OrderID, func(ctx context.Context) error {
		_, enrichErr := p.enrich.Enrich(ctx, msg)
		return enrichErr
	})
	if err != nil {
		if recErr := p.retry.Record(ctx, msg, err); recErr != nil {
			p.log.Error("failed recording retry entry", "orderId", msg.OrderID, "err", recErr)
		}
		return err
	}

	if clearErr := p.retry.Clear(ctx, msg.OrderID); clearErr != nil {
		p.log.Error("failed clearing retry entry", "orderId", msg.OrderID, "err", clearErr)
	}
	return nil
}

// RecordMalformed captures a payload that failed to parse or validate
// before it ever reached enrichment. It satisfies consumer.MalformedRecorder.
// The message is decoded best-effort: a body that isn't even valid JSON
// still gets recorded under whatever orderId (possibly empty) we can
// salvage, so the failure is never silently dropped.
func (p *Pipeline) RecordMalformed(ctx context.Context, body []byte, cause error) error {
	var msg domain.OrderMessage
	_ = json.Unmarshal(body, &msg)
	return p.retry.Record(ctx, msg, domain.NewMalformed(cause.Error()))
}
