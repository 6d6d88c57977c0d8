package retryqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tmarchand/order-enrichment/common/metrics"
	"github.com/tmarchand/order-enrichment/internal/domain"
)

const (
	entryKeyPrefix      = "failed_messages:"
	attemptsKeyPrefix   = "failed_attempts:"
	nextRetryKeyPrefix  = "failed_next_retry:"
	failedSetKey        = "failed_messages_set"
	deadLetterKeyPrefix = "dead_letter:"
	deadLetterSetKey    = "dead_letter_queue"
)

// Config holds the retry/backoff tunables from §4.4.
type Config struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	MaxAttempts  int
}

func DefaultConfig() Config {
	return Config{
		InitialDelay: time.Second,
		Multiplier:   2,
		MaxDelay:     5 * time.Minute,
		MaxAttempts:  5,
	}
}

// Entry is C4's FailedEntry, as read back by Due callers.
type Entry struct {
	OrderID         string              `json:"orderId"`
	Message         domain.OrderMessage `json:"message"`
	LastError       string              `json:"lastError"`
	AttemptCount    int                 `json:"attemptCount"`
	FirstFailedAt   time.Time           `json:"firstFailedAt"`
	NextRetryAt     time.Time           `json:"nextRetryAt"`
}

// DeadLetterPublisher copies a promoted entry's payload onto the
// operator-visibility dead-letter sink (common/broker.OrdersDLQTopic in
// production). Implementations must be best-effort: a publish failure is
// logged by the caller and never turned into a Record failure, since the
// dead-letter write to Redis above is the durable source of truth.
type DeadLetterPublisher interface {
	PublishDeadLetter(ctx context.Context, body []byte) error
}

// Queue is C4: the durable retry store with per-message attempt counter,
// next-retry timestamp, and a dead-letter sink.
type Queue struct {
	client     *redis.Client
	cfg        Config
	metrics    *metrics.RetryQueueMetrics
	log        *slog.Logger
	deadLetter DeadLetterPublisher
}

func NewQueue(client *redis.Client, cfg Config, m *metrics.RetryQueueMetrics, log *slog.Logger, dl DeadLetterPublisher) *Queue {
	return &Queue{client: client, cfg: cfg, metrics: m, log: log, deadLetter: dl}
}

// Record increments the attempt counter (creating it at 1 if absent) and
// writes a fresh retry entry with a computed nextRetryAt. Once the
// incremented count exceeds maxAttempts, the live entry is removed and a
// DeadLetter is written instead. The increment runs in a WATCH/MULTI
// transaction; the entry, its next-retry timestamp and its set membership
// are then written together in a second MULTI, so Due (which reads only
// the entry) sees either the previous entry or the new one, never a
// partially written one.
func (q *Queue) Record(ctx context.Context, msg domain.OrderMessage, cause error) error {
	key := attemptsKeyPrefix + msg.OrderID

	var attempt int64
	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		attempt = cur + 1

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, attempt, 0)
			return nil
		})
		return err
	}
	if err := q.client.Watch(ctx, txf, key); err != nil {
		return domain.NewRetryStore(fmt.Errorf("increment attempt counter: %w", err))
	}

	now := time.Now().UTC()
	errMsg := ""
	if cause != nil {
		errMsg = cause.Error()
	}

	// Keep the time of the first failure across repeated failures.
	firstFailedAt := now
	if raw, err := q.client.Get(ctx, entryKeyPrefix+msg.OrderID).Result(); err == nil {
		var prev Entry
		if json.Unmarshal([]byte(raw), &prev) == nil && !prev.FirstFailedAt.IsZero() {
			firstFailedAt = prev.FirstFailedAt
		}
	}

	if int(attempt) > q.cfg.MaxAttempts {
		if err := q.promoteToDeadLetter(ctx, msg, errMsg, int(attempt), firstFailedAt); err != nil {
			return err
		}
		q.metrics.DeadLetteredTotal.Inc()
		return nil
	}

	entry := Entry{
		OrderID:       msg.OrderID,
		Message:       msg,
		LastError:     errMsg,
		AttemptCount:  int(attempt),
		FirstFailedAt: firstFailedAt,
		NextRetryAt:   now.Add(nextDelay(q.cfg, int(attempt))),
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return domain.NewRetryStore(fmt.Errorf("marshal retry entry: %w", err))
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, entryKeyPrefix+msg.OrderID, payload, 0)
	pipe.Set(ctx, nextRetryKeyPrefix+msg.OrderID, entry.NextRetryAt.UnixMilli(), 0)
	pipe.SAdd(ctx, failedSetKey, msg.OrderID)
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.NewRetryStore(fmt.Errorf("write retry entry: %w", err))
	}

	q.metrics.RecordedTotal.Inc()
	return nil
}

func (q *Queue) promoteToDeadLetter(ctx context.Context, msg domain.OrderMessage, lastError string, attempt int, firstFailedAt time.Time) error {
	entry := Entry{
		OrderID:       msg.OrderID,
		Message:       msg,
		LastError:     lastError,
		AttemptCount:  attempt,
		FirstFailedAt: firstFailedAt,
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return domain.NewRetryStore(fmt.Errorf("marshal dead letter: %w", err))
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, deadLetterKeyPrefix+msg.OrderID, payload, 0)
	pipe.SAdd(ctx, deadLetterSetKey, msg.OrderID)
	pipe.Del(ctx, entryKeyPrefix+msg.OrderID, nextRetryKeyPrefix+msg.OrderID, attemptsKeyPrefix+msg.OrderID)
	pipe.SRem(ctx, failedSetKey, msg.OrderID)
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.NewRetryStore(fmt.Errorf("write dead letter: %w", err))
	}

	if q.deadLetter != nil {
		if err := q.deadLetter.PublishDeadLetter(ctx, payload); err != nil {
			q.log.Error("failed to publish dead letter for operator visibility", "orderId", msg.OrderID, "err", err)
		}
	}
	return nil
}

// Due enumerates the failed-set and returns only entries whose
// nextRetryAt has elapsed.
func (q *Queue) Due(ctx context.Context, now time.Time) ([]Entry, error) {
	orderIDs, err := q.client.SMembers(ctx, failedSetKey).Result()
	if err != nil {
		return nil, domain.NewRetryStore(fmt.Errorf("list failed set: %w", err))
	}

	due := make([]Entry, 0, len(orderIDs))
	for _, orderID := range orderIDs {
		raw, err := q.client.Get(ctx, entryKeyPrefix+orderID).Result()
		if err == redis.Nil {
			continue // cleared concurrently
		}
		if err != nil {
			return nil, domain.NewRetryStore(fmt.Errorf("read entry %s: %w", orderID, err))
		}

		var entry Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, domain.NewRetryStore(fmt.Errorf("unmarshal entry %s: %w", orderID, err))
		}

		if !entry.NextRetryAt.After(now) {
			due = append(due, entry)
		}
	}

	q.metrics.DueGauge.Set(float64(len(due)))
	return due, nil
}

// Clear removes both the retry entry and its set membership. Idempotent.
func (q *Queue) Clear(ctx context.Context, orderID string) error {
	pipe := q.client.TxPipeline()
	pipe.Del(ctx, entryKeyPrefix+orderID, nextRetryKeyPrefix+orderID, attemptsKeyPrefix+orderID)
	pipe.SRem(ctx, failedSetKey, orderID)
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.NewRetryStore(fmt.Errorf("clear entry %s: %w", orderID, err))
	}
	q.metrics.ClearedTotal.Inc()
	return nil
}

// AttemptCount reports the current attempt counter for orderID, or 0 if
// absent.
func (q *Queue) AttemptCount(ctx context.Context, orderID string) (int, error) {
	n, err := q.client.Get(ctx, attemptsKeyPrefix+orderID).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, domain.NewRetryStore(fmt.Errorf("read attempt count: %w", err))
	}
	return n, nil
}

// Requeue moves a DeadLetter entry back into the live retry set with a
// fresh attemptCount of 1, for operator use. It is never invoked
// automatically by this engine.
func (q *Queue) Requeue(ctx context.Context, orderID string) error {
	raw, err := q.client.Get(ctx, deadLetterKeyPrefix+orderID).Result()
	if err == redis.Nil {
		return domain.NewNotFound("deadLetter", orderID)
	}
	if err != nil {
		return domain.NewRetryStore(fmt.Errorf("read dead letter %s: %w", orderID, err))
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return domain.NewRetryStore(fmt.Errorf("unmarshal dead letter %s: %w", orderID, err))
	}

	now := time.Now().UTC()
	entry.AttemptCount = 1
	entry.FirstFailedAt = now
	entry.NextRetryAt = now.Add(q.cfg.InitialDelay)

	payload, err := json.Marshal(entry)
	if err != nil {
		return domain.NewRetryStore(fmt.Errorf("marshal requeue entry: %w", err))
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, entryKeyPrefix+orderID, payload, 0)
	pipe.Set(ctx, attemptsKeyPrefix+orderID, 1, 0)
	pipe.Set(ctx, nextRetryKeyPrefix+orderID, entry.NextRetryAt.UnixMilli(), 0)
	pipe.SAdd(ctx, failedSetKey, orderID)
	pipe.Del(ctx, deadLetterKeyPrefix+orderID)
	pipe.SRem(ctx, deadLetterSetKey, orderID)
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.NewRetryStore(fmt.Errorf("write requeue entry: %w", err))
	}
	return nil
}
