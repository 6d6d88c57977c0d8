package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redsync/redsync/v4"
	goredis "github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"

	"github.com/tmarchand/order-enrichment/common/metrics"
	"github.com/tmarchand/order-enrichment/internal/domain"
)

const keyPrefix = "order-lock:"

// Config holds C3's two tunables: how long to wait to acquire, and the
// lease after which the lock store auto-releases an abandoned holder.
type Config struct {
	WaitTime  time.Duration
	LeaseTime time.Duration
}

func DefaultConfig() Config {
	return Config{
		WaitTime:  10 * time.Second,
		LeaseTime: 30 * time.Second,
	}
}

// Service is C3: Redlock-style per-orderId mutual exclusion. A held lock
// is released on every exit path of WithLock, including panics.
type Service struct {
	rs      *redsync.Redsync
	client  *redis.Client
	cfg     Config
	metrics *metrics.LockMetrics
	log     *slog.Logger
}

func NewService(client *redis.Client, cfg Config, m *metrics.LockMetrics, log *slog.Logger) *Service {
	pool := goredis.NewPool(client)
	return &Service{
		rs:      redsync.New(pool),
		client:  client,
		cfg:     cfg,
		metrics: m,
		log:     log,
	}
}

// WithLock acquires the named lock, runs body, and releases the lock
// unconditionally on every exit. If acquisition does not complete within
// WaitTime, body never runs and LockUnavailable is returned.
func (s *Service) WithLock(ctx context.Context, orderID string, body func(ctx context.Context) error) error {
	start := time.Now()

	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.WaitTime)
	defer cancel()

	mutex := s.rs.NewMutex(
		keyPrefix+orderID,
		redsync.WithExpiry(s.cfg.LeaseTime),
		redsync.WithTries(1),
	)

	acquired := false
	for {
		if err := mutex.LockContext(waitCtx); err != nil {
			var taken *redsync.ErrTaken
			if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
				select {
				case <-waitCtx.Done():
					s.metrics.AcquireTotal.WithLabelValues("timeout").Inc()
					return domain.NewLockUnavailable(orderID)
				case <-time.After(50 * time.Millisecond):
					continue
				}
			}
			s.metrics.AcquireTotal.WithLabelValues("error").Inc()
			return domain.NewLockUnavailable(orderID)
		}
		acquired = true
		break
	}
	if !acquired {
		s.metrics.AcquireTotal.WithLabelValues("timeout").Inc()
		return domain.NewLockUnavailable(orderID)
	}

	s.metrics.AcquireTotal.WithLabelValues("acquired").Inc()
	s.metrics.AcquireLatency.Observe(time.Since(start).Seconds())

	defer func() {
		// Unlock is resilient to the lock having already expired: a false/err
		// result here means the lease was gone, which is not a correctness
		// problem (the next holder already owns the key).
		if ok, err := mutex.Unlock(); !ok || err != nil {
			s.log.Warn("lock release observed expired lease", "orderId", orderID, "err", err)
		}
	}()

	return body(ctx)
}

// IsLocked is advisory only. It must never be used for mutual exclusion.
func (s *Service) IsLocked(ctx context.Context, orderID string) (bool, error) {
	n, err := s.client.Exists(ctx, keyPrefix+orderID).Result()
	if err != nil {
		return false, fmt.Errorf("check lock existence: %w", err)
	}
	return n > 0, nil
}
