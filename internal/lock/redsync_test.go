package lock

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmarchand/order-enrichment/common/metrics"
	"github.com/tmarchand/order-enrichment/internal/domain"
)

func testService(t *testing.T, cfg Config) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	m := metrics.NewLockMetricsWith(prometheus.NewRegistry(), "lock_test")
	return NewService(client, cfg, m, slog.Default())
}

func TestWithLock_RunsBodyOnce(t *testing.T) {
	svc := testService(t, DefaultConfig())

	var ran int
	err := svc.WithLock(context.Background(), "order-1", func(ctx context.Context) error {
		ran++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, ran)
}

func TestWithLock_SerializesConcurrentAttempts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WaitTime = 2 * time.Second
	svc := testService(t, cfg)

	var active atomic.Int32
	var maxActive atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = svc.WithLock(context.Background(), "order-1", func(ctx context.Context) error {
				n := active.Add(1)
				for {
					cur := maxActive.Load()
					if n <= cur || maxActive.CompareAndSwap(cur, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				active.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive.Load())
}

func TestWithLock_TimesOutWhenHeldElsewhere(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WaitTime = 200 * time.Millisecond
	svc := testService(t, cfg)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = svc.WithLock(context.Background(), "order-1", func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	defer close(release)

	err := svc.WithLock(context.Background(), "order-1", func(ctx context.Context) error {
		t.Fatal("body must not run when acquisition times out")
		return nil
	})

	require.Error(t, err)
	kind, ok := domain.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindLockUnavailable, kind)
}

func TestWithLock_ReleasesOnPanicRecoveryPath(t *testing.T) {
	svc := testService(t, DefaultConfig())

	func() {
		defer func() { _ = recover() }()
		_ = svc.WithLock(context.Background(), "order-1", func(ctx context.Context) error {
			panic("boom")
		})
	}()

	var ran bool
	err := svc.WithLock(context.Background(), "order-1", func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}
