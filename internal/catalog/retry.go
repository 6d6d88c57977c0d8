package catalog

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/tmarchand/order-enrichment/internal/domain"
)

// retryConfig configures the exponential-backoff retry wrapper around a
// single catalog endpoint call.
type retryConfig struct {
	maxAttempts int
	initialWait time.Duration
	multiplier  float64
	jitter      float64
}

func defaultRetryConfig() retryConfig {
	return retryConfig{
		maxAttempts: 3,
		initialWait: time.Second,
		multiplier:  2,
		jitter:      0.2,
	}
}

// withRetry runs op up to cfg.maxAttempts times, retrying only on Upstream
// errors. NotFound and any other domain error short-circuits immediately.
func withRetry[T any](ctx context.Context, cfg retryConfig, op func(context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.initialWait
	b.Multiplier = cfg.multiplier
	b.RandomizationFactor = cfg.jitter

	return backoff.Retry(ctx, func() (T, error) {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if kind, ok := domain.KindOf(err); ok && kind == domain.KindUpstream {
			return v, err
		}
		return v, backoff.Permanent(err)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(cfg.maxAttempts)),
	)
}
