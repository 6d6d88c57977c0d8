package retryqueue

import (
	"math"
	"time"
)

// nextDelay computes min(initialDelay · multiplier^(attempt-1), maxDelay),
// the backoff formula named in §4.4 and §8. cenkalti/backoff models this
// same curve via ExponentialBackOff; here it is inlined because the retry
// queue needs the delay as a pure value to stamp into nextRetryAt rather
// than as a stateful ticker driving an in-process retry loop.
func nextDelay(cfg Config, attempt int) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}
