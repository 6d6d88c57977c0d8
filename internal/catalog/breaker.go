package catalog

import (
	"sync"
	"time"

	"github.com/tmarchand/order-enrichment/internal/domain"
)

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// breaker is a per-endpoint rolling-window circuit breaker. It tracks the
// outcome of the last window calls; once the failure rate exceeds
// threshold it opens for cooldown, then allows exactly one probe call.
type breaker struct {
	mu         sync.Mutex
	window     int
	threshold  float64
	cooldown   time.Duration
	state      breakerState
	openedAt   time.Time
	outcomes   []bool // true = success
	probeInFlight bool
}

func newBreaker(window int, threshold float64, cooldown time.Duration) *breaker {
	return &breaker{
		window:    window,
		threshold: threshold,
		cooldown:  cooldown,
		state:     stateClosed,
		outcomes:  make([]bool, 0, window),
	}
}

// allow reports whether a call may proceed, transitioning open→half-open
// once cooldown has elapsed. Returns false while open, and while half-open
// with the single probe call already in flight.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return true
	case stateOpen:
		if time.Since(b.openedAt) >= b.cooldown {
			b.state = stateHalfOpen
			b.probeInFlight = false
		} else {
			return false
		}
		fallthrough
	case stateHalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	default:
		return true
	}
}

// record registers the outcome of a call that allow() admitted.
func (b *breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateHalfOpen {
		b.probeInFlight = false
		if success {
			b.state = stateClosed
			b.outcomes = b.outcomes[:0]
		} else {
			b.state = stateOpen
			b.openedAt = time.Now()
		}
		return
	}

	b.outcomes = append(b.outcomes, success)
	if len(b.outcomes) > b.window {
		b.outcomes = b.outcomes[len(b.outcomes)-b.window:]
	}
	if len(b.outcomes) < b.window {
		return
	}

	failures := 0
	for _, ok := range b.outcomes {
		if !ok {
			failures++
		}
	}
	if float64(failures)/float64(len(b.outcomes)) > b.threshold {
		b.state = stateOpen
		b.openedAt = time.Now()
	}
}

func (b *breaker) stateGauge() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case stateOpen:
		return 1
	case stateHalfOpen:
		return 2
	default:
		return 0
	}
}

// errUnavailable is returned in place of the wrapped call when the breaker
// is open or a half-open slot is already occupied.
func errUnavailable(endpoint string) error {
	return domain.NewUnavailable(endpoint)
}
