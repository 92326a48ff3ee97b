package sleeper

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// breakerState is the circuit breaker state.
type breakerState int

const (
	breakerClosed   breakerState = iota // normal operation
	breakerOpen                         // upstream failing, reject calls
	breakerHalfOpen                     // one trial request in flight
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen wraps fetches rejected while the upstream is considered down.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// breaker stops hammering api.sleeper.app after repeated network or 5xx failures.
// Retries happen below it in the transport, so one failed fetch counts once.
type breaker struct {
	mu           sync.Mutex
	state        breakerState
	failures     int
	openedAt     time.Time
	threshold    int
	resetTimeout time.Duration
	now          func() time.Time
}

func newBreaker(threshold int, resetTimeout time.Duration) *breaker {
	if threshold < 1 {
		threshold = 1
	}
	return &breaker{
		threshold:    threshold,
		resetTimeout: resetTimeout,
		now:          time.Now,
	}
}

// allow reports whether a fetch may proceed. An open breaker lets a single
// trial request through once resetTimeout has elapsed.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerOpen:
		if b.now().Sub(b.openedAt) < b.resetTimeout {
			return false
		}
		b.state = breakerHalfOpen
		slog.Info("sleeper breaker half-open, probing")
		return true
	case breakerHalfOpen:
		return false
	default:
		return true
	}
}

func (b *breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == breakerHalfOpen {
		slog.Info("sleeper breaker closed after successful trial request")
	}
	b.state = breakerClosed
	b.failures = 0
}

func (b *breaker) failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.state == breakerHalfOpen || b.failures >= b.threshold {
		if b.state != breakerOpen {
			slog.Warn("sleeper breaker opened",
				slog.Int("failures", b.failures),
				slog.Int("threshold", b.threshold))
		}
		b.state = breakerOpen
		b.openedAt = b.now()
	}
}

func (b *breaker) current() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
