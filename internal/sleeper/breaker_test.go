package sleeper

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestBreaker(threshold int, reset time.Duration) (*breaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := newBreaker(threshold, reset)
	b.now = clock.now
	return b, clock
}

func TestBreaker_ClosedToOpen(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	if !b.allow() {
		t.Fatal("closed breaker should allow calls")
	}
	b.failure()
	b.failure()
	if b.current() != breakerClosed {
		t.Fatalf("state = %s after 2 failures, want closed", b.current())
	}
	b.failure()
	if b.current() != breakerOpen {
		t.Fatalf("state = %s after 3 failures, want open", b.current())
	}
	if b.allow() {
		t.Fatal("open breaker should reject calls")
	}
}

func TestBreaker_HalfOpenTrialRequest(t *testing.T) {
	b, clock := newTestBreaker(1, 10*time.Second)

	b.failure()
	clock.t = clock.t.Add(11 * time.Second)

	if !b.allow() {
		t.Fatal("breaker should let a trial request through after reset timeout")
	}
	if b.current() != breakerHalfOpen {
		t.Fatalf("state = %s, want half-open", b.current())
	}
	if b.allow() {
		t.Fatal("half-open breaker should reject concurrent calls")
	}

	b.success()
	if b.current() != breakerClosed {
		t.Fatalf("state = %s after trial success, want closed", b.current())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(2, 10*time.Second)

	b.failure()
	b.failure()
	clock.t = clock.t.Add(time.Minute)
	b.allow()
	b.failure()

	if b.current() != breakerOpen {
		t.Fatalf("state = %s after trial failure, want open", b.current())
	}
	if b.allow() {
		t.Fatal("re-opened breaker should reject until the next reset timeout")
	}
}

func TestBreakerState_String(t *testing.T) {
	tests := map[breakerState]string{
		breakerClosed:   "closed",
		breakerOpen:     "open",
		breakerHalfOpen: "half-open",
		breakerState(9): "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", s, got, want)
		}
	}
}
