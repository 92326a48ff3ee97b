// Package session holds the live, in-process side of a chat: the turn lock
// that serialises turns and the owner index filled by league lookups.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anatolykoptev/huddle/internal/sleeper"
)

// ErrClosed is returned by Lock when the session was closed before the lock
// was obtained. Callers acquire a fresh session and retry.
var ErrClosed = errors.New("session: closed")

// Session is the runtime state of one chat. It dies on idle timeout or
// Delete; the stored conversation outlives it.
type Session struct {
	chatID string
	owners atomic.Pointer[sleeper.OwnerIndex]
	turn   chan struct{}

	// mu orders closing against taking the turn lock.
	mu     sync.Mutex
	closed atomic.Bool

	idleTimer   *time.Timer
	idleTimeout time.Duration
}

// New creates a session. onIdle runs once the session has gone unused for
// idleTimeout and decides whether to close it; with a nil onIdle the session
// closes itself unless a turn is running. A zero timeout disables eviction.
func New(chatID string, idleTimeout time.Duration, onIdle func(*Session)) *Session {
	s := &Session{
		chatID:      chatID,
		turn:        make(chan struct{}, 1),
		idleTimeout: idleTimeout,
	}
	s.owners.Store(sleeper.NewOwnerIndex())
	if idleTimeout > 0 {
		s.idleTimer = time.AfterFunc(idleTimeout, func() {
			if onIdle != nil {
				onIdle(s)
				return
			}
			s.closeIdle()
		})
	}
	return s
}

// ChatID returns the chat this session belongs to.
func (s *Session) ChatID() string { return s.chatID }

// Owners is the roster owner cache scoped to this chat.
func (s *Session) Owners() *sleeper.OwnerIndex { return s.owners.Load() }

// forget drops what the session learned so far.
func (s *Session) forget() { s.owners.Store(sleeper.NewOwnerIndex()) }

// Lock waits for the turn lock. Only one turn of a chat runs at a time.
// A session closed while waiting yields ErrClosed.
func (s *Session) Lock(ctx context.Context) error {
	select {
	case s.turn <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		<-s.turn
		return ErrClosed
	}
	s.resetIdle()
	return nil
}

// Busy reports whether a turn holds or waits for the lock.
func (s *Session) Busy() bool { return len(s.turn) > 0 }

// Unlock releases the turn lock.
func (s *Session) Unlock() {
	s.resetIdle()
	<-s.turn
}

// Closed reports whether the session was closed.
func (s *Session) Closed() bool { return s.closed.Load() }

// Close stops the idle timer. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

// closeIdle closes the session unless a turn holds it, in which case the idle
// timer is rearmed. It reports whether the session was closed.
func (s *Session) closeIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Busy() {
		s.resetIdle()
		return false
	}
	slog.Info("session idle timeout", slog.String("chat_id", s.chatID))
	s.closeLocked()
	return true
}

func (s *Session) closeLocked() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
}

func (s *Session) resetIdle() {
	if s.idleTimer != nil && !s.closed.Load() {
		s.idleTimer.Reset(s.idleTimeout)
	}
}

type ctxKey struct{}

// WithSession attaches s to ctx for tools that need the owner index.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session attached by WithSession, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}
