// Package stream carries fragment updates from a running turn to whichever
// surface is listening. Each fragment moves Pending -> Updating -> Final and
// never changes after Final.
package stream

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/anatolykoptev/huddle/internal/render"
)

// State is a fragment's place in its lifecycle.
type State string

const (
	StatePending  State = "pending"
	StateUpdating State = "updating"
	StateFinal    State = "final"
)

// ErrFinalized is returned when a fragment is touched after Done.
var ErrFinalized = errors.New("stream: fragment already final")

// Event is one fragment transition.
type Event struct {
	Seq        int64           `json:"seq"`
	ChatID     string          `json:"chat_id"`
	FragmentID string          `json:"fragment_id"`
	State      State           `json:"state"`
	Fragment   render.Fragment `json:"fragment"`
}

// Sink receives events in order.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Emit(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })

// Stream numbers events for one chat and hands out fragment handles.
type Stream struct {
	chatID string
	sink   Sink

	mu  sync.Mutex
	seq int64
}

// New returns a stream writing to sink. A nil sink discards.
func New(chatID string, sink Sink) *Stream {
	if sink == nil {
		sink = Discard
	}
	return &Stream{chatID: chatID, sink: sink}
}

func (s *Stream) emit(ctx context.Context, id string, state State, v render.View) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.sink.Emit(ctx, Event{
		Seq:        s.seq,
		ChatID:     s.chatID,
		FragmentID: id,
		State:      state,
		Fragment:   render.New(id, v),
	})
}

// Begin opens a fragment in the Pending state.
func (s *Stream) Begin(ctx context.Context, v render.View) (*Handle, error) {
	h := &Handle{s: s, id: uuid.NewString(), state: StatePending}
	if err := s.emit(ctx, h.id, StatePending, v); err != nil {
		return nil, err
	}
	return h, nil
}

// Final emits a fragment that is complete from the start.
func (s *Stream) Final(ctx context.Context, v render.View) (string, error) {
	id := uuid.NewString()
	return id, s.emit(ctx, id, StateFinal, v)
}

// Handle is one open fragment.
type Handle struct {
	s  *Stream
	id string

	mu    sync.Mutex
	state State
}

// ID is the stable fragment id.
func (h *Handle) ID() string { return h.id }

// State reports the last state emitted.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Update replaces the fragment content and keeps it open.
func (h *Handle) Update(ctx context.Context, v render.View) error {
	return h.move(ctx, StateUpdating, v)
}

// Done replaces the fragment content and closes it.
func (h *Handle) Done(ctx context.Context, v render.View) error {
	return h.move(ctx, StateFinal, v)
}

func (h *Handle) move(ctx context.Context, next State, v render.View) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StateFinal {
		return ErrFinalized
	}
	h.state = next
	return h.s.emit(ctx, h.id, next, v)
}
