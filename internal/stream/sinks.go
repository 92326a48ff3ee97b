package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// Channel is a Sink backed by a buffered channel.
type Channel struct {
	ch   chan Event
	once sync.Once
}

// NewChannel returns a channel sink with the given buffer.
func NewChannel(buffer int) *Channel {
	return &Channel{ch: make(chan Event, buffer)}
}

// Emit blocks until the event is buffered or ctx ends.
func (c *Channel) Emit(ctx context.Context, ev Event) error {
	select {
	case c.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events is the receive side.
func (c *Channel) Events() <-chan Event { return c.ch }

// Close ends the stream. Emit must not be called afterwards.
func (c *Channel) Close() { c.once.Do(func() { close(c.ch) }) }

// Recorder keeps every event and the latest view of each fragment.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	order  []string
	last   map[string]Event
}

func NewRecorder() *Recorder {
	return &Recorder{last: make(map[string]Event)}
}

func (r *Recorder) Emit(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if _, ok := r.last[ev.FragmentID]; !ok {
		r.order = append(r.order, ev.FragmentID)
	}
	r.last[ev.FragmentID] = ev
	return nil
}

// Events returns a copy of everything emitted so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Final returns the fragments that reached StateFinal, in first-seen order.
func (r *Recorder) Final() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, id := range r.order {
		if ev := r.last[id]; ev.State == StateFinal {
			out = append(out, ev)
		}
	}
	return out
}

// SetSSEHeaders applies headers that keep event streams stable across proxies.
func SetSSEHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Set("X-Content-Type-Options", "nosniff")
}

// WriteSSE writes one named event with a JSON payload.
func WriteSSE(w http.ResponseWriter, event string, id string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if id != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}

// SSE is a Sink that writes fragment events straight to a response.
type SSE struct {
	w  http.ResponseWriter
	mu sync.Mutex
}

// NewSSE sets the stream headers on w and returns the sink.
func NewSSE(w http.ResponseWriter) *SSE {
	SetSSEHeaders(w)
	return &SSE{w: w}
}

func (s *SSE) Emit(_ context.Context, ev Event) error {
	return s.Send("fragment", fmt.Sprint(ev.Seq), ev)
}

// Send writes a named event and flushes.
func (s *SSE) Send(event, id string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := WriteSSE(s.w, event, id, payload); err != nil {
		return err
	}
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
