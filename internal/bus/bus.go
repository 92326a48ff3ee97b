// Package bus carries chat traffic between channels (Telegram) and the
// gateway loop that drives the engine.
package bus

import (
	"context"
	"sync"
	"time"
)

// ChannelTelegram names the Telegram channel.
const ChannelTelegram = "telegram"

// DefaultBuffer is the queue depth used by New(0).
const DefaultBuffer = 100

// Inbound is a user message waiting for a turn.
type Inbound struct {
	ID       string
	Channel  string
	SenderID string
	ChatID   string
	Text     string
	Received time.Time
}

// Outbound is a reply. Text is Markdown; HTML and Plain are the channel
// renderings when the gateway produced them. An Outbound with no text ends a
// turn without sending anything.
type Outbound struct {
	Channel string
	ChatID  string
	Text    string
	HTML    string
	Plain   string
}

// Bus is a pair of buffered queues. Publishing after Close drops the message.
type Bus struct {
	inbound  *queue[Inbound]
	outbound *queue[Outbound]
	closed   chan struct{}
	once     sync.Once
}

func New(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	closed := make(chan struct{})
	return &Bus{
		inbound:  &queue[Inbound]{ch: make(chan Inbound, buffer), closed: closed},
		outbound: &queue[Outbound]{ch: make(chan Outbound, buffer), closed: closed},
		closed:   closed,
	}
}

func (b *Bus) PublishInbound(msg Inbound) { b.inbound.publish(msg) }

// ConsumeInbound blocks until a message arrives, ctx ends or the bus closes.
func (b *Bus) ConsumeInbound(ctx context.Context) (Inbound, bool) {
	return b.inbound.consume(ctx)
}

func (b *Bus) PublishOutbound(msg Outbound) { b.outbound.publish(msg) }

// SubscribeOutbound blocks like ConsumeInbound.
func (b *Bus) SubscribeOutbound(ctx context.Context) (Outbound, bool) {
	return b.outbound.consume(ctx)
}

func (b *Bus) Close() {
	b.once.Do(func() { close(b.closed) })
}

type queue[T any] struct {
	ch     chan T
	closed <-chan struct{}
}

func (q *queue[T]) publish(v T) {
	select {
	case <-q.closed:
		return
	default:
	}
	select {
	case q.ch <- v:
	case <-q.closed:
	}
}

func (q *queue[T]) consume(ctx context.Context) (T, bool) {
	var zero T
	select {
	case v := <-q.ch:
		return v, true
	case <-ctx.Done():
		return zero, false
	case <-q.closed:
		return zero, false
	}
}
