package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/anatolykoptev/huddle/internal/bus"
	"github.com/anatolykoptev/huddle/internal/chat"
	"github.com/anatolykoptev/huddle/internal/conversation"
	"github.com/anatolykoptev/huddle/internal/render"
	"github.com/anatolykoptev/huddle/internal/stream"
	"github.com/anatolykoptev/huddle/internal/telegram"
)

const (
	greeting = "Hi! I can look up Sleeper users, leagues and rosters. Try \"Tell me about the Sleeper user testuser\".\n\n" +
		"Commands: /reset clears this chat, /buy SYMBOL PRICE AMOUNT runs the stock purchase demo."
	buyUsage = "Usage: /buy SYMBOL PRICE AMOUNT, for example /buy AAPL 150.25 10"
	busyReply = "Still working on your earlier messages, please wait."
)

// gateway turns inbound bus messages into engine turns. Messages of one chat
// are handled in arrival order; different chats run in parallel.
type gateway struct {
	engine *chat.Engine
	bus    *bus.Bus

	// lanes holds the pending messages of each chat with a running worker.
	mu    sync.Mutex
	lanes map[string][]bus.Inbound
	wg    sync.WaitGroup
}

func newGateway(engine *chat.Engine, msgBus *bus.Bus) *gateway {
	return &gateway{engine: engine, bus: msgBus, lanes: make(map[string][]bus.Inbound)}
}

// run consumes the bus until ctx ends, then waits for in-flight turns.
func (g *gateway) run(ctx context.Context) {
	defer g.wg.Wait()
	for {
		msg, ok := g.bus.ConsumeInbound(ctx)
		if !ok {
			return
		}
		slog.Info("processing message",
			slog.String("channel", msg.Channel),
			slog.String("chat_id", msg.ChatID),
			slog.String("sender", msg.SenderID))
		g.enqueue(ctx, msg)
	}
}

// enqueue queues msg on its chat's lane without blocking, starting a worker
// for the chat if none runs. A chat with a full lane gets a busy reply.
func (g *gateway) enqueue(ctx context.Context, msg bus.Inbound) {
	key := chatKey(msg)
	g.mu.Lock()
	pending, running := g.lanes[key]
	if len(pending) >= bus.DefaultBuffer {
		g.mu.Unlock()
		slog.Warn("chat lane full, dropping message", slog.String("chat_id", key))
		g.bus.PublishOutbound(bus.Outbound{Channel: msg.Channel, ChatID: msg.ChatID, Text: busyReply})
		return
	}
	g.lanes[key] = append(pending, msg)
	if !running {
		g.wg.Add(1)
		go g.drain(ctx, key)
	}
	g.mu.Unlock()
}

// drain handles the lane of key in order and exits once it is empty.
func (g *gateway) drain(ctx context.Context, key string) {
	defer g.wg.Done()
	for {
		g.mu.Lock()
		pending := g.lanes[key]
		if len(pending) == 0 || ctx.Err() != nil {
			delete(g.lanes, key)
			g.mu.Unlock()
			return
		}
		msg := pending[0]
		g.lanes[key] = pending[1:]
		g.mu.Unlock()

		g.handle(ctx, msg)
	}
}

// handle runs one message and publishes exactly one Outbound for it.
func (g *gateway) handle(ctx context.Context, msg bus.Inbound) {
	chatID := chatKey(msg)
	text := strings.TrimSpace(msg.Text)
	cmd, rest := command(text)

	var rec *stream.Recorder
	var reply string
	switch cmd {
	case "/start", "/help":
		reply = greeting
	case "/reset":
		err := g.engine.Reset(ctx, chatID)
		switch {
		case err == nil, errors.Is(err, conversation.ErrNotFound):
			reply = "Chat cleared."
		default:
			slog.Error("reset failed", slog.String("chat_id", chatID), slog.Any("error", err))
			reply = "Error: " + err.Error()
		}
	case "/buy":
		p, err := parsePurchase(rest)
		if err != nil {
			reply = buyUsage
			break
		}
		rec = stream.NewRecorder()
		if _, err := g.engine.ConfirmPurchase(ctx, chatID, p, rec); err != nil {
			slog.Warn("purchase failed", slog.String("chat_id", chatID), slog.Any("error", err))
			reply = "Error: " + err.Error()
		}
	default:
		rec = stream.NewRecorder()
		if _, err := g.engine.Submit(ctx, chatID, text, rec); err != nil {
			slog.Warn("turn failed", slog.String("chat_id", chatID), slog.Any("error", err))
			if !errors.Is(err, chat.ErrEmptyMessage) {
				reply = "Error: " + err.Error()
			}
		}
	}

	out := bus.Outbound{Channel: msg.Channel, ChatID: msg.ChatID, Text: reply}
	if rec != nil {
		if final := rec.Final(); len(final) > 0 {
			frags := make([]render.Fragment, 0, len(final))
			for _, ev := range final {
				frags = append(frags, ev.Fragment)
			}
			out.Text = chat.Markdown(final)
			out.HTML, out.Plain = telegram.Render(frags)
		}
	}
	// An empty reply is still published: it tells the channel the turn is over.
	g.bus.PublishOutbound(out)
}

// chatKey maps a channel conversation onto a stored chat id.
func chatKey(msg bus.Inbound) string {
	return msg.Channel + "-" + msg.ChatID
}

// command splits "/cmd@bot args" into "/cmd" and "args". Non-commands give "".
func command(text string) (string, string) {
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	head, rest, _ := strings.Cut(text, " ")
	head, _, _ = strings.Cut(head, "@")
	return strings.ToLower(head), strings.TrimSpace(rest)
}

// parsePurchase reads "SYMBOL PRICE AMOUNT".
func parsePurchase(args string) (chat.Purchase, error) {
	fields := strings.Fields(args)
	if len(fields) != 3 {
		return chat.Purchase{}, fmt.Errorf("%w: want SYMBOL PRICE AMOUNT", chat.ErrInvalidPurchase)
	}
	price, err := strconv.ParseFloat(strings.TrimPrefix(fields[1], "$"), 64)
	if err != nil {
		return chat.Purchase{}, fmt.Errorf("%w: price %q", chat.ErrInvalidPurchase, fields[1])
	}
	amount, err := strconv.Atoi(fields[2])
	if err != nil {
		return chat.Purchase{}, fmt.Errorf("%w: amount %q", chat.ErrInvalidPurchase, fields[2])
	}
	return chat.Purchase{Symbol: fields[0], Price: price, Amount: amount}.Normalize()
}
