// Package chat runs conversation turns: one model call per user message,
// at most one function dispatched, and exactly one entry committed.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anatolykoptev/huddle/internal/conversation"
	"github.com/anatolykoptev/huddle/internal/metrics"
	"github.com/anatolykoptev/huddle/internal/provider"
	"github.com/anatolykoptev/huddle/internal/render"
	"github.com/anatolykoptev/huddle/internal/session"
	"github.com/anatolykoptev/huddle/internal/sleeper"
	"github.com/anatolykoptev/huddle/internal/stream"
	"github.com/anatolykoptev/huddle/internal/toolreg"
)

// Turn kinds, used as metric labels.
const (
	KindMessage  = "message"
	KindPurchase = "purchase"
)

// ErrEmptyMessage is returned for a blank user message.
var ErrEmptyMessage = errors.New("message is empty")

// msgUnavailable is shown when the model call fails.
const msgUnavailable = "The assistant is unavailable right now. Please try again in a moment."

// Options wires an Engine.
type Options struct {
	Provider provider.Provider
	Registry *toolreg.Registry
	Store    conversation.Store
	Sessions *session.Manager
	Prompt   string
	// StepDelay paces the purchase demo. Zero means one second.
	StepDelay time.Duration
}

// Engine is shared by the HTTP API, the CLI, A2A and Telegram.
type Engine struct {
	provider  provider.Provider
	registry  *toolreg.Registry
	store     conversation.Store
	sessions  *session.Manager
	prompt    string
	stepDelay time.Duration
}

// New creates an Engine. Store and Sessions default to in-memory ones.
func New(opts Options) *Engine {
	if opts.Store == nil {
		opts.Store = conversation.NewMemory()
	}
	if opts.Sessions == nil {
		opts.Sessions = session.NewManager(0)
	}
	if opts.Prompt == "" {
		opts.Prompt = DefaultPrompt
	}
	if opts.StepDelay <= 0 {
		opts.StepDelay = time.Second
	}
	return &Engine{
		provider:  opts.Provider,
		registry:  opts.Registry,
		store:     opts.Store,
		sessions:  opts.Sessions,
		prompt:    opts.Prompt,
		stepDelay: opts.StepDelay,
	}
}

// Store exposes the conversation store.
func (e *Engine) Store() conversation.Store { return e.store }

// Registry exposes the tool registry.
func (e *Engine) Registry() *toolreg.Registry { return e.registry }

// Turn describes how a turn ended.
type Turn struct {
	ChatID string `json:"chat_id"`
	// Tool is the function that was dispatched, empty for a text reply.
	Tool string `json:"tool,omitempty"`
}

// begin creates the chat if needed and takes the session turn lock. The
// returned context carries the session for the tools.
func (e *Engine) begin(ctx context.Context, chatID string) (context.Context, *session.Session, string, error) {
	st, err := e.store.Create(ctx, chatID)
	if err != nil {
		return ctx, nil, "", fmt.Errorf("open chat: %w", err)
	}
	for {
		sess := e.sessions.Acquire(st.ChatID)
		err := sess.Lock(ctx)
		if errors.Is(err, session.ErrClosed) {
			continue
		}
		if err != nil {
			return ctx, nil, "", err
		}
		return session.WithSession(ctx, sess), sess, st.ChatID, nil
	}
}

// Submit runs one user turn, streaming fragments to sink. chatID may be
// empty to start a new chat; the id used is returned in Turn.
func (e *Engine) Submit(ctx context.Context, chatID, text string, sink stream.Sink) (turn Turn, err error) {
	start := time.Now()
	defer func() {
		metrics.Turns.WithLabelValues(KindMessage, metrics.Outcome(err)).Inc()
		metrics.TurnDuration.WithLabelValues(KindMessage).Observe(time.Since(start).Seconds())
	}()

	text = strings.TrimSpace(text)
	if text == "" {
		return Turn{ChatID: chatID}, ErrEmptyMessage
	}

	ctx, sess, chatID, err := e.begin(ctx, chatID)
	if err != nil {
		return Turn{ChatID: chatID}, err
	}
	defer sess.Unlock()
	turn.ChatID = chatID

	st, err := e.store.Get(ctx, chatID)
	if err != nil {
		return turn, fmt.Errorf("load chat: %w", err)
	}
	user := conversation.NewMessage(conversation.RoleUser, text)
	if err := e.store.Append(ctx, chatID, user); err != nil {
		return turn, fmt.Errorf("append user message: %w", err)
	}

	out := stream.New(chatID, sink)
	frag, err := out.Begin(ctx, render.Spinner{})
	if err != nil {
		return turn, fmt.Errorf("stream spinner: %w", err)
	}

	var streamed strings.Builder
	onDelta := func(delta string) {
		streamed.WriteString(delta)
		if err := frag.Update(ctx, render.Text{Content: streamed.String()}); err != nil {
			slog.Debug("drop text delta", slog.String("chat_id", chatID), slog.Any("error", err))
		}
	}

	history := append(st.Messages, user)
	resp, err := e.provider.Chat(ctx, toProvider(e.prompt, history), e.registry.ToLLMTools(), onDelta)
	if err != nil {
		slog.Error("model call failed", slog.String("chat_id", chatID), slog.Any("error", err))
		e.finish(ctx, frag, render.Error{Title: "Error", Message: msgUnavailable})
		return turn, fmt.Errorf("model call: %w", err)
	}

	if len(resp.ToolCalls) == 0 {
		reply := conversation.NewMessage(conversation.RoleAssistant, resp.Content)
		e.finish(ctx, frag, render.Text{Content: resp.Content})
		if err := e.store.Append(ctx, chatID, reply); err != nil {
			return turn, fmt.Errorf("append reply: %w", err)
		}
		return turn, nil
	}

	call := resp.ToolCalls[0]
	for _, extra := range resp.ToolCalls[1:] {
		slog.Warn("dropping extra function call",
			slog.String("chat_id", chatID),
			slog.String("tool", extra.Name),
			slog.String("kept", call.Name))
	}
	turn.Tool = call.Name

	view, content := e.dispatch(ctx, chatID, call)
	e.finish(ctx, frag, view)

	fn := conversation.NewMessage(conversation.RoleFunction, content)
	fn.Name = call.Name
	fn.ToolCallID = call.ID
	fn.Arguments = call.Arguments
	if err := e.store.Append(ctx, chatID, fn); err != nil {
		return turn, fmt.Errorf("append function result: %w", err)
	}
	return turn, nil
}

// dispatch runs the function the model picked. Failures of any kind become an
// error view and an {"error": ...} content; they never abort the turn.
func (e *Engine) dispatch(ctx context.Context, chatID string, call provider.ToolCall) (render.View, string) {
	slog.Info("dispatching function",
		slog.String("chat_id", chatID),
		slog.String("tool", call.Name),
		slog.String("arguments", call.Arguments))

	res, err := e.registry.Execute(ctx, call.Name, call.Arguments)
	if err != nil {
		msg := describe(err)
		slog.Warn("function failed",
			slog.String("chat_id", chatID),
			slog.String("tool", call.Name),
			slog.Any("error", err))
		return render.Error{Title: "Error", Message: msg}, errorContent(msg)
	}
	return res.View, res.Content
}

func (e *Engine) finish(ctx context.Context, frag *stream.Handle, v render.View) {
	if err := frag.Done(ctx, v); err != nil {
		slog.Debug("final fragment not delivered", slog.String("fragment_id", frag.ID()), slog.Any("error", err))
	}
}

// describe turns a dispatch error into a message fit for the user and the model.
func describe(err error) string {
	var ae *toolreg.ArgumentError
	var fe *sleeper.FetchError
	switch {
	case errors.As(err, &ae):
		return ae.Error()
	case errors.As(err, &fe):
		return fe.Error()
	case errors.Is(err, toolreg.ErrUnknownTool):
		return err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "The request was cancelled before it finished."
	}
	return err.Error()
}

func errorContent(msg string) string {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return string(b)
}

// Reset forgets a chat: its stored history and its live session.
func (e *Engine) Reset(ctx context.Context, chatID string) error {
	e.sessions.Delete(chatID)
	if err := e.store.Delete(ctx, chatID); err != nil {
		return err
	}
	slog.Info("chat reset", slog.String("chat_id", chatID))
	return nil
}

// Process runs one turn and returns the Markdown of its final fragments.
// chatID scopes the history; an empty id starts a fresh chat.
func (e *Engine) Process(ctx context.Context, chatID, text string) (string, error) {
	rec := stream.NewRecorder()
	_, err := e.Submit(ctx, chatID, text, rec)
	md := Markdown(rec.Final())
	if err != nil && md == "" {
		return "", err
	}
	return md, err
}

// Markdown joins the Markdown of events, separated by blank lines.
func Markdown(events []stream.Event) string {
	parts := make([]string, 0, len(events))
	for _, ev := range events {
		if md := ev.Fragment.Markdown(); md != "" {
			parts = append(parts, md)
		}
	}
	return strings.Join(parts, "\n\n")
}
