package chat

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/anatolykoptev/huddle/internal/conversation"
	"github.com/anatolykoptev/huddle/internal/render"
)

// Transcript loads a chat and redraws its fragments from the stored messages.
func (e *Engine) Transcript(ctx context.Context, chatID string) (conversation.State, []render.Fragment, error) {
	st, err := e.store.Get(ctx, chatID)
	if err != nil {
		return conversation.State{}, nil, err
	}
	return st, e.Fragments(st.Messages), nil
}

// Fragments rebuilds the UI for a history without refetching anything.
// Bracketed system notes and messages no tool can redraw are skipped.
func (e *Engine) Fragments(msgs []conversation.Message) []render.Fragment {
	out := make([]render.Fragment, 0, len(msgs))
	for _, m := range msgs {
		var v render.View
		switch m.Role {
		case conversation.RoleUser:
			v = render.UserMessage{Content: m.Content}
		case conversation.RoleAssistant:
			v = render.Text{Content: m.Content}
		case conversation.RoleFunction:
			v = e.replay(m)
		}
		if v != nil {
			out = append(out, render.New(m.ID, v))
		}
	}
	return out
}

func (e *Engine) replay(m conversation.Message) render.View {
	if m.Name == FunctionStockPurchase {
		var pc purchaseContent
		if err := json.Unmarshal([]byte(m.Content), &pc); err != nil {
			slog.Warn("unreadable purchase record", slog.String("message_id", m.ID), slog.Any("error", err))
			return nil
		}
		return render.Purchase{Symbol: pc.Symbol, Price: pc.Price, Amount: pc.DefaultAmount, Status: render.PurchaseStatus(pc.Status)}
	}

	var failed struct {
		Error string `json:"error"`
	}
	if json.Unmarshal([]byte(m.Content), &failed) == nil && failed.Error != "" {
		return render.Error{Title: "Error", Message: failed.Error}
	}

	v, ok, err := e.registry.Replay(m.Name, m.Arguments, m.Content)
	if !ok {
		return nil
	}
	if err != nil {
		slog.Warn("replay failed", slog.String("tool", m.Name), slog.String("message_id", m.ID), slog.Any("error", err))
		return nil
	}
	return v
}
