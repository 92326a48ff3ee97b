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
	"github.com/anatolykoptev/huddle/internal/render"
	"github.com/anatolykoptev/huddle/internal/stream"
)

// FunctionStockPurchase names the function message a confirmed purchase leaves
// in the history.
const FunctionStockPurchase = "showStockPurchase"

// ErrInvalidPurchase wraps every purchase validation failure.
var ErrInvalidPurchase = errors.New("invalid purchase")

// Purchase is a confirmed demo order.
type Purchase struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Amount int     `json:"amount"`
}

// MaxPurchaseTotal caps amount × price.
const MaxPurchaseTotal = 1e12

// Normalize upper-cases the symbol and checks the bounds.
func (p Purchase) Normalize() (Purchase, error) {
	p.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))
	switch {
	case p.Symbol == "":
		return p, fmt.Errorf("%w: symbol is required", ErrInvalidPurchase)
	case !(p.Price > 0):
		return p, fmt.Errorf("%w: price must be positive", ErrInvalidPurchase)
	case p.Amount < 1:
		return p, fmt.Errorf("%w: amount must be at least 1", ErrInvalidPurchase)
	case p.Total() > MaxPurchaseTotal:
		return p, fmt.Errorf("%w: total exceeds %s", ErrInvalidPurchase, render.FormatUSD(MaxPurchaseTotal))
	}
	return p, nil
}

// Total is amount × price.
func (p Purchase) Total() float64 { return float64(p.Amount) * p.Price }

// purchaseContent is the committed function content.
type purchaseContent struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	DefaultAmount int     `json:"defaultAmount"`
	Status        string  `json:"status"`
}

// ConfirmPurchase plays the simulated purchase: a progress fragment that
// moves through three steps, a closing system note, and two history entries
// telling the model what happened. Nothing is bought.
func (e *Engine) ConfirmPurchase(ctx context.Context, chatID string, p Purchase, sink stream.Sink) (turn Turn, err error) {
	start := time.Now()
	defer func() {
		metrics.Turns.WithLabelValues(KindPurchase, metrics.Outcome(err)).Inc()
		metrics.TurnDuration.WithLabelValues(KindPurchase).Observe(time.Since(start).Seconds())
	}()

	p, err = p.Normalize()
	if err != nil {
		return Turn{ChatID: chatID}, err
	}

	ctx, sess, chatID, err := e.begin(ctx, chatID)
	if err != nil {
		return Turn{ChatID: chatID}, err
	}
	defer sess.Unlock()
	turn = Turn{ChatID: chatID, Tool: FunctionStockPurchase}

	slog.Info("purchase confirmed",
		slog.String("chat_id", chatID),
		slog.String("symbol", p.Symbol),
		slog.Float64("price", p.Price),
		slog.Int("amount", p.Amount))

	out := stream.New(chatID, sink)
	view := render.Purchase{Symbol: p.Symbol, Price: p.Price, Amount: p.Amount, Status: render.PurchasePending}
	frag, err := out.Begin(ctx, view)
	if err != nil {
		return turn, fmt.Errorf("stream purchase: %w", err)
	}

	if err := sleep(ctx, e.stepDelay); err != nil {
		return turn, err
	}
	view.Status = render.PurchaseWorking
	if err := frag.Update(ctx, view); err != nil {
		return turn, fmt.Errorf("stream purchase: %w", err)
	}

	if err := sleep(ctx, e.stepDelay); err != nil {
		return turn, err
	}
	view.Status = render.PurchaseCompleted
	if err := frag.Done(ctx, view); err != nil {
		return turn, fmt.Errorf("stream purchase: %w", err)
	}

	note := fmt.Sprintf("You have purchased %d shares of %s at $%s. Total cost = %s.",
		p.Amount, p.Symbol, render.FormatNumber(p.Price), render.FormatUSD(p.Total()))
	if _, err := out.Final(ctx, render.System{Content: note}); err != nil {
		slog.Debug("purchase note not delivered", slog.String("chat_id", chatID), slog.Any("error", err))
	}

	content, err := json.Marshal(purchaseContent{
		Symbol:        p.Symbol,
		Price:         p.Price,
		DefaultAmount: p.Amount,
		Status:        string(render.PurchaseCompleted),
	})
	if err != nil {
		return turn, fmt.Errorf("encode purchase: %w", err)
	}
	args, err := json.Marshal(p)
	if err != nil {
		return turn, fmt.Errorf("encode purchase: %w", err)
	}

	fn := conversation.NewMessage(conversation.RoleFunction, string(content))
	fn.Name = FunctionStockPurchase
	fn.Arguments = string(args)
	sys := conversation.NewMessage(conversation.RoleSystem, fmt.Sprintf(
		"[User has purchased %d shares of %s at %s. Total cost = %s]",
		p.Amount, p.Symbol, render.FormatNumber(p.Price), render.FormatNumber(p.Total())))
	if err := e.store.Append(ctx, chatID, fn, sys); err != nil {
		return turn, fmt.Errorf("append purchase: %w", err)
	}
	return turn, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
