// Package telegram bridges a Telegram bot to the bus.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/failsafehttp"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/anatolykoptev/huddle/internal/bus"
)

// Options configures the bot.
type Options struct {
	Token   string
	Allowed []int64
	// Endpoint is the Bot API URL format. Empty means tgbotapi.APIEndpoint.
	Endpoint   string
	Timeout    time.Duration
	MaxRetries int
}

// Channel is a Telegram bot that bridges messages to and from the bus.
type Channel struct {
	bot     *tgbotapi.BotAPI
	bus     *bus.Bus
	allowed map[int64]bool
	ctx     context.Context

	stopTyping sync.Map // chat id -> chan struct{}
}

// New connects to the Bot API. Sends that fail with 429 or 5xx are retried.
func New(opts Options, msgBus *bus.Bus) (*Channel, error) {
	if opts.Token == "" {
		return nil, errors.New("telegram token not set")
	}
	if opts.Endpoint == "" {
		opts.Endpoint = tgbotapi.APIEndpoint
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}

	policy := failsafehttp.NewRetryPolicyBuilder().
		WithBackoff(500*time.Millisecond, 5*time.Second).
		WithMaxRetries(opts.MaxRetries).
		ReturnLastFailure().
		OnRetry(func(e failsafe.ExecutionEvent[*http.Response]) {
			slog.Warn("telegram: retrying request", slog.Int("attempt", e.Attempts()))
		}).
		Build()
	client := &http.Client{
		Timeout:   opts.Timeout,
		Transport: failsafehttp.NewRoundTripper(http.DefaultTransport, policy),
	}

	bot, err := tgbotapi.NewBotAPIWithClient(opts.Token, opts.Endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	allowed := make(map[int64]bool, len(opts.Allowed))
	for _, id := range opts.Allowed {
		allowed[id] = true
	}
	return &Channel{bot: bot, bus: msgBus, allowed: allowed, ctx: context.Background()}, nil
}

// Start begins polling for updates and delivering outbound replies.
func (c *Channel) Start(ctx context.Context) {
	c.ctx = ctx

	slog.Info("telegram bot started",
		slog.String("username", c.bot.Self.UserName),
		slog.Int("allowed_users", len(c.allowed)))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil {
					c.handleMessage(update.Message)
				}
			}
		}
	}()

	go func() {
		for {
			msg, ok := c.bus.SubscribeOutbound(ctx)
			if !ok {
				return
			}
			if msg.Channel != bus.ChannelTelegram {
				continue
			}
			c.sendReply(msg)
		}
	}()
}

// allowedUser reports whether id may talk to the bot. An empty whitelist
// admits everyone.
func (c *Channel) allowedUser(id int64) bool {
	return len(c.allowed) == 0 || c.allowed[id]
}

func (c *Channel) handleMessage(msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	if !c.allowedUser(msg.From.ID) {
		slog.Warn("telegram: unauthorized user", slog.Int64("user_id", msg.From.ID))
		return
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if text == "" {
		return
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	c.startTyping(chatID, msg.Chat.ID)

	c.bus.PublishInbound(bus.Inbound{
		ID:       fmt.Sprintf("tg-%d", msg.MessageID),
		Channel:  bus.ChannelTelegram,
		SenderID: strconv.FormatInt(msg.From.ID, 10),
		ChatID:   chatID,
		Text:     text,
		Received: time.Now(),
	})
}

func (c *Channel) startTyping(key string, chatID int64) {
	if _, err := c.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		slog.Debug("telegram: typing action failed", slog.Any("error", err))
	}
	stop := make(chan struct{})
	if prev, loaded := c.stopTyping.Swap(key, stop); loaded {
		close(prev.(chan struct{}))
	}
	go c.typingLoop(chatID, stop)
}

func (c *Channel) stopTypingFor(key string) {
	if stop, ok := c.stopTyping.LoadAndDelete(key); ok {
		close(stop.(chan struct{}))
	}
}

// sendReply sends HTML first and falls back to plain text when Telegram
// rejects the markup.
func (c *Channel) sendReply(msg bus.Outbound) {
	c.stopTypingFor(msg.ChatID)

	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		slog.Error("telegram: invalid chat ID", slog.String("chat_id", msg.ChatID))
		return
	}

	htmlText := sanitizeUTF8(msg.HTML)
	if htmlText == "" && msg.Text != "" {
		htmlText = proseHTML(msg.Text)
	}
	plain := sanitizeUTF8(msg.Plain)
	if plain == "" {
		plain = stripMarkdown(sanitizeUTF8(msg.Text))
	}
	if htmlText == "" && plain == "" {
		return
	}

	if err := c.sendChunked(chatID, htmlText, tgbotapi.ModeHTML); err != nil {
		slog.Warn("telegram: HTML send failed, falling back to plain text", slog.Any("error", err))
		if err := c.sendChunked(chatID, plain, ""); err != nil {
			slog.Error("telegram: send failed", slog.String("chat_id", msg.ChatID), slog.Any("error", err))
		}
	}
}

func (c *Channel) sendChunked(chatID int64, text, parseMode string) error {
	for _, chunk := range splitMessage(text, maxMessageLen) {
		if chunk == "" {
			continue
		}
		m := tgbotapi.NewMessage(chatID, chunk)
		m.ParseMode = parseMode
		if _, err := c.bot.Send(m); err != nil {
			return err
		}
	}
	return nil
}

func (c *Channel) typingLoop(chatID int64, stop <-chan struct{}) {
	ticker := time.NewTicker(4 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			_, _ = c.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
		}
	}
}
