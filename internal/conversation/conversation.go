// Package conversation keeps the append-only message log of each chat.
package conversation

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ErrNotFound is returned for an unknown chat id.
var ErrNotFound = errors.New("conversation: chat not found")

// Role of a stored message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleFunction  Role = "function"
	RoleData      Role = "data"
	RoleTool      Role = "tool"
)

// titleMaxRunes bounds the chat title taken from the first user message.
const titleMaxRunes = 100

// Message is one entry of the log. A function message carries the call id
// and raw arguments the model used, so the call can be replayed to it.
type Message struct {
	ID         string    `json:"id"`
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	Name       string    `json:"name,omitempty"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
	Arguments  string    `json:"arguments,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewMessage stamps a message with a fresh id and the current time.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// State is one chat.
type State struct {
	ChatID    string    `json:"chat_id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists chats. Implementations are safe for concurrent use;
// ordering of appends within one chat is the caller's job.
type Store interface {
	// Create makes a chat. An empty id gets a fresh ULID. Creating an id
	// that already exists returns the existing chat unchanged.
	Create(ctx context.Context, chatID string) (State, error)
	Get(ctx context.Context, chatID string) (State, error)
	// Append adds messages in order. The first user message also sets the
	// title when the chat has none.
	Append(ctx context.Context, chatID string, msgs ...Message) error
	Delete(ctx context.Context, chatID string) error
	Close() error
}

// NewChatID returns a lexically sortable chat id.
func NewChatID() string {
	return ulid.Make().String()
}

// TitleFrom returns the title a chat gets from msgs, or "" if msgs has no
// user message.
func TitleFrom(msgs []Message) string {
	for _, m := range msgs {
		if m.Role != RoleUser {
			continue
		}
		t := strings.TrimSpace(m.Content)
		if utf8.RuneCountInString(t) <= titleMaxRunes {
			return t
		}
		r := []rune(t)
		return string(r[:titleMaxRunes])
	}
	return ""
}

func stamp(msgs []Message) []Message {
	now := time.Now().UTC()
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		out[i] = m
	}
	return out
}
