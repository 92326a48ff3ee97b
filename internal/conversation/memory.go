package conversation

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store. Chats are lost on restart.
type Memory struct {
	mu    sync.RWMutex
	chats map[string]*State
}

func NewMemory() *Memory {
	return &Memory{chats: make(map[string]*State)}
}

func (m *Memory) Create(_ context.Context, chatID string) (State, error) {
	if chatID == "" {
		chatID = NewChatID()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.chats[chatID]; ok {
		return clone(st), nil
	}
	now := time.Now().UTC()
	st := &State{ChatID: chatID, Messages: []Message{}, CreatedAt: now, UpdatedAt: now}
	m.chats[chatID] = st
	return clone(st), nil
}

func (m *Memory) Get(_ context.Context, chatID string) (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.chats[chatID]
	if !ok {
		return State{}, ErrNotFound
	}
	return clone(st), nil
}

func (m *Memory) Append(_ context.Context, chatID string, msgs ...Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.chats[chatID]
	if !ok {
		return ErrNotFound
	}
	if len(msgs) == 0 {
		return nil
	}
	st.Messages = append(st.Messages, stamp(msgs)...)
	if st.Title == "" {
		st.Title = TitleFrom(msgs)
	}
	st.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) Delete(_ context.Context, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chats[chatID]; !ok {
		return ErrNotFound
	}
	delete(m.chats, chatID)
	return nil
}

func (m *Memory) Close() error { return nil }

func clone(st *State) State {
	out := *st
	out.Messages = append([]Message(nil), st.Messages...)
	if out.Messages == nil {
		out.Messages = []Message{}
	}
	return out
}
