package session

import (
	"sync"
	"time"
)

// Manager tracks live chat sessions by chat ID.
type Manager struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	idleTimeout time.Duration
}

// NewManager creates a session manager. Sessions unused for idleTimeout are
// closed and dropped.
func NewManager(idleTimeout time.Duration) *Manager {
	return &Manager{sessions: make(map[string]*Session), idleTimeout: idleTimeout}
}

// Get returns the session for the given chat ID, or nil if none exists or it is closed.
func (m *Manager) Get(chatID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.sessions[chatID]
	if s != nil && s.closed.Load() {
		delete(m.sessions, chatID)
		return nil
	}
	return s
}

// Acquire returns the live session for chatID, creating one if needed.
func (m *Manager) Acquire(chatID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s := m.sessions[chatID]; s != nil && !s.closed.Load() {
		s.resetIdle()
		return s
	}
	s := New(chatID, m.idleTimeout, m.evict)
	m.sessions[chatID] = s
	return s
}

// evict drops s on idle timeout unless a turn still holds it.
func (m *Manager) evict(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !s.closeIdle() {
		return
	}
	if m.sessions[s.chatID] == s {
		delete(m.sessions, s.chatID)
	}
}

// Delete closes and removes the session for the given chat ID. A session in
// the middle of a turn keeps its lock, so later turns still queue behind it;
// only its owner index is dropped.
func (m *Manager) Delete(chatID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.sessions[chatID]
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Busy() {
		s.forget()
		return
	}
	s.closeLocked()
	delete(m.sessions, chatID)
}

// Len returns the number of tracked sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll closes all active sessions. Used during shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.sessions {
		s.Close()
		delete(m.sessions, id)
	}
}
