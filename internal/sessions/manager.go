// Package sessions maps chat conversations to stable agent session ids.
package sessions

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// namespace salts the chat id so ferry's session ids never collide with
// other uuid5 users of the URL namespace.
const namespace = "ferry:"

// DeriveID returns the session id for a chat. The derivation is a pure
// function of the chat id, so a restarted bot resumes the same agent session.
func DeriveID(chatID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(namespace+chatID)).String()
}

// Session is one chat's binding to an agent session.
type Session struct {
	ID         string    `json:"id"`
	ChatID     string    `json:"chat_id"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// Manager tracks the chat-to-session bindings currently in use.
type Manager struct {
	mu     sync.Mutex
	byChat map[string]*Session
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{byChat: make(map[string]*Session)}
}

// GetOrCreate returns the chat's session, creating the binding on first use.
// Every call refreshes the activity timestamp.
func (m *Manager) GetOrCreate(chatID string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	s, ok := m.byChat[chatID]
	if !ok {
		s = &Session{
			ID:        DeriveID(chatID),
			ChatID:    chatID,
			CreatedAt: now,
		}
		m.byChat[chatID] = s
	}
	s.LastActive = now
	return *s
}

// Peek returns the chat's session without creating or touching it.
func (m *Manager) Peek(chatID string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byChat[chatID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Remove forgets the chat's binding. The id is deterministic, so a later
// GetOrCreate re-derives the same session.
func (m *Manager) Remove(chatID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byChat, chatID)
}

// SweepExpired drops bindings idle for longer than ttl and returns the chat
// ids that were dropped.
func (m *Manager) SweepExpired(ttl time.Duration) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	var expired []string
	for chatID, s := range m.byChat {
		if s.LastActive.Before(cutoff) {
			delete(m.byChat, chatID)
			expired = append(expired, chatID)
		}
	}
	return expired
}

// Count returns the number of live bindings.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byChat)
}
