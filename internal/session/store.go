// Package session holds the transient per-conversation dialog state. A
// conversation id absent from the store is equivalent to "idle at the main
// menu".
package session

import (
	"sync"

	"spendingcalc/internal/core"
)

// State names the dialog step a conversation is currently in.
type State string

// Session is the scratch data of one in-progress dialog: the current state
// plus whatever partial record is under construction. It lives only in
// memory and is dropped on completion, cancellation or back-navigation.
type Session struct {
	State State

	// Entry creation.
	Value    core.Money
	Category string
	Date     core.Date
	Comment  string

	// Known category names at the time the dialog started, so the tag step
	// can offer them and detect new ones.
	Categories []string

	// Analysis and editing.
	Period         core.Period
	FilterCategory string
	Entries        []core.Entry
	Selected       *core.Entry
	Staged         *core.Entry
}

// Store is a concurrency-safe mapping from conversation id to its session.
type Store interface {
	// Get returns the session for the conversation, or false when the
	// conversation is idle.
	Get(chatID int64) (*Session, bool)

	// Put stores the session for the conversation, replacing any previous
	// one.
	Put(chatID int64, s *Session)

	// Delete drops the conversation's session.
	Delete(chatID int64)

	// Len returns the number of active sessions.
	Len() int
}

type memoryStore struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

// NewStore returns an empty in-memory store.
func NewStore() Store {
	return &memoryStore{sessions: make(map[int64]*Session)}
}

func (m *memoryStore) Get(chatID int64) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[chatID]
	return s, ok
}

func (m *memoryStore) Put(chatID int64, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[chatID] = s
}

func (m *memoryStore) Delete(chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, chatID)
}

func (m *memoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
