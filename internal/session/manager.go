package session

import (
	"context"
	"sync"

	"github.com/codedeck/go-codedeck/internal/deck"
)

// Manager owns the set of open sessions, one store per open session id.
// Opening an id that is already open reloads it in place instead of
// creating a second store.
type Manager struct {
	loader *Loader

	mu       sync.Mutex
	sessions map[string]*Store
}

// NewManager creates a manager over the loader.
func NewManager(loader *Loader) *Manager {
	return &Manager{
		loader:   loader,
		sessions: make(map[string]*Store),
	}
}

// Open returns the store for the session, creating it when needed, and
// kicks off an asynchronous load.
func (m *Manager) Open(ctx context.Context, meta deck.SessionMeta) *Store {
	m.mu.Lock()
	store, ok := m.sessions[meta.ID]
	if !ok {
		store = NewStore(meta)
		m.sessions[meta.ID] = store
	}
	m.mu.Unlock()

	m.loader.Load(ctx, store)
	return store
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Get returns the store for an open session, or nil.
func (m *Manager) Get(sessionID string) *Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[sessionID]
}

// Close tears down one open session.
func (m *Manager) Close(sessionID string) {
	m.mu.Lock()
	store := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if store != nil {
		store.Close()
	}
}

// CloseAll tears down every open session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	stores := make([]*Store, 0, len(m.sessions))
	for _, s := range m.sessions {
		stores = append(stores, s)
	}
	m.sessions = make(map[string]*Store)
	m.mu.Unlock()

	for _, s := range stores {
		s.Close()
	}
}
