package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process. Used in tests and single instance dev setups.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]AuthSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]AuthSession)}
}

func (m *MemoryStore) Save(_ context.Context, s AuthSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (AuthSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return AuthSession{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}
