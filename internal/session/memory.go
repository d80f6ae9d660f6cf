package session

import (
	"context"
	"sync"
)

// MemoryStore хранит сессии в памяти процесса
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]State
}

// NewMemoryStore создает хранилище сессий в памяти
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[int64]State),
	}
}

func (m *MemoryStore) Get(_ context.Context, userID int64) (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[userID]
	if !ok {
		return Idle(), nil
	}
	return s, nil
}

func (m *MemoryStore) Set(_ context.Context, userID int64, state State) error {
	if err := state.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if state.Kind == KindIdle {
		delete(m.sessions, userID)
		return nil
	}
	m.sessions[userID] = state
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
