package sessionstore

import (
	"context"
	"errors"
	"sync"

	"sales-agent/internal/domain"
)

// Memory keeps sessions in process memory. Sessions do not expire.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]*domain.Session)}
}

func (m *Memory) Get(_ context.Context, id string) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return s.Clone(), nil
}

func (m *Memory) Save(_ context.Context, s *domain.Session) error {
	if s == nil || s.ID == "" {
		return errors.New("sessionstore: session id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions == nil {
		return errors.New("sessionstore: store closed")
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = nil
	return nil
}
