package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"warehouse-wizard/internal/domain"
)

// MemorySessions is a process-local session store with the same version
// semantics as Client. The local server uses it.
type MemorySessions struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{sessions: map[string]*domain.Session{}}
}

func (m *MemorySessions) GetSession(_ context.Context, sessionID string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("repository: GetSession %q: %w", sessionID, domain.ErrSessionNotFound)
	}
	return copySession(s), nil
}

func (m *MemorySessions) SaveSession(_ context.Context, s *domain.Session, fromMessage int) error {
	if s == nil || s.ID == "" {
		return errors.New("repository: SaveSession: session id is required")
	}
	if fromMessage < 0 || fromMessage > len(s.Messages) {
		return fmt.Errorf("repository: SaveSession: message index %d out of range", fromMessage)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.sessions[s.ID]
	switch {
	case !ok && s.Version != 0, ok && stored.Version != s.Version:
		return fmt.Errorf("repository: SaveSession %q: %w", s.ID, domain.ErrVersionConflict)
	case ok && len(stored.Messages) != fromMessage:
		return fmt.Errorf("repository: SaveSession %q: %w", s.ID, domain.ErrVersionConflict)
	}

	s.Version++
	m.sessions[s.ID] = copySession(s)
	return nil
}

func copySession(s *domain.Session) *domain.Session {
	cp := *s
	cp.Messages = append([]domain.Message(nil), s.Messages...)
	cp.Attributes = s.Attributes.Clone()
	return &cp
}

// MemoryArtifacts keeps rendered exports for the lifetime of the process.
type MemoryArtifacts struct {
	mu    sync.RWMutex
	items map[string]domain.Artifact
}

func NewMemoryArtifacts() *MemoryArtifacts {
	return &MemoryArtifacts{items: map[string]domain.Artifact{}}
}

func (m *MemoryArtifacts) PutArtifact(_ context.Context, a domain.Artifact) error {
	if a.ID == "" {
		return errors.New("repository: PutArtifact: id is required")
	}
	a.Content = append([]byte(nil), a.Content...)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[a.ID] = a
	return nil
}

func (m *MemoryArtifacts) GetArtifact(_ context.Context, id string) (domain.Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.items[id]
	if !ok {
		return domain.Artifact{}, fmt.Errorf("repository: GetArtifact %q: %w", id, domain.ErrArtifactNotFound)
	}
	a.Content = append([]byte(nil), a.Content...)
	return a, nil
}
