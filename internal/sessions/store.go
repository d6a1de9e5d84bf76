// Package sessions persists chat sessions.
//
// A Store holds whole-session snapshots. The orchestrator keeps its live
// sessions in a Cache, which serves reads from memory and writes changed
// snapshots to a durable Store when flushed.
package sessions

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/haasonsaas/charlotte/internal/errdefs"
	"github.com/haasonsaas/charlotte/pkg/models"
)

// Store is the interface for session persistence.
type Store interface {
	// Save inserts or replaces the snapshot of a session.
	Save(ctx context.Context, session *models.Session) error

	// Get returns a copy of a session, or errdefs.ErrNotFound.
	Get(ctx context.Context, id string) (*models.Session, error)

	// Delete removes a session, or returns errdefs.ErrNotFound.
	Delete(ctx context.Context, id string) error

	// List returns the sessions of a persona, or every session when
	// personaID is empty, oldest first.
	List(ctx context.Context, personaID string) ([]*models.Session, error)
}

// MemoryStore provides an in-memory Store implementation for tests and
// runs without persistence.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]*models.Session{}}
}

func (m *MemoryStore) Save(ctx context.Context, session *models.Session) error {
	if session == nil || session.ID == "" {
		return errors.New("session with an id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = session.Clone()
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, errdefs.NotFound("session", id)
	}
	return session.Clone(), nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return errdefs.NotFound("session", id)
	}
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, personaID string) ([]*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		if personaID != "" && session.Persona.ID != personaID {
			continue
		}
		out = append(out, session.Clone())
	}
	sortSessions(out)
	return out, nil
}

func sortSessions(sessions []*models.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
