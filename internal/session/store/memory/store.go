// Package memory is the single-process session store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"oddcert/internal/session/models"
	id "oddcert/pkg/domain"
	"oddcert/pkg/platform/sentinel"
)

// InMemoryStore keeps sessions in a map. Callers always receive clones, so a
// returned session can be read without holding the store lock.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[id.SessionID]*models.Session
}

func New() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[id.SessionID]*models.Session)}
}

func (s *InMemoryStore) Create(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; ok {
		return fmt.Errorf("session %s: %w", session.ID, sentinel.ErrConflict)
	}
	s.sessions[session.ID] = session.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, sessionID id.SessionID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, sentinel.ErrNotFound)
	}
	return session.Clone(), nil
}

// ListActive returns every active session ordered by start time.
func (s *InMemoryStore) ListActive(_ context.Context) ([]*models.Session, error) {
	return s.list(func(session *models.Session) bool { return session.IsActive() }), nil
}

// ListByApplication returns an application's sessions ordered by start time.
func (s *InMemoryStore) ListByApplication(_ context.Context, appID id.ApplicationID) ([]*models.Session, error) {
	return s.list(func(session *models.Session) bool { return session.ApplicationID == appID }), nil
}

func (s *InMemoryStore) list(keep func(*models.Session) bool) []*models.Session {
	s.mu.RLock()
	out := make([]*models.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		if keep(session) {
			out = append(out, session.Clone())
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Execute loads a session, runs validate and then mutate under the store
// lock, and saves the result. When validate fails nothing is written.
func (s *InMemoryStore) Execute(_ context.Context, sessionID id.SessionID, validate func(*models.Session) error, mutate func(*models.Session)) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, sentinel.ErrNotFound)
	}
	working := session.Clone()
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	s.sessions[sessionID] = working
	return working.Clone(), nil
}
