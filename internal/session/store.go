// Package session keeps cropping sessions in process memory.
//
// A session is replaced wholesale on every change: Update hands the mutator a
// private copy and swaps it in only if the mutator succeeds, so readers never
// observe a half-applied edit.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/DukeRupert/cropbatch/internal/domain"
	"github.com/google/uuid"
)

// Store is a concurrency-safe map of sessions keyed by ID.
type Store struct {
	sessions map[uuid.UUID]*domain.Session
	mu       sync.RWMutex
	now      func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[uuid.UUID]*domain.Session),
		now:      time.Now,
	}
}

// Create starts a new empty session.
func (s *Store) Create() *domain.Session {
	sess := domain.NewSession(s.now().UTC())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return sess.Clone()
}

// Get returns a copy of the session.
func (s *Store) Get(id uuid.UUID) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.NotFound("session.get", "session", id.String())
	}
	return sess.Clone(), nil
}

// List returns copies of all sessions, oldest first.
func (s *Store) List() []*domain.Session {
	s.mu.RLock()
	result := make([]*domain.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		result = append(result, sess.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Update applies fn to a copy of the session and stores the copy if fn
// returns nil. The updated session is returned.
func (s *Store) Update(id uuid.UUID, fn func(*domain.Session) error) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[id]
	if !ok {
		return nil, domain.NotFound("session.update", "session", id.String())
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = s.now().UTC()

	s.sessions[id] = next
	return next.Clone(), nil
}

// Delete removes a session. It returns a not found error for unknown IDs.
func (s *Store) Delete(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return domain.NotFound("session.delete", "session", id.String())
	}
	delete(s.sessions, id)
	return nil
}
