// Package store provides session storage for HustleForge.
//
// Sessions are process-lifetime only; removing a session is equivalent to
// resetting the conversation for that user.
package store

import (
	"log/slog"
	"sync"

	"github.com/hustleforge/hustleforge/internal/models"
)

// SessionStore is the mapping from user identifier to session record. The
// flow engine is the single writer; implementations only need to keep the
// map itself safe for concurrent access.
type SessionStore interface {
	// Get returns the session for userID, or false if none exists.
	Get(userID string) (*models.Session, bool)

	// Put inserts or replaces the session for its user.
	Put(sess *models.Session)

	// Delete removes the session for userID. Deleting a missing session is
	// a no-op.
	Delete(userID string)
}

// InMemorySessionStore keeps sessions in a mutex-guarded map.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

// NewInMemorySessionStore creates an empty in-memory session store.
func NewInMemorySessionStore() *InMemorySessionStore {
	slog.Debug("Creating InMemorySessionStore")
	return &InMemorySessionStore{sessions: make(map[string]*models.Session)}
}

// Get returns the session for userID, or false if none exists.
func (s *InMemorySessionStore) Get(userID string) (*models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	return sess, ok
}

// Put inserts or replaces the session for its user.
func (s *InMemorySessionStore) Put(sess *models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.UserID] = sess
}

// Delete removes the session for userID.
func (s *InMemorySessionStore) Delete(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// Len returns the number of live sessions.
func (s *InMemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
