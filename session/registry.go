package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tailored-agentic-units/optenv/core/protocol"
)

// ErrTooManySessions is returned by Insert when the registry is full.
var ErrTooManySessions = errors.New("too many open sessions")

// Registry maps session ids to open sessions. Safe for concurrent use; the
// registry lock is never held while a session is acquired.
type Registry struct {
	sessions map[string]*Session
	max      int
	mu       sync.RWMutex
}

// NewRegistry creates a Registry holding at most max sessions; zero means
// unlimited.
func NewRegistry(max int) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		max:      max,
	}
}

// Insert adds s. Ids are never reused, so an existing entry with the same
// id indicates a bug and is reported.
func (r *Registry) Insert(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.max > 0 && len(r.sessions) >= r.max {
		return fmt.Errorf("%w: limit %d", ErrTooManySessions, r.max)
	}
	if _, exists := r.sessions[s.id]; exists {
		return fmt.Errorf("duplicate session id: %s", s.id)
	}

	r.sessions[s.id] = s
	return nil
}

// Get returns the session for id or protocol.ErrSessionNotFound.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", protocol.ErrSessionNotFound, id)
	}
	return s, nil
}

// Remove deletes id and returns the removed session, or
// protocol.ErrSessionNotFound if it was not present.
func (r *Registry) Remove(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", protocol.ErrSessionNotFound, id)
	}
	delete(r.sessions, id)
	return s, nil
}

// IDs returns the ids of all registered sessions, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
