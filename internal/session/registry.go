package session

import (
	"fmt"
	"sync"
)

// Registry tracks live sessions by ID. All methods are safe for concurrent
// use; iteration works on a snapshot so callers never hold the registry lock
// while touching a session.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers a session. Duplicate IDs are rejected.
func (r *Registry) Add(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID()]; ok {
		return fmt.Errorf("session: id %q already registered", s.ID())
	}
	r.sessions[s.ID()] = s
	return nil
}

// Remove unregisters a session by ID. Removing an unknown ID is not an
// error.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Get returns the session with the given ID, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Snapshot returns the registered sessions at this instant, in no particular
// order.
func (r *Registry) Snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// CloseAll closes every registered session and empties the registry. Used
// during server shutdown.
func (r *Registry) CloseAll() {
	for _, s := range r.Snapshot() {
		_ = s.Close()
	}
	r.mu.Lock()
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
}
