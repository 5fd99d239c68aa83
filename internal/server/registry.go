// Package server registry: the shared table of authenticated sessions. The
// mutex is held only for map operations, never across network I/O.
package server

import (
	"sync"

	"github.com/google/uuid"
)

// Registry tracks every currently authenticated session, keyed by session
// id. Multiple concurrent sessions for the same username are permitted; the
// username matters only for attribution and anti-spoof checks.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewRegistry returns an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[uuid.UUID]*Session)}
}

// Add registers a session.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.id] = s
}

// Remove deregisters a session and returns it, or nil if it was already
// removed. Returning nil the second time is what makes teardown run exactly
// once no matter which loop noticed the failure first.
func (r *Registry) Remove(id uuid.UUID) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil
	}
	delete(r.sessions, id)
	return s
}

// Get looks up a session by id.
func (r *Registry) Get(id uuid.UUID) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Snapshot copies out the current session list. Callers iterate the copy,
// so slow or blocked writes never hold the registry lock.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
