package session

import (
	"strings"
	"sync"
)

// Registry indexes live sessions by username, case-insensitively. Whisper
// targets resolve through it.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]*Session
	sessions map[*Session]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:   make(map[string]*Session),
		sessions: make(map[*Session]struct{}),
	}
}

// Add tracks a connection before it has a username.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s] = struct{}{}
}

// BindUsername indexes the session under its display name, replacing any
// previous binding for this session.
func (r *Registry) BindUsername(s *Session, displayName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old := s.DisplayName(); old != "" {
		delete(r.byName, strings.ToLower(old))
	}
	s.SetDisplayName(displayName)
	r.byName[strings.ToLower(displayName)] = s
}

// Lookup resolves a username to a session. A leading '*' is stripped first
// (the account-name addressing convention). If no direct match exists, each
// "Character*Account" composite key matches on either half.
func (r *Registry) Lookup(username string) (*Session, bool) {
	username = strings.TrimPrefix(username, "*")
	lower := strings.ToLower(username)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.byName[lower]; ok {
		return s, true
	}
	for key, s := range r.byName {
		star := strings.IndexByte(key, '*')
		if star < 0 {
			continue
		}
		if key[:star] == lower || key[star+1:] == lower {
			return s, true
		}
	}
	return nil, false
}

// Remove drops the session and its username binding. Safe to call for
// sessions that never bound a name.
func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, s)
	if name := s.DisplayName(); name != "" {
		// Only unbind if the index still points at this session; a
		// reconnect may have taken the name over.
		lower := strings.ToLower(name)
		if r.byName[lower] == s {
			delete(r.byName, lower)
		}
	}
}

// Count returns the number of tracked connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
