package server

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the single source of truth for who is connected. It maps display
// names to Sessions and guards the map with one RWMutex; callers never see the
// map itself. Deliveries happen on snapshots taken outside the lock so a slow
// Session can never hold up structural changes.
type Registry struct {
	mutex    sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// NewRegistry creates an empty Registry ready to accept Sessions.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Add registers s under its name. Duplicate names are rejected with ErrNameTaken
// and leave the existing entry untouched; once Close has been called every Add
// fails with ErrShutdownInProgress.
func (r *Registry) Add(s *Session) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.closed {
		return ErrShutdownInProgress
	}
	if _, exists := r.sessions[s.name]; exists {
		return fmt.Errorf("%w: %s", ErrNameTaken, s.name)
	}
	r.sessions[s.name] = s
	return nil
}

// Remove deletes s if it is still the Session registered under its name and
// reports whether it did. Exactly one of any number of concurrent calls for
// the same Session returns true.
func (r *Registry) Remove(s *Session) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if current, ok := r.sessions[s.name]; !ok || current != s {
		return false
	}
	delete(r.sessions, s.name)
	return true
}

// Lookup returns the Session registered under name.
func (r *Registry) Lookup(name string) (*Session, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	s, ok := r.sessions[name]
	return s, ok
}

// Len returns the number of registered Sessions.
func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.sessions)
}

// Names returns the registered names in lexical order.
func (r *Registry) Names() []string {
	r.mutex.RLock()
	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	r.mutex.RUnlock()

	sort.Strings(names)
	return names
}

// Snapshot returns the Sessions registered at the time of the call.
func (r *Registry) Snapshot() []*Session {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// Broadcast delivers line to every registered Session except the given one
// (which may be nil) and returns how many deliveries were accepted.
func (r *Registry) Broadcast(line string, except *Session) int {
	delivered := 0
	for _, s := range r.Snapshot() {
		if s == except {
			continue
		}
		if s.Deliver(line) {
			delivered++
		}
	}
	return delivered
}

// Close stops the Registry from accepting new Sessions and returns the ones
// still registered. Entries stay in place until their own teardown removes them.
func (r *Registry) Close() []*Session {
	r.mutex.Lock()
	r.closed = true
	r.mutex.Unlock()

	return r.Snapshot()
}
