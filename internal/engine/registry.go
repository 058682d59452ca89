package engine

import "sync"

// Registry is the single source of truth for live sessions, keyed by
// task identifier. Insert-if-absent, lookup, and remove are each atomic
// with respect to concurrent callers; the at-most-one-session-per-task
// invariant rests entirely on Insert.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Insert registers a session for its task if none exists. Returns false,
// and leaves the registry untouched, when the task already has one.
func (r *Registry) Insert(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.TaskID]; ok {
		return false
	}
	r.sessions[s.TaskID] = s
	return true
}

// Get returns the live session for a task.
func (r *Registry) Get(taskID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[taskID]
	return s, ok
}

// Remove deletes a task's session. Removal happens before a new session
// for the same task can be accepted, so a caller that observed an exit
// can immediately start again.
func (r *Registry) Remove(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, taskID)
}

// List snapshots all live sessions.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
