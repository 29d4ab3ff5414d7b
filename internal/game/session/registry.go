package session

import "sync"

// Registry tracks all connected sessions, keyed by identity.
// All methods are safe for concurrent use; every mutation is a single
// atomic step under one lock.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Register installs a session for its identity. If the identity is already
// mapped, the prior session is atomically replaced and returned so the
// caller can signal it to log out outside the lock.
//
// Precondition: sess must have a non-empty Identity.
// Postcondition: Exactly one session is mapped for the identity.
func (r *Registry) Register(sess *Session) (evicted *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.sessions[sess.Identity]
	r.sessions[sess.Identity] = sess
	if old == sess {
		return nil
	}
	return old
}

// Remove deletes the mapping for the session's identity, but only if the
// registry still maps it to this exact session. A session evicted by a
// newer login must not remove its replacement. Idempotent.
//
// Postcondition: Returns true if the mapping was removed.
func (r *Registry) Remove(sess *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessions[sess.Identity] != sess {
		return false
	}
	delete(r.sessions, sess.Identity)
	return true
}

// Get returns the session for the given identity.
//
// Postcondition: Returns (session, true) if found, or (nil, false) otherwise.
func (r *Registry) Get(identity string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[identity]
	return sess, ok
}

// Count returns the number of connected sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
