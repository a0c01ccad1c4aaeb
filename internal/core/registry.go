package core

import "sync"

// Registry is the process-wide bidirectional mapping between identities and
// live sessions. Both maps are always mutual inverses, and an identity maps
// to at most one session: a second join for the same identity displaces the
// prior session.
//
// The hub is the only writer, but lookups (health, tests) may come from other
// goroutines, so access is guarded by a RWMutex.
type Registry struct {
	mu         sync.RWMutex
	byIdentity map[string]*Session // identity -> session
	bySession  map[string]*Session // session id -> session
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byIdentity: make(map[string]*Session),
		bySession:  make(map[string]*Session),
	}
}

// Join installs the identity->session mapping and returns the session this
// join displaced, if any. Re-joining with the same session is a no-op and
// displaces nothing, which makes reconnect retries idempotent.
func (r *Registry) Join(identity string, s *Session) (evicted *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prior, ok := r.byIdentity[identity]; ok {
		if prior.ID == s.ID {
			return nil
		}
		delete(r.bySession, prior.ID)
		evicted = prior
	}

	// A session can carry only one identity; drop any previous binding,
	// but never one that a different session owns by now.
	if s.Identity != "" && s.Identity != identity {
		if cur, ok := r.byIdentity[s.Identity]; ok && cur == s {
			delete(r.byIdentity, s.Identity)
		}
	}

	s.Identity = identity
	r.byIdentity[identity] = s
	r.bySession[s.ID] = s
	return evicted
}

// Leave removes both mapping directions for the session id. Idempotent:
// unknown or already-removed sessions are a no-op.
func (r *Registry) Leave(sessionID string) (s *Session, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok = r.bySession[sessionID]
	if !ok {
		return nil, false
	}
	delete(r.bySession, sessionID)
	delete(r.byIdentity, s.Identity)
	return s, true
}

// Resolve returns the live session for an identity, if online.
func (r *Registry) Resolve(identity string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byIdentity[identity]
	return s, ok
}

// Snapshot returns all currently online identities.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	identities := make([]string, 0, len(r.byIdentity))
	for identity := range r.byIdentity {
		identities = append(identities, identity)
	}
	return identities
}

// Sessions returns all live sessions.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessions := make([]*Session, 0, len(r.bySession))
	for _, s := range r.bySession {
		sessions = append(sessions, s)
	}
	return sessions
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySession)
}
