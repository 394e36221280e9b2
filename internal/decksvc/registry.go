package decksvc

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// Registry maps device identities to their live sessions. It is the only
// state shared across sessions; every mutation is atomic and the
// single-session-per-identity invariant is enforced by Admit.
type Registry struct {
	sessions *xsync.MapOf[string, *Session]
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: xsync.NewMapOf[string, *Session](),
	}
}

// Admit inserts the session unless an entry for the identity is already
// live. Returns false on a duplicate, which callers treat as a repeated
// hotplug notification, not an error.
func (r *Registry) Admit(id string, s *Session) bool {
	_, loaded := r.sessions.LoadOrStore(id, s)
	return !loaded
}

// Evict removes the entry only if it still belongs to the given session, so
// a session tearing down late can never evict a successor that reused its
// identity.
func (r *Registry) Evict(id string, s *Session) bool {
	evicted := false
	r.sessions.Compute(id, func(cur *Session, loaded bool) (*Session, bool) {
		if loaded && cur == s {
			evicted = true
			return nil, true
		}
		return cur, !loaded
	})
	return evicted
}

func (r *Registry) Get(id string) (*Session, bool) {
	return r.sessions.Load(id)
}

func (r *Registry) Len() int {
	return r.sessions.Size()
}

func (r *Registry) Range(f func(id string, s *Session) bool) {
	r.sessions.Range(f)
}

// CancelAll requests cancellation of every live session. Eviction happens in
// each session's own teardown.
func (r *Registry) CancelAll() {
	r.sessions.Range(func(_ string, s *Session) bool {
		s.Cancel()
		return true
	})
}
