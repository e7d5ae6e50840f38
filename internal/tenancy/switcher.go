// internal/tenancy/switcher.go
//
// Scoped blog-context switching.
//
// Context
// -------
// Replication constantly hops between an origin blog and the archive blog on
// one storage session.  The original platform did this with a bare global
// blog id mutated by set/restore calls; here the switch is a scoped
// acquisition: With() runs the enclosed function with the target blog active
// and restores the previous one on every exit path, including panics.
// Acquire() exists for the few callers (query redirection, thumbnail scopes)
// whose begin and end live in separate callbacks; its release func is
// idempotent so a late or doubled end never restores twice.
//
// A Switcher is request-local, like the Session it wraps.  Depth tracking
// feeds the mirror engine's re-entrancy gate: a sync event that fires while
// a switch is already held is the mirror write observing itself and must be
// ignored.
package tenancy

import "sync"

// Activator is the slice of store.Session the switcher needs.
type Activator interface {
	ActiveBlog() int64
	SetActiveBlog(id int64)
}

// Switcher tracks switch depth over one session.
type Switcher struct {
	act   Activator
	depth int
}

// New wraps a session's active-blog state.
func New(act Activator) *Switcher {
	return &Switcher{act: act}
}

// Active returns the currently active blog id.
func (s *Switcher) Active() int64 { return s.act.ActiveBlog() }

// Switching reports whether at least one switch is currently held.
func (s *Switcher) Switching() bool { return s.depth > 0 }

// With runs fn with blog id active, restoring the previous blog afterwards.
// Switching to the already-active blog is a boundary no-op: fn runs without
// touching the switch state.
func (s *Switcher) With(id int64, fn func() error) error {
	release := s.Acquire(id)
	defer release()
	return fn()
}

// Acquire activates blog id and returns an idempotent release func that
// restores the previously active blog.  Acquiring the active blog returns a
// no-op release.
func (s *Switcher) Acquire(id int64) (release func()) {
	if id == s.act.ActiveBlog() {
		return func() {}
	}
	prev := s.act.ActiveBlog()
	s.act.SetActiveBlog(id)
	s.depth++

	var once sync.Once
	return func() {
		once.Do(func() {
			s.depth--
			s.act.SetActiveBlog(prev)
		})
	}
}
