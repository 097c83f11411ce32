// Package versions holds the incremental-deployment bookkeeping: for every
// deployed action and package, the platform-assigned version and the digest of
// the content that produced it.
package versions

import "sync"

// =============================================================================
// Types
// =============================================================================

// Info is the recorded state of one deployed unit.
type Info struct {
	Version string `json:"version"`
	Digest  string `json:"digest"`
}

// Entry is the persisted form of the version store for one project, namespace
// and API host. Action keys are "pkg/name" (or just "name" in the default package).
type Entry struct {
	ActionVersions  map[string]Info `json:"actionVersions"`
	PackageVersions map[string]Info `json:"packageVersions"`
}

// NewEntry returns an Entry with both maps allocated.
func NewEntry() Entry {
	return Entry{
		ActionVersions:  map[string]Info{},
		PackageVersions: map[string]Info{},
	}
}

// Identity keys a persisted Entry.
type Identity struct {
	ProjectPath string
	Namespace   string
	APIHost     string
}

// =============================================================================
// Run-scoped Store
// =============================================================================

// Store is the in-memory version store for a single run. It is loaded once at
// the start of an incremental run and is the only source for skip decisions
// during that run. Concurrent unit deployers read it and the cleaning phase
// removes entries from it, so access is guarded.
type Store struct {
	mu    sync.RWMutex
	entry Entry
}

// NewStore wraps a copy of e.
func NewStore(e Entry) *Store {
	s := &Store{entry: NewEntry()}
	for k, v := range e.ActionVersions {
		s.entry.ActionVersions[k] = v
	}
	for k, v := range e.PackageVersions {
		s.entry.PackageVersions[k] = v
	}
	return s
}

// Action returns the recorded state of an action.
func (s *Store) Action(name string) (Info, bool) {
	if s == nil {
		return Info{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.entry.ActionVersions[name]
	return info, ok
}

// Package returns the recorded state of a package.
func (s *Store) Package(name string) (Info, bool) {
	if s == nil {
		return Info{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.entry.PackageVersions[name]
	return info, ok
}

// RemoveAction forgets an action.
func (s *Store) RemoveAction(name string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entry.ActionVersions, name)
}

// RemovePackage forgets a package.
func (s *Store) RemovePackage(name string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entry.PackageVersions, name)
}

// Snapshot returns a copy of the current contents.
func (s *Store) Snapshot() Entry {
	out := NewEntry()
	if s == nil {
		return out
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, v := range s.entry.ActionVersions {
		out.ActionVersions[k] = v
	}
	for k, v := range s.entry.PackageVersions {
		out.PackageVersions[k] = v
	}
	return out
}
