// internal/snapshot/store.go
package snapshot

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

var ErrStaleVersion = errors.New("snapshot version is older than the current one")

// Store keeps the current snapshot of every project. Writers swap whole
// snapshots; readers never observe a partially built one.
type Store struct {
	mu       sync.RWMutex
	projects map[string]*atomic.Pointer[Snapshot]
}

func NewStore() *Store {
	return &Store{projects: make(map[string]*atomic.Pointer[Snapshot])}
}

// Current returns the snapshot serving projectID, if any.
func (s *Store) Current(projectID string) (*Snapshot, bool) {
	s.mu.RLock()
	p, ok := s.projects[projectID]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	snap := p.Load()
	return snap, snap != nil
}

// Publish installs snap unless a newer version is already serving. Publishing
// the serving version again replaces it, which refreshes LoadedAt.
func (s *Store) Publish(snap *Snapshot) error {
	p := s.slot(snap.ProjectID())
	for {
		cur := p.Load()
		if cur != nil && cur.Version() > snap.Version() {
			return fmt.Errorf("%w: project %s has v%d, got v%d",
				ErrStaleVersion, snap.ProjectID(), cur.Version(), snap.Version())
		}
		if p.CompareAndSwap(cur, snap) {
			return nil
		}
	}
}

// Evict drops the snapshot of projectID so the next load goes to storage.
func (s *Store) Evict(projectID string) {
	s.mu.Lock()
	delete(s.projects, projectID)
	s.mu.Unlock()
}

// Projects lists the projects with a serving snapshot, sorted.
func (s *Store) Projects() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.projects))
	for id, p := range s.projects {
		if p.Load() != nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (s *Store) slot(projectID string) *atomic.Pointer[Snapshot] {
	s.mu.RLock()
	p, ok := s.projects[projectID]
	s.mu.RUnlock()
	if ok {
		return p
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok = s.projects[projectID]; !ok {
		p = new(atomic.Pointer[Snapshot])
		s.projects[projectID] = p
	}
	return p
}
