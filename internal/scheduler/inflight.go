package scheduler

import (
	"sort"
	"sync"
)

// InFlightSet is the mutual-exclusion primitive guarding page generation:
// a page id may be held by at most one generation call at a time. Insert and
// remove are unconditional on outcome; the holder must Remove when the call
// completes, success or failure.
type InFlightSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewInFlightSet creates an empty set.
func NewInFlightSet() *InFlightSet {
	return &InFlightSet{ids: make(map[string]struct{})}
}

// TryAdd inserts the id and returns true, or returns false if the id is
// already held.
func (s *InFlightSet) TryAdd(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.ids[id]; held {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Remove releases the id. Removing an id that is not held is a no-op.
func (s *InFlightSet) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, id)
}

// Len returns the number of held ids.
func (s *InFlightSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Snapshot returns the held ids in sorted order.
func (s *InFlightSet) Snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
