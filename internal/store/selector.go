package store

import (
	"sort"
	"sync"

	"github.com/floodwatch/floodcounts/internal/domain"
)

// selector tracks which backend is serving. The primary serves until an
// operation exhausts its retries, which demotes to the fallback. Partitions
// written while demoted are recorded as dirty so the probe loop can replay
// them into the primary before promoting it back.
type selector struct {
	primary  Backend
	fallback Backend

	mu      sync.Mutex
	demoted bool
	dirty   map[string]struct{}
}

func newSelector(primary, fallback Backend) *selector {
	return &selector{
		primary:  primary,
		fallback: fallback,
		dirty:    make(map[string]struct{}),
	}
}

// active returns the backend currently serving reads and writes.
func (s *selector) active() Backend {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.demoted {
		return s.fallback
	}
	return s.primary
}

// demote switches service to the fallback. Returns true on the transition,
// false if already demoted.
func (s *selector) demote() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.demoted {
		return false
	}
	s.demoted = true
	return true
}

// promote switches service back to the primary.
func (s *selector) promote() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.demoted = false
}

func (s *selector) isDemoted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.demoted
}

// markDirty records a partition written on the fallback during an outage.
func (s *selector) markDirty(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty[key] = struct{}{}
}

func (s *selector) clearDirty(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dirty, key)
}

// dirtyKeys returns the partitions pending replay, sorted for deterministic
// promotion order.
func (s *selector) dirtyKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.dirty))
	for k := range s.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// mergeRecords combines a primary and a fallback copy of one partition into a
// sorted, duplicate-free record set. On equal timestamps the fallback copy
// wins: it holds the writes the primary missed during the outage.
func mergeRecords(primary, fallback []domain.CountRecord) []domain.CountRecord {
	byTS := make(map[string]domain.CountRecord, len(primary)+len(fallback))
	for _, r := range primary {
		byTS[r.Timestamp] = r
	}
	for _, r := range fallback {
		byTS[r.Timestamp] = r
	}

	merged := make([]domain.CountRecord, 0, len(byTS))
	for _, r := range byTS {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Timestamp < merged[j].Timestamp })
	return merged
}
