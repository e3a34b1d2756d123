package duel

import (
	"sync"
	"time"
)

// MatchStore is the process-wide table of live matches. It owns every
// Match; callers get pointers but all mutation runs through the engine
// under the match's own lock. Expiry is swept opportunistically by the
// engine's entry points, never by a background timer.
type MatchStore struct {
	mu      sync.RWMutex
	matches map[string]*Match
}

func NewMatchStore() *MatchStore {
	return &MatchStore{matches: make(map[string]*Match)}
}

func (s *MatchStore) Put(m *Match) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches[m.ID] = m
}

// Get returns the live match with the given id, or nil.
func (s *MatchStore) Get(id string) *Match {
	if id == "" {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matches[id]
}

// PruneExpired removes every match created before now-ttl and reports how
// many were dropped.
func (s *MatchStore) PruneExpired(now time.Time, ttl time.Duration) int {
	cutoff := now.Add(-ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, m := range s.matches {
		if m.CreatedAt.Before(cutoff) {
			delete(s.matches, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of live matches.
func (s *MatchStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matches)
}
