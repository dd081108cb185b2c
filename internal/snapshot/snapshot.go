// Package snapshot holds the latest readings of every running module.
package snapshot

import (
	"sort"
	"sync"
	"time"

	"github.com/loykin/extbox/internal/module"
)

// Entry is one module's most recent tick.
type Entry struct {
	Key    string            `json:"key"`
	At     time.Time         `json:"at"`
	Points module.DataPoints `json:"points"`
}

// Map is written by the scheduler and read by the API and the aggregator.
type Map struct {
	mu sync.RWMutex
	m  map[string]Entry
}

func New() *Map { return &Map{m: map[string]Entry{}} }

func (s *Map) Set(key string, at time.Time, dp module.DataPoints) {
	cp := make(module.DataPoints, len(dp))
	copy(cp, dp)
	s.mu.Lock()
	s.m[key] = Entry{Key: key, At: at, Points: cp}
	s.mu.Unlock()
}

func (s *Map) Delete(key string) {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
}

func (s *Map) Get(key string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.m[key]
	if !ok {
		return Entry{}, false
	}
	e.Points = append(module.DataPoints(nil), e.Points...)
	return e, true
}

// Keys is sorted.
func (s *Map) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.m))
	for k := range s.m {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// All returns a deep copy.
func (s *Map) All() map[string]Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Entry, len(s.m))
	for k, e := range s.m {
		e.Points = append(module.DataPoints(nil), e.Points...)
		out[k] = e
	}
	return out
}

func (s *Map) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

func (s *Map) Clear() {
	s.mu.Lock()
	clear(s.m)
	s.mu.Unlock()
}
