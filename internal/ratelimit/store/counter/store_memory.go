package counter

import (
	"context"
	"sync"
	"time"

	"hearth/internal/ratelimit/models"
)

// InMemoryStore implements Store with a mutex-guarded map.
// For multi-instance deployments, use the postgres or redis store instead.
type InMemoryStore struct {
	mu       sync.RWMutex
	counters map[string]*entry
}

type entry struct {
	count     int
	expiresAt time.Time
}

// NewInMemoryStore creates a new in-memory counter store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		counters: make(map[string]*entry),
	}
}

func (s *InMemoryStore) Get(_ context.Context, key models.CounterKey) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.counters[key.String()]
	if !ok {
		return 0, nil
	}
	return e.count, nil
}

func (s *InMemoryStore) Increment(_ context.Context, key models.CounterKey, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key.String()
	e, ok := s.counters[k]
	if !ok {
		// Counters live one extra window so a just-closed window can still be read.
		e = &entry{expiresAt: key.WindowStart.Add(2 * window)}
		s.counters[k] = e
	}
	e.count++
	return e.count, nil
}

// Prune drops counters whose retention has passed. The cleanup worker calls
// this periodically; the rate limiter itself never deletes counters.
func (s *InMemoryStore) Prune(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := 0
	for k, e := range s.counters {
		if now.After(e.expiresAt) {
			delete(s.counters, k)
			pruned++
		}
	}
	return pruned, nil
}

// Len reports the number of live counters (for tests and metrics).
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.counters)
}
