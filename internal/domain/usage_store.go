package domain

import (
	"context"
	"sync"
	"time"
)

type usageKey struct {
	scope Scope
	value string
	day   string
}

// MemoryUsageStore is the default single-process UsageStore. One
// ledger-wide mutex guards all counters; only map lookups and
// arithmetic run under it.
type MemoryUsageStore struct {
	mu       sync.Mutex
	counters map[usageKey]*UsageCounter
}

// NewMemoryUsageStore creates an empty in-memory usage store.
func NewMemoryUsageStore() *MemoryUsageStore {
	return &MemoryUsageStore{
		counters: make(map[usageKey]*UsageCounter),
	}
}

// Increment atomically bumps the counter, creating it on first use.
func (s *MemoryUsageStore) Increment(
	_ context.Context,
	scope Scope,
	value, day string,
	now time.Time,
) (int, error) {
	key := usageKey{scope: scope, value: value, day: day}

	s.mu.Lock()
	defer s.mu.Unlock()

	counter, exists := s.counters[key]
	if !exists {
		counter = &UsageCounter{
			Count:          0,
			FirstRequestAt: now,
			ExpiresAt:      now.Add(counterTTL),
		}
		s.counters[key] = counter
	}

	counter.Count++
	return counter.Count, nil
}

// Count returns the current count for the key, or zero when absent.
func (s *MemoryUsageStore) Count(
	_ context.Context,
	scope Scope,
	value, day string,
) (int, error) {
	key := usageKey{scope: scope, value: value, day: day}

	s.mu.Lock()
	defer s.mu.Unlock()

	counter, exists := s.counters[key]
	if !exists {
		return 0, nil
	}
	return counter.Count, nil
}

// FirstRequest returns the first-seen instant for the key.
func (s *MemoryUsageStore) FirstRequest(
	_ context.Context,
	scope Scope,
	value, day string,
) (time.Time, bool, error) {
	key := usageKey{scope: scope, value: value, day: day}

	s.mu.Lock()
	defer s.mu.Unlock()

	counter, exists := s.counters[key]
	if !exists {
		return time.Time{}, false, nil
	}
	return counter.FirstRequestAt, true, nil
}

// Sweep evicts counters whose expiry has passed. Rolled-over day keys
// are unreachable either way; this pass reclaims their memory.
func (s *MemoryUsageStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for key, counter := range s.counters {
		if counter.ExpiresAt.Before(now) {
			delete(s.counters, key)
			evicted++
		}
	}
	return evicted, nil
}
