package lock

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	token  string
	expiry time.Time
}

// MemoryStore is a process-local Store used in tests and single-node
// development. Expired entries are treated as absent on the next access
// rather than reaped by a background goroutine.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryStore creates an in-memory lock store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
	}
}

// Acquire implements Store
func (s *MemoryStore) Acquire(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if e, ok := s.entries[key]; ok && e.expiry.After(now) {
		return false, nil
	}
	s.entries[key] = memoryEntry{token: token, expiry: now.Add(ttl)}
	return true, nil
}

// Release implements Store
func (s *MemoryStore) Release(_ context.Context, key, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.token != token {
		return false, nil
	}
	if !e.expiry.After(time.Now()) {
		delete(s.entries, key)
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}
