package capacity

import (
	"context"
	"sync"
)

// MemoryStore keeps entries in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]int)}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	capacity, ok := m.entries[key]
	if !ok {
		return 0, ErrNotFound
	}
	return capacity, nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, capacity int) error {
	m.mu.Lock()
	m.entries[key] = capacity
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; !ok {
		return ErrNotFound
	}
	delete(m.entries, key)
	return nil
}

func (m *MemoryStore) List(ctx context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, len(m.entries))
	for key, capacity := range m.entries {
		out = append(out, Entry{Key: key, Kind: kindOf(key), Capacity: capacity})
	}
	return out, nil
}
