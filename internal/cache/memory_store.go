package cache

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store used for tests and single-node
// development, where running Redis is overkill.
type MemoryStore struct {
	mutex  sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates a new in-memory store instance
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]string),
	}
}

// Get retrieves a value if it exists
func (ms *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	val, exists := ms.values[key]
	if !exists {
		return "", ErrKeyNotFound
	}
	return val, nil
}

// Set stores a value
func (ms *MemoryStore) Set(ctx context.Context, key string, value string) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	ms.values[key] = value
	return nil
}

// Delete removes keys
func (ms *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	for _, k := range keys {
		delete(ms.values, k)
	}
	return nil
}

// Ping is a no-op for the in-memory store
func (ms *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store
func (ms *MemoryStore) Close() error {
	return nil
}

// Len returns the number of stored values (for tests)
func (ms *MemoryStore) Len() int {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	return len(ms.values)
}
