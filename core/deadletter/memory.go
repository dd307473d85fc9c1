package deadletter

import (
	"context"
	"sync"
)

// MemoryStore is a map-backed Store for tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]Record
}

// NewMemoryStore creates an empty in-memory dead-letter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]Record)}
}

// Discard implements Store.
func (ms *MemoryStore) Discard(ctx context.Context, rec Record) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	kind := rec.Kind()
	ms.records[kind] = append(ms.records[kind], rec)
	return nil
}

// Records returns the discarded records filed under the given command kind.
func (ms *MemoryStore) Records(kind string) []Record {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	out := make([]Record, len(ms.records[kind]))
	copy(out, ms.records[kind])
	return out
}

// Len returns the total number of discarded records.
func (ms *MemoryStore) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	n := 0
	for _, recs := range ms.records {
		n += len(recs)
	}
	return n
}
