package store

import (
	"context"
	"sort"
	"sync"
)

type hashKey struct {
	sourceID   string
	collection string
	naturalID  string
}

// MemoryHashStore is the map-backed hash store for tests and ephemeral
// runs. Same contract as the SQLite store, no persistence.
type MemoryHashStore struct {
	mu     sync.Mutex
	hashes map[hashKey]string
}

func NewMemoryHashStore() *MemoryHashStore {
	return &MemoryHashStore{hashes: make(map[hashKey]string)}
}

func (m *MemoryHashStore) GetHash(ctx context.Context, sourceID, collection, naturalID string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[hashKey{sourceID, collection, naturalID}]
	return h, ok, nil
}

func (m *MemoryHashStore) PutHash(ctx context.Context, sourceID, collection, naturalID, contentHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashes[hashKey{sourceID, collection, naturalID}] = contentHash
	return nil
}

func (m *MemoryHashStore) ListNaturalIDs(ctx context.Context, sourceID, collection string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for k := range m.hashes {
		if k.sourceID == sourceID && k.collection == collection {
			out = append(out, k.naturalID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryHashStore) RemoveHash(ctx context.Context, sourceID, collection, naturalID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.hashes, hashKey{sourceID, collection, naturalID})
	return nil
}

// Len reports the number of stored hash entries across all scopes.
func (m *MemoryHashStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hashes)
}
