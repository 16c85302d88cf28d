// Package dest provides destination implementations. The in-memory
// destination backs tests and dry runs; the SQLite-backed table destination
// lives in the store package next to its schema.
package dest

import (
	"context"
	"sort"
	"sync"

	"github.com/weftlabs/weft/internal/record"
)

// memoryKey mirrors the table destination's primary key: fan-out siblings
// from one source record carry the same lineage, so the payload hash is
// what keeps them distinct.
type memoryKey struct {
	sourceID    string
	naturalID   string
	payloadHash string
}

// Memory is an in-memory destination for tests and dry runs. FailUpsert and
// FailDelete, when set, intercept operations for failure injection.
type Memory struct {
	Name string

	FailUpsert func(rec record.RoutedRecord) error
	FailDelete func(sourceID, naturalID string) error

	mu      sync.Mutex
	records map[memoryKey]record.RoutedRecord
	upserts int
	deletes int
}

func NewMemory(name string) *Memory {
	return &Memory{
		Name:    name,
		records: make(map[memoryKey]record.RoutedRecord),
	}
}

func (m *Memory) Upsert(ctx context.Context, rec record.RoutedRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.FailUpsert != nil {
		if err := m.FailUpsert(rec); err != nil {
			return err
		}
	}
	hash, err := record.PayloadHash(rec.Payload)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	m.records[memoryKey{rec.SourceID, rec.NaturalID, hash}] = rec
	return nil
}

func (m *Memory) Delete(ctx context.Context, sourceID, naturalID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.FailDelete != nil {
		if err := m.FailDelete(sourceID, naturalID); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	for k := range m.records {
		if k.sourceID == sourceID && k.naturalID == naturalID {
			delete(m.records, k)
		}
	}
	return nil
}

// Records returns the stored records ordered by lineage then payload hash,
// for assertions.
func (m *Memory) Records() []record.RoutedRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	type entry struct {
		key memoryKey
		rec record.RoutedRecord
	}
	entries := make([]entry, 0, len(m.records))
	for k, rec := range m.records {
		entries = append(entries, entry{k, rec})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.rec.Lineage != b.rec.Lineage {
			return a.rec.Lineage < b.rec.Lineage
		}
		return a.key.payloadHash < b.key.payloadHash
	})

	out := make([]record.RoutedRecord, len(entries))
	for i, e := range entries {
		out[i] = e.rec
	}
	return out
}

// NaturalIDs returns the distinct (sourceID, naturalID) natural ids with at
// least one stored record, sorted.
func (m *Memory) NaturalIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := make(map[string]struct{})
	for k := range m.records {
		set[k.sourceID+"/"+k.naturalID] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Upserts returns the number of accepted upsert calls, replacements
// included.
func (m *Memory) Upserts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts
}

// Deletes returns the number of accepted delete calls.
func (m *Memory) Deletes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deletes
}
