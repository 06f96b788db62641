package memory

import (
	"context"
	"sync"

	"github.com/helicon-labs/vectra/internal/core/domain"
	"github.com/helicon-labs/vectra/internal/core/ports/driven"
)

// Ensure VectorIndex implements the interface.
var _ driven.VectorIndex = (*VectorIndex)(nil)

// VectorIndex is an in-memory implementation of driven.VectorIndex.
// Records do not survive process restart; intended for tests.
type VectorIndex struct {
	mu      sync.RWMutex
	records map[string]domain.IndexRecord
}

// NewVectorIndex creates a new in-memory vector index.
func NewVectorIndex() *VectorIndex {
	return &VectorIndex{
		records: make(map[string]domain.IndexRecord),
	}
}

// Upsert inserts or overwrites records by ID.
func (v *VectorIndex) Upsert(_ context.Context, records []domain.IndexRecord) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, rec := range records {
		v.records[rec.ID] = rec
	}
	return nil
}

// Delete removes records by ID. Absent IDs are ignored.
func (v *VectorIndex) Delete(_ context.Context, ids []string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, id := range ids {
		delete(v.records, id)
	}
	return nil
}

// Count returns the number of records in the index.
func (v *VectorIndex) Count(_ context.Context) (int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.records), nil
}

// IDs returns all record IDs in the index.
func (v *VectorIndex) IDs(_ context.Context) ([]string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	ids := make([]string, 0, len(v.records))
	for id := range v.records {
		ids = append(ids, id)
	}
	return ids, nil
}

// Get returns the stored record for an ID. Test helper.
func (v *VectorIndex) Get(id string) (domain.IndexRecord, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	rec, ok := v.records[id]
	return rec, ok
}

// Close releases resources.
func (v *VectorIndex) Close() error {
	return nil
}
