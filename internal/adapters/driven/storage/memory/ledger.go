package memory

import (
	"context"
	"sync"

	"github.com/helicon-labs/vectra/internal/core/domain"
	"github.com/helicon-labs/vectra/internal/core/ports/driven"
)

// Ensure LedgerStore implements the interface.
var _ driven.LedgerStore = (*LedgerStore)(nil)

// LedgerStore is an in-memory implementation of driven.LedgerStore.
// Entries do not survive process restart; intended for tests.
type LedgerStore struct {
	mu      sync.RWMutex
	entries map[domain.RecordRef]domain.LedgerEntry
}

// NewLedgerStore creates a new in-memory ledger.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		entries: make(map[domain.RecordRef]domain.LedgerEntry),
	}
}

// Get retrieves the entry for a record identity.
func (s *LedgerStore) Get(_ context.Context, ref domain.RecordRef) (*domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[ref]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &entry, nil
}

// Upsert stores or overwrites the entry for an identity.
func (s *LedgerStore) Upsert(_ context.Context, entry domain.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Ref] = entry
	return nil
}

// Delete removes the entry for an identity.
func (s *LedgerStore) Delete(_ context.Context, ref domain.RecordRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, ref)
	return nil
}

// All returns every ledger entry.
func (s *LedgerStore) All(_ context.Context) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]domain.LedgerEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, entry)
	}
	return entries, nil
}

// Ensure RunStore implements the interface.
var _ driven.RunStore = (*RunStore)(nil)

// RunStore is an in-memory implementation of driven.RunStore.
type RunStore struct {
	mu   sync.RWMutex
	runs []domain.Run
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{}
}

// Save stores a completed run.
func (s *RunStore) Save(_ context.Context, run domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

// Last returns the most recent run.
func (s *RunStore) Last(_ context.Context) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.runs) == 0 {
		return nil, domain.ErrNotFound
	}
	run := s.runs[len(s.runs)-1]
	return &run, nil
}
