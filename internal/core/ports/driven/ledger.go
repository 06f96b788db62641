package driven

import (
	"context"

	"github.com/helicon-labs/vectra/internal/core/domain"
)

// LedgerStore persists indexing outcomes keyed by record identity.
// Writes must be durable before they return: a crash must never leave
// the ledger claiming "indexed" for a record whose index write did not
// complete. The orchestrator guarantees the ordering (index write
// first, ledger commit second); the store guarantees durability.
type LedgerStore interface {
	// Get retrieves the entry for a record identity.
	// Returns domain.ErrNotFound if the record was never attempted.
	Get(ctx context.Context, ref domain.RecordRef) (*domain.LedgerEntry, error)

	// Upsert stores or overwrites the entry for an identity.
	// Atomic with respect to concurrent readers.
	Upsert(ctx context.Context, entry domain.LedgerEntry) error

	// Delete removes the entry for an identity.
	Delete(ctx context.Context, ref domain.RecordRef) error

	// All returns every ledger entry.
	All(ctx context.Context) ([]domain.LedgerEntry, error)
}

// RunStore persists the run history.
type RunStore interface {
	// Save stores a completed run.
	Save(ctx context.Context, run domain.Run) error

	// Last returns the most recent run.
	// Returns domain.ErrNotFound if no run has completed yet.
	Last(ctx context.Context) (*domain.Run, error)
}
