package driven

import (
	"context"

	"github.com/helicon-labs/vectra/internal/core/domain"
)

// VectorIndex persists embedded documents.
// Query execution is out of scope: the index only supports the write
// operations the ingestion pipeline needs, plus the read operations
// the consistency check needs.
type VectorIndex interface {
	// Upsert inserts or overwrites records by ID. Idempotent: writing
	// the same ID twice is a harmless overwrite.
	Upsert(ctx context.Context, records []domain.IndexRecord) error

	// Delete removes records by ID. Deleting an absent ID is a no-op.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of records in the index.
	Count(ctx context.Context) (int, error)

	// IDs returns all record IDs in the index.
	IDs(ctx context.Context) ([]string, error)

	// Close releases resources.
	Close() error
}
