package driving

import (
	"context"

	"github.com/helicon-labs/vectra/internal/core/domain"
)

// IngestOrchestrator drives the full ingestion cycle: change detection,
// document building, embedding, index writes and ledger commits.
type IngestOrchestrator interface {
	// Run executes one ingestion cycle in the given mode and returns
	// its report. Per-record failures are captured in the ledger and
	// counted in the report; only unrecoverable errors are returned.
	Run(ctx context.Context, mode domain.Mode) (*domain.RunReport, error)

	// Stats reports ledger and index state without mutating anything.
	Stats(ctx context.Context) (*domain.Stats, error)
}
