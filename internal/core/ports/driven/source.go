package driven

import (
	"context"

	"github.com/helicon-labs/vectra/internal/core/domain"
)

// RecordSource enumerates records from an append-only event log.
// The log is grouped by container and partitioned into time-ordered
// segments; the source hides that layout and yields individual records.
type RecordSource interface {
	// Enumerate streams all current records with their fingerprints.
	// Returns channels for records and errors. The record channel is
	// closed when enumeration completes; a fatal error on the error
	// channel aborts the run.
	Enumerate(ctx context.Context) (<-chan domain.Record, <-chan error)

	// Containers lists the containers present in the event log.
	Containers(ctx context.Context) ([]domain.Container, error)

	// Container returns metadata for one container.
	// Returns domain.ErrNotFound if the container has no context file.
	Container(ctx context.Context, id string) (*domain.Container, error)
}
