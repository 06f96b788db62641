package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTransient indicates a retryable failure (network hiccup,
	// embedding service rate limit). The affected ledger entries stay
	// pending and are retried on the next run.
	ErrTransient = errors.New("transient error")

	// ErrPermanentRecord indicates a malformed or unprocessable
	// record. The ledger entry is marked failed with a reason and is
	// not retried until the record's fingerprint changes.
	ErrPermanentRecord = errors.New("unprocessable record")

	// ErrConfiguration indicates invalid configuration. Fatal: the
	// run aborts before any mutation.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrConsistency indicates the ledger and the vector index have
	// diverged. Reported by stats, never auto-repaired.
	ErrConsistency = errors.New("ledger/index divergence")

	// ErrRunInProgress indicates an ingestion run is already running.
	// Runs are single-writer; concurrent runs are rejected.
	ErrRunInProgress = errors.New("run in progress")

	// ErrUnsupportedKind indicates no document builder is registered
	// for a record kind.
	ErrUnsupportedKind = errors.New("unsupported record kind")

	// ErrEmbeddingUnavailable indicates the embedding service is not
	// configured or unreachable.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
)
