package domain

import "time"

// LedgerStatus is the outcome of the most recent indexing attempt for
// a record.
type LedgerStatus string

const (
	// StatusPending means the record was selected for processing but
	// the pipeline has not confirmed an index write for it. Pending
	// entries are retried on the next run.
	StatusPending LedgerStatus = "pending"

	// StatusIndexed means the full pipeline completed and the vector
	// index holds a record for this fingerprint.
	StatusIndexed LedgerStatus = "indexed"

	// StatusFailed means the record could not be processed. Failed
	// entries are retried on the next run; a permanently failed record
	// is only reprocessed when its fingerprint changes or on force.
	StatusFailed LedgerStatus = "failed"
)

// LedgerEntry records the indexing outcome for a single record.
// At most one entry exists per RecordRef. An entry exists if and only
// if the record has been attempted.
type LedgerEntry struct {
	// Ref is the record identity this entry tracks.
	Ref RecordRef

	// Fingerprint is the record fingerprint at the last attempt.
	Fingerprint string

	// Status is the outcome of the last attempt.
	Status LedgerStatus

	// Reason describes why the last attempt failed. Empty unless
	// Status is StatusFailed.
	Reason string

	// IndexedAt is when the record was last successfully indexed.
	// Zero unless Status is StatusIndexed.
	IndexedAt time.Time

	// UpdatedAt is when this entry was last written.
	UpdatedAt time.Time
}

// Partition classifies the current record set against the ledger.
// The four sets are disjoint and together cover every identity that
// appears in either the source or the ledger.
type Partition struct {
	// New are records with no ledger entry.
	New []RecordStamp

	// Changed are records whose fingerprint differs from the ledger,
	// plus pending/failed entries awaiting retry.
	Changed []RecordStamp

	// Unchanged are records whose fingerprint matches an indexed
	// ledger entry. They are skipped entirely.
	Unchanged []RecordStamp

	// Deleted are identities the ledger knows but the source no
	// longer contains.
	Deleted []RecordRef
}

// Total returns the number of identities across all partition sets.
func (p Partition) Total() int {
	return len(p.New) + len(p.Changed) + len(p.Unchanged) + len(p.Deleted)
}
