package services

import (
	"github.com/helicon-labs/vectra/internal/core/domain"
)

// Detect partitions the current record set against the ledger.
//
// It is a pure function: given the same stamps and ledger snapshot it
// always produces the same partition, and it performs no I/O.
//
// Classification per identity:
//   - absent from the ledger: new
//   - ledger fingerprint differs from the current one: changed
//   - fingerprints equal but the last attempt did not complete
//     (pending or failed): changed, so the ledger acts as the retry
//     queue
//   - fingerprints equal and indexed: unchanged
//   - present in the ledger but absent from the source: deleted
//
// In force mode every observed identity is returned as changed
// regardless of fingerprint equality; deleted computation is
// unaffected.
func Detect(current []domain.RecordStamp, ledger []domain.LedgerEntry, force bool) domain.Partition {
	entries := make(map[domain.RecordRef]domain.LedgerEntry, len(ledger))
	for _, e := range ledger {
		entries[e.Ref] = e
	}

	var p domain.Partition
	seen := make(map[domain.RecordRef]struct{}, len(current))

	for _, stamp := range current {
		seen[stamp.Ref] = struct{}{}

		if force {
			p.Changed = append(p.Changed, stamp)
			continue
		}

		entry, ok := entries[stamp.Ref]
		switch {
		case !ok:
			p.New = append(p.New, stamp)
		case entry.Fingerprint != stamp.Fingerprint:
			p.Changed = append(p.Changed, stamp)
		case entry.Status != domain.StatusIndexed:
			// Same fingerprint but the pipeline never confirmed an
			// index write. Retry rather than skip.
			p.Changed = append(p.Changed, stamp)
		default:
			p.Unchanged = append(p.Unchanged, stamp)
		}
	}

	for _, e := range ledger {
		if _, ok := seen[e.Ref]; !ok {
			p.Deleted = append(p.Deleted, e.Ref)
		}
	}

	return p
}
