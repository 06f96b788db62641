package domain

import "fmt"

// RecordRef identifies a record within the event log.
// A record belongs to exactly one container (e.g. a single calendar).
type RecordRef struct {
	// ContainerID identifies the container the record belongs to.
	ContainerID string

	// RecordID is the record's identifier within its container.
	RecordID string
}

// DocumentID returns the stable external key for this record.
// It is used both as the vector index record ID and as the ledger key.
func (r RecordRef) DocumentID() string {
	return fmt.Sprintf("%s/%s", r.ContainerID, r.RecordID)
}

// Record is a single entry observed in the event log.
// Records are immutable once observed: a content change surfaces as a
// new fingerprint for the same RecordRef, never as a mutation.
type Record struct {
	// Ref is the record's identity.
	Ref RecordRef

	// Fingerprint changes if and only if the record's content changes.
	Fingerprint string

	// Kind identifies the record type (e.g. "calendar") and selects
	// the document builder used to transform it.
	Kind string

	// Payload is the record's structured fields, consumed only by the
	// document builder.
	Payload map[string]any
}

// RecordStamp is the (identity, fingerprint) pair used by change
// detection. Enumeration yields stamps; payloads are only needed for
// records that actually get processed.
type RecordStamp struct {
	Ref         RecordRef
	Fingerprint string
}

// Stamp returns the record's stamp.
func (r Record) Stamp() RecordStamp {
	return RecordStamp{Ref: r.Ref, Fingerprint: r.Fingerprint}
}

// Container describes a record container (e.g. one calendar).
type Container struct {
	// ID is the container identifier.
	ID string

	// Kind is the record kind stored in this container.
	Kind string

	// Label is the human-readable container name, if known.
	Label string

	// Metadata contains container-level key-value pairs from the
	// container's context file.
	Metadata map[string]any
}
