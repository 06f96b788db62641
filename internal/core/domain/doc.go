// Package domain defines the core business entities for Vectra.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Record: An entry observed in the event log
//   - LedgerEntry: The indexing outcome for one record
//   - Partition: The {new, changed, unchanged, deleted} classification
//   - Document: The searchable text form of a record
//   - IndexRecord: What the vector index persists
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
