// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - RecordSource: Enumerates records from the event log
//   - LedgerStore: Fingerprint ledger persistence
//   - RunStore: Run history persistence
//   - BuilderRegistry / DocumentBuilder: Record-to-document transform
//   - EmbeddingService: Generates vector embeddings
//   - VectorIndex: Vector persistence
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
