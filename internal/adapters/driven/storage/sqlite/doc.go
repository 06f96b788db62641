// Package sqlite provides a unified SQLite-based implementation of driven port interfaces.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements multiple store interfaces
// through a single database connection:
//
//   - LedgerStore: Fingerprint ledger persistence
//   - VectorIndex: Embedded document persistence
//   - RunStore: Run history persistence
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory.
//
// # Data Location
//
// By default, the database is stored at ~/.vectra/data/vectra.db
//
// # Durability
//
// The connection runs with synchronous=FULL so ledger writes are on
// disk before the orchestrator proceeds. This is what makes the
// index-write-before-ledger-commit ordering crash-safe.
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode.
package sqlite
