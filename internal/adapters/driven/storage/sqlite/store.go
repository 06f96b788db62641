package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/helicon-labs/vectra/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/helicon-labs/vectra/internal/core/domain"
	"github.com/helicon-labs/vectra/internal/core/ports/driven"
)

// Store is a unified SQLite-based storage that provides the ledger,
// the vector index and the run history through wrapper types. Keeping
// all three in one database file means a single durable unit of state
// for the whole pipeline.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.vectra/data/vectra.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".vectra", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "vectra.db")

	// Open database with WAL mode. synchronous=FULL makes ledger
	// writes durable before Exec returns, which the crash-safety
	// ordering depends on.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// LedgerStore returns a LedgerStore interface backed by this store.
func (s *Store) LedgerStore() driven.LedgerStore {
	return &ledgerStore{store: s}
}

// RunStore returns a RunStore interface backed by this store.
func (s *Store) RunStore() driven.RunStore {
	return &runStore{store: s}
}

// VectorIndex returns a VectorIndex interface backed by this store.
func (s *Store) VectorIndex() driven.VectorIndex {
	return &vectorIndex{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	// Ensure schema_migrations table exists
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	// Find all up migrations
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_initial.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}

		if version <= currentVersion {
			continue // Already applied
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}

		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Ledger Store ====================

// ledgerStore implements driven.LedgerStore.
type ledgerStore struct {
	store *Store
}

var _ driven.LedgerStore = (*ledgerStore)(nil)

// Get retrieves the entry for a record identity.
func (s *ledgerStore) Get(ctx context.Context, ref domain.RecordRef) (*domain.LedgerEntry, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT container_id, record_id, fingerprint, status, reason, indexed_at, updated_at
		FROM ledger WHERE container_id = ? AND record_id = ?
	`, ref.ContainerID, ref.RecordID)

	return scanLedgerEntry(row)
}

// Upsert stores or overwrites the entry for an identity.
func (s *ledgerStore) Upsert(ctx context.Context, entry domain.LedgerEntry) error {
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}

	var indexedAt any
	if !entry.IndexedAt.IsZero() {
		indexedAt = entry.IndexedAt
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO ledger (container_id, record_id, fingerprint, status, reason, indexed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(container_id, record_id) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			status = excluded.status,
			reason = excluded.reason,
			indexed_at = excluded.indexed_at,
			updated_at = excluded.updated_at
	`, entry.Ref.ContainerID, entry.Ref.RecordID, entry.Fingerprint,
		string(entry.Status), entry.Reason, indexedAt, entry.UpdatedAt)

	if err != nil {
		return fmt.Errorf("saving ledger entry: %w", err)
	}
	return nil
}

// Delete removes the entry for an identity.
func (s *ledgerStore) Delete(ctx context.Context, ref domain.RecordRef) error {
	_, err := s.store.db.ExecContext(ctx,
		"DELETE FROM ledger WHERE container_id = ? AND record_id = ?",
		ref.ContainerID, ref.RecordID)
	if err != nil {
		return fmt.Errorf("deleting ledger entry: %w", err)
	}
	return nil
}

// All returns every ledger entry.
func (s *ledgerStore) All(ctx context.Context) ([]domain.LedgerEntry, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT container_id, record_id, fingerprint, status, reason, indexed_at, updated_at
		FROM ledger
	`)
	if err != nil {
		return nil, fmt.Errorf("querying ledger: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry //nolint:prealloc // size unknown from query
	for rows.Next() {
		entry, err := scanLedgerEntryRows(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ledger: %w", err)
	}

	return entries, nil
}

// scanLedgerEntry scans a single-row query result.
func scanLedgerEntry(row *sql.Row) (*domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	var status string
	var indexedAt sql.NullTime
	if err := row.Scan(&entry.Ref.ContainerID, &entry.Ref.RecordID, &entry.Fingerprint,
		&status, &entry.Reason, &indexedAt, &entry.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning ledger entry: %w", err)
	}
	entry.Status = domain.LedgerStatus(status)
	if indexedAt.Valid {
		entry.IndexedAt = indexedAt.Time
	}
	return &entry, nil
}

// scanLedgerEntryRows scans one row of a multi-row query result.
func scanLedgerEntryRows(rows *sql.Rows) (*domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	var status string
	var indexedAt sql.NullTime
	if err := rows.Scan(&entry.Ref.ContainerID, &entry.Ref.RecordID, &entry.Fingerprint,
		&status, &entry.Reason, &indexedAt, &entry.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scanning ledger entry: %w", err)
	}
	entry.Status = domain.LedgerStatus(status)
	if indexedAt.Valid {
		entry.IndexedAt = indexedAt.Time
	}
	return &entry, nil
}

// ==================== Vector Index ====================

// vectorIndex implements driven.VectorIndex.
type vectorIndex struct {
	store *Store
}

var _ driven.VectorIndex = (*vectorIndex)(nil)

// Upsert inserts or overwrites records by ID.
func (v *vectorIndex) Upsert(ctx context.Context, records []domain.IndexRecord) error {
	tx, err := v.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO index_records (id, vector, content, metadata)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			vector = excluded.vector,
			content = excluded.content,
			metadata = excluded.metadata
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		metadataJSON, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling metadata: %w", err)
		}

		vectorBlob := float32SliceToBytes(rec.Vector)

		if _, err := stmt.ExecContext(ctx, rec.ID, vectorBlob, rec.Content, string(metadataJSON)); err != nil {
			return fmt.Errorf("saving index record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Delete removes records by ID. Absent IDs are ignored.
func (v *vectorIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := v.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, "DELETE FROM index_records WHERE id = ?")
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("deleting index record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Count returns the number of records in the index.
func (v *vectorIndex) Count(ctx context.Context) (int, error) {
	var count int
	row := v.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM index_records")
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("counting index records: %w", err)
	}
	return count, nil
}

// IDs returns all record IDs in the index.
func (v *vectorIndex) IDs(ctx context.Context) ([]string, error) {
	rows, err := v.store.db.QueryContext(ctx, "SELECT id FROM index_records")
	if err != nil {
		return nil, fmt.Errorf("querying index ids: %w", err)
	}
	defer rows.Close()

	var ids []string //nolint:prealloc // size unknown from query
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning index id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating index ids: %w", err)
	}

	return ids, nil
}

// Get retrieves a single index record by ID.
func (v *vectorIndex) Get(ctx context.Context, id string) (*domain.IndexRecord, error) {
	row := v.store.db.QueryRowContext(ctx, `
		SELECT id, vector, content, metadata FROM index_records WHERE id = ?
	`, id)

	var rec domain.IndexRecord
	var vectorBlob []byte
	var metadataJSON string
	if err := row.Scan(&rec.ID, &vectorBlob, &rec.Content, &metadataJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning index record: %w", err)
	}

	rec.Vector = bytesToFloat32Slice(vectorBlob)
	if err := json.Unmarshal([]byte(metadataJSON), &rec.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshaling metadata: %w", err)
	}

	return &rec, nil
}

// Close is a no-op: the underlying connection is owned by Store.
func (v *vectorIndex) Close() error {
	return nil
}

// ==================== Run Store ====================

// runStore implements driven.RunStore.
type runStore struct {
	store *Store
}

var _ driven.RunStore = (*runStore)(nil)

// Save stores a completed run.
func (s *runStore) Save(ctx context.Context, run domain.Run) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO runs (id, mode, started_at, finished_at, new, changed, unchanged, deleted, indexed, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, string(run.Mode), run.StartedAt, run.FinishedAt,
		run.Report.New, run.Report.Changed, run.Report.Unchanged,
		run.Report.Deleted, run.Report.Indexed, run.Report.Failed)

	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	return nil
}

// Last returns the most recent run.
func (s *runStore) Last(ctx context.Context) (*domain.Run, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, mode, started_at, finished_at, new, changed, unchanged, deleted, indexed, failed
		FROM runs ORDER BY started_at DESC, id DESC LIMIT 1
	`)

	var run domain.Run
	var mode string
	if err := row.Scan(&run.ID, &mode, &run.StartedAt, &run.FinishedAt,
		&run.Report.New, &run.Report.Changed, &run.Report.Unchanged,
		&run.Report.Deleted, &run.Report.Indexed, &run.Report.Failed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	run.Mode = domain.Mode(mode)

	return &run, nil
}

// ==================== Helpers ====================

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
