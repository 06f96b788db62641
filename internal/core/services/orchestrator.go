package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helicon-labs/vectra/internal/core/domain"
	"github.com/helicon-labs/vectra/internal/core/ports/driven"
	"github.com/helicon-labs/vectra/internal/core/ports/driving"
	"github.com/helicon-labs/vectra/internal/logger"
)

// Ensure Orchestrator implements the interface.
var _ driving.IngestOrchestrator = (*Orchestrator)(nil)

// DefaultBatchSize bounds how many documents are embedded and written
// per index batch when no batch size is configured.
const DefaultBatchSize = 100

// Orchestrator drives the ingestion cycle: detect changes, build
// documents, embed in batches, write to the index and commit the
// ledger.
//
// Ordering contract: a ledger entry is marked pending before its
// record enters the pipeline, and is only marked indexed after the
// index write is confirmed. On restart, any entry not indexed is
// reprocessed; reprocessing an already-written index record is a
// harmless idempotent overwrite.
type Orchestrator struct {
	source   driven.RecordSource
	ledger   driven.LedgerStore
	runs     driven.RunStore
	builders driven.BuilderRegistry
	embedder driven.EmbeddingService
	index    driven.VectorIndex

	batchSize int

	// Runs are single-writer: one run owns the ledger and index for
	// its duration.
	mu      sync.Mutex
	running bool
}

// Options configures the orchestrator.
type Options struct {
	// BatchSize bounds embedding and index-write batches.
	// Defaults to DefaultBatchSize.
	BatchSize int
}

// NewOrchestrator creates an ingestion orchestrator. Configuration is
// passed in explicitly; the orchestrator holds no process-wide state.
func NewOrchestrator(
	source driven.RecordSource,
	ledger driven.LedgerStore,
	runs driven.RunStore,
	builders driven.BuilderRegistry,
	embedder driven.EmbeddingService,
	index driven.VectorIndex,
	opts Options,
) *Orchestrator {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Orchestrator{
		source:    source,
		ledger:    ledger,
		runs:      runs,
		builders:  builders,
		embedder:  embedder,
		index:     index,
		batchSize: batchSize,
	}
}

// Run executes one ingestion cycle.
//
//nolint:gocyclo // Orchestration function with necessary sequential steps
func (o *Orchestrator) Run(ctx context.Context, mode domain.Mode) (*domain.RunReport, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, domain.ErrRunInProgress
	}
	o.running = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	startedAt := time.Now().UTC()
	logger.Info("Starting %s run", mode)

	// 1. Enumerate all current (identity, fingerprint) pairs.
	records, err := o.collectRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate records: %w", err)
	}

	stamps := make([]domain.RecordStamp, 0, len(records))
	for _, rec := range records {
		stamps = append(stamps, rec.Stamp())
	}

	// 2. Compute the partition against the ledger.
	entries, err := o.ledger.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	partition := Detect(stamps, entries, mode == domain.ModeForce)

	logger.Info("Partition: %d new, %d changed, %d unchanged, %d deleted",
		len(partition.New), len(partition.Changed), len(partition.Unchanged), len(partition.Deleted))

	report := &domain.RunReport{
		New:       len(partition.New),
		Changed:   len(partition.Changed),
		Unchanged: len(partition.Unchanged),
		Deleted:   len(partition.Deleted),
	}

	// 3-7. Process new and changed records in batches.
	toProcess := make([]domain.Record, 0, len(partition.New)+len(partition.Changed))
	for _, stamp := range partition.New {
		toProcess = append(toProcess, records[stamp.Ref])
	}
	for _, stamp := range partition.Changed {
		toProcess = append(toProcess, records[stamp.Ref])
	}

	containers, err := o.containerMap(ctx)
	if err != nil {
		return nil, fmt.Errorf("read containers: %w", err)
	}

	for start := 0; start < len(toProcess); start += o.batchSize {
		if err := ctx.Err(); err != nil {
			// Interrupted between batches. The ledger already holds
			// pending entries for unprocessed records, so the next
			// run resumes correctly.
			return nil, err
		}
		end := start + o.batchSize
		if end > len(toProcess) {
			end = len(toProcess)
		}
		indexed, failed := o.processBatch(ctx, toProcess[start:end], containers)
		report.Indexed += indexed
		report.Failed += failed
	}

	// 8. Propagate deletions: index first, ledger second.
	report.Failed += o.deleteRecords(ctx, partition.Deleted)

	// 9. Persist and report.
	run := domain.Run{
		ID:         uuid.NewString(),
		Mode:       mode,
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
		Report:     *report,
	}
	if err := o.runs.Save(ctx, run); err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}

	logger.Info("Run complete: %d indexed, %d failed", report.Indexed, report.Failed)
	return report, nil
}

// collectRecords drains the source enumeration into a map by identity.
// The full record set is needed up front: deletions can only be
// computed once every current identity has been observed.
func (o *Orchestrator) collectRecords(ctx context.Context) (map[domain.RecordRef]domain.Record, error) {
	recordsCh, errsCh := o.source.Enumerate(ctx)

	// Both channels must be fully drained: the record channel can close
	// with an error still buffered, and a partial enumeration mistaken
	// for a complete one would partition live records as deleted.
	records := make(map[domain.RecordRef]domain.Record)
	for recordsCh != nil || errsCh != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case err, ok := <-errsCh:
			if !ok {
				errsCh = nil
				continue
			}
			if err != nil {
				return nil, err
			}

		case rec, ok := <-recordsCh:
			if !ok {
				recordsCh = nil
				continue
			}
			records[rec.Ref] = rec
		}
	}
	return records, nil
}

// containerMap loads container metadata for document building.
func (o *Orchestrator) containerMap(ctx context.Context) (map[string]*domain.Container, error) {
	containers, err := o.source.Containers(ctx)
	if err != nil {
		return nil, err
	}
	m := make(map[string]*domain.Container, len(containers))
	for i := range containers {
		m[containers[i].ID] = &containers[i]
	}
	return m, nil
}

// processBatch runs one batch through the pipeline: mark pending,
// build, embed, write, commit. A failure inside the batch affects only
// the failed records; already-succeeded records in the same batch are
// still committed. Returns (indexed, failed) counts.
//
//nolint:gocognit // Pipeline orchestration with sequential steps
func (o *Orchestrator) processBatch(
	ctx context.Context,
	batch []domain.Record,
	containers map[string]*domain.Container,
) (int, int) {
	failed := 0

	// Mark every record pending before any pipeline work. A crash
	// mid-pipeline is then observable as pending on the next run.
	pending := make([]domain.Record, 0, len(batch))
	for _, rec := range batch {
		entry := domain.LedgerEntry{
			Ref:         rec.Ref,
			Fingerprint: rec.Fingerprint,
			Status:      domain.StatusPending,
			UpdatedAt:   time.Now().UTC(),
		}
		if err := o.ledger.Upsert(ctx, entry); err != nil {
			logger.Warn("Failed to mark %s pending: %v", rec.Ref.DocumentID(), err)
			failed++
			continue
		}
		pending = append(pending, rec)
	}

	// Build documents. Build failures are permanent: the record is
	// unprocessable until its fingerprint changes.
	built := make([]domain.Record, 0, len(pending))
	docs := make([]*domain.Document, 0, len(pending))
	for _, rec := range pending {
		doc, err := o.builders.Build(rec, containers[rec.Ref.ContainerID])
		if err != nil {
			o.markFailed(ctx, rec, fmt.Errorf("build document: %w", err))
			failed++
			continue
		}
		built = append(built, rec)
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return 0, failed
	}

	// Embed the batch. On batch failure fall back to per-record
	// embedding so one bad record does not fail its whole batch.
	vectors, embedErrs := o.embedDocuments(ctx, docs)

	indexRecords := make([]domain.IndexRecord, 0, len(docs))
	committed := make([]domain.Record, 0, len(docs))
	for i, doc := range docs {
		if embedErrs[i] != nil {
			o.recordFailure(ctx, built[i], embedErrs[i])
			failed++
			continue
		}
		indexRecords = append(indexRecords, domain.IndexRecord{
			ID:       doc.ID,
			Vector:   vectors[i],
			Content:  doc.Content,
			Metadata: doc.Metadata,
		})
		committed = append(committed, built[i])
	}
	if len(indexRecords) == 0 {
		return 0, failed
	}

	// Write to the index. Only after the index confirms does the
	// ledger record indexed; this ordering is the crash-safety
	// contract.
	if err := o.index.Upsert(ctx, indexRecords); err != nil {
		logger.Warn("Index write failed for batch of %d: %v", len(indexRecords), err)
		// Entries stay pending and are retried next run.
		return 0, failed + len(indexRecords)
	}

	indexed := 0
	now := time.Now().UTC()
	for _, rec := range committed {
		entry := domain.LedgerEntry{
			Ref:         rec.Ref,
			Fingerprint: rec.Fingerprint,
			Status:      domain.StatusIndexed,
			IndexedAt:   now,
			UpdatedAt:   now,
		}
		if err := o.ledger.Upsert(ctx, entry); err != nil {
			// The index holds the record but the ledger still says
			// pending. Safe: the record is re-embedded and
			// re-upserted next run.
			logger.Warn("Ledger commit failed for %s: %v", rec.Ref.DocumentID(), err)
			failed++
			continue
		}
		indexed++
	}
	return indexed, failed
}

// embedDocuments embeds a batch of documents, isolating per-record
// failures. Returns one vector and one error slot per document.
func (o *Orchestrator) embedDocuments(
	ctx context.Context,
	docs []*domain.Document,
) ([][]float32, []error) {
	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}

	vectors, err := o.embedder.EmbedBatch(ctx, texts)
	if err == nil && len(vectors) == len(docs) {
		return vectors, make([]error, len(docs))
	}
	if err != nil {
		logger.Debug("Batch embed failed, retrying per record: %v", err)
	}

	vectors = make([][]float32, len(docs))
	errs := make([]error, len(docs))
	for i, text := range texts {
		vectors[i], errs[i] = o.embedder.Embed(ctx, text)
	}
	return vectors, errs
}

// recordFailure updates the ledger for a failed record. Permanent
// failures are marked failed with a reason; transient failures leave
// the entry pending so the next run retries it.
func (o *Orchestrator) recordFailure(ctx context.Context, rec domain.Record, err error) {
	if errors.Is(err, domain.ErrPermanentRecord) {
		o.markFailed(ctx, rec, err)
		return
	}
	logger.Debug("Transient failure for %s, left pending: %v", rec.Ref.DocumentID(), err)
}

// markFailed writes a failed ledger entry with the failure reason.
func (o *Orchestrator) markFailed(ctx context.Context, rec domain.Record, cause error) {
	entry := domain.LedgerEntry{
		Ref:         rec.Ref,
		Fingerprint: rec.Fingerprint,
		Status:      domain.StatusFailed,
		Reason:      cause.Error(),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := o.ledger.Upsert(ctx, entry); err != nil {
		logger.Warn("Failed to mark %s failed: %v", rec.Ref.DocumentID(), err)
	}
}

// deleteRecords removes deleted identities from the index and then
// from the ledger, in that order (external state first, ledger
// second). Returns the number of identities that could not be removed.
func (o *Orchestrator) deleteRecords(ctx context.Context, refs []domain.RecordRef) int {
	failed := 0
	for _, ref := range refs {
		if err := o.index.Delete(ctx, []string{ref.DocumentID()}); err != nil {
			logger.Warn("Failed to delete %s from index: %v", ref.DocumentID(), err)
			failed++
			continue
		}
		if err := o.ledger.Delete(ctx, ref); err != nil {
			logger.Warn("Failed to delete ledger entry %s: %v", ref.DocumentID(), err)
			failed++
		}
	}
	return failed
}

// Stats reports ledger and index state. Read-only: no mutation, no
// pipeline invocation.
func (o *Orchestrator) Stats(ctx context.Context) (*domain.Stats, error) {
	entries, err := o.ledger.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	stats := &domain.Stats{}
	perContainer := make(map[string]*domain.ContainerStats)
	indexedIDs := make(map[string]struct{})

	for _, e := range entries {
		cs, ok := perContainer[e.Ref.ContainerID]
		if !ok {
			cs = &domain.ContainerStats{ContainerID: e.Ref.ContainerID}
			perContainer[e.Ref.ContainerID] = cs
		}
		switch e.Status {
		case domain.StatusIndexed:
			stats.Indexed++
			cs.Indexed++
			indexedIDs[e.Ref.DocumentID()] = struct{}{}
			if e.IndexedAt.After(cs.LastIndexed) {
				cs.LastIndexed = e.IndexedAt
			}
		case domain.StatusPending:
			stats.Pending++
			cs.Pending++
		case domain.StatusFailed:
			stats.Failed++
			cs.Failed++
		}
	}

	for _, cs := range perContainer {
		stats.Containers = append(stats.Containers, *cs)
	}
	sort.Slice(stats.Containers, func(i, j int) bool {
		return stats.Containers[i].ContainerID < stats.Containers[j].ContainerID
	})

	stats.IndexCount, err = o.index.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count index: %w", err)
	}

	if msg := o.checkConsistency(ctx, indexedIDs); msg != "" {
		stats.ConsistencyErr = msg
	}

	lastRun, err := o.runs.Last(ctx)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("read last run: %w", err)
	}
	stats.LastRun = lastRun

	return stats, nil
}

// checkConsistency compares the ledger's indexed set against the index
// contents. Divergence is reported, not repaired: auto-repair risks
// silent data loss.
func (o *Orchestrator) checkConsistency(ctx context.Context, indexedIDs map[string]struct{}) string {
	ids, err := o.index.IDs(ctx)
	if err != nil {
		return fmt.Sprintf("%v: listing index ids: %v", domain.ErrConsistency, err)
	}

	inIndex := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		inIndex[id] = struct{}{}
	}

	var missing, orphaned int
	for id := range indexedIDs {
		if _, ok := inIndex[id]; !ok {
			missing++
		}
	}
	for _, id := range ids {
		if _, ok := indexedIDs[id]; !ok {
			orphaned++
		}
	}

	if missing == 0 && orphaned == 0 {
		return ""
	}
	return fmt.Sprintf("%v: %d ledger-indexed records missing from index, %d index records unknown to ledger",
		domain.ErrConsistency, missing, orphaned)
}
