package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helicon-labs/vectra/internal/adapters/driven/embedding/static"
	"github.com/helicon-labs/vectra/internal/adapters/driven/storage/memory"
	"github.com/helicon-labs/vectra/internal/core/domain"
	"github.com/helicon-labs/vectra/internal/core/ports/driven"
)

// --- Mock implementations for orchestrator testing ---

// mockSource implements driven.RecordSource over a fixed record slice.
type mockSource struct {
	records    []domain.Record
	containers []domain.Container
	enumErr    error
}

func (m *mockSource) Enumerate(ctx context.Context) (<-chan domain.Record, <-chan error) {
	records := make(chan domain.Record)
	errs := make(chan error, 1)

	go func() {
		defer close(records)
		defer close(errs)

		for _, rec := range m.records {
			select {
			case <-ctx.Done():
				return
			case records <- rec:
			}
		}
		// The error lands in the buffered channel just before both
		// channels close, like a scan failing on a late segment.
		if m.enumErr != nil {
			errs <- m.enumErr
		}
	}()

	return records, errs
}

func (m *mockSource) Containers(_ context.Context) ([]domain.Container, error) {
	return m.containers, nil
}

func (m *mockSource) Container(_ context.Context, id string) (*domain.Container, error) {
	for i := range m.containers {
		if m.containers[i].ID == id {
			return &m.containers[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

// set replaces a record, or appends it if absent.
func (m *mockSource) set(rec domain.Record) {
	for i := range m.records {
		if m.records[i].Ref == rec.Ref {
			m.records[i] = rec
			return
		}
	}
	m.records = append(m.records, rec)
}

// remove drops a record from the source.
func (m *mockSource) remove(ref domain.RecordRef) {
	out := m.records[:0]
	for _, rec := range m.records {
		if rec.Ref != ref {
			out = append(out, rec)
		}
	}
	m.records = out
}

// mockBuilders implements driven.BuilderRegistry. Records of kind
// "calendar" become documents whose content is the payload "text"
// field; any other kind is unsupported.
type mockBuilders struct{}

func (mockBuilders) Build(record domain.Record, _ *domain.Container) (*domain.Document, error) {
	if record.Kind != "calendar" {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedKind, record.Kind)
	}
	text, _ := record.Payload["text"].(string)
	return &domain.Document{
		ID:       record.Ref.DocumentID(),
		Content:  text,
		Metadata: map[string]any{"container_id": record.Ref.ContainerID},
	}, nil
}

func (mockBuilders) Register(_ driven.DocumentBuilder) {}
func (mockBuilders) Kinds() []string                   { return []string{"calendar"} }

// flakyEmbedder wraps the static embedder and injects failures for
// specific texts. EmbedBatch fails wholesale when any text in the
// batch is poisoned, forcing the per-record fallback.
type flakyEmbedder struct {
	*static.EmbeddingService
	failures map[string]error
}

func newFlakyEmbedder(failures map[string]error) *flakyEmbedder {
	return &flakyEmbedder{
		EmbeddingService: static.NewEmbeddingService(8),
		failures:         failures,
	}
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err, ok := f.failures[text]; ok {
		return nil, err
	}
	return f.EmbeddingService.Embed(ctx, text)
}

func (f *flakyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for _, text := range texts {
		if err, ok := f.failures[text]; ok {
			return nil, err
		}
	}
	return f.EmbeddingService.EmbedBatch(ctx, texts)
}

// failingIndex wraps the memory index and fails upserts on demand.
type failingIndex struct {
	*memory.VectorIndex
	upsertErr error
}

func (f *failingIndex) Upsert(ctx context.Context, records []domain.IndexRecord) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	return f.VectorIndex.Upsert(ctx, records)
}

// --- Fixture ---

type fixture struct {
	source   *mockSource
	ledger   *memory.LedgerStore
	runs     *memory.RunStore
	embedder *static.EmbeddingService
	index    *memory.VectorIndex
	orch     *Orchestrator
}

func newFixture(records ...domain.Record) *fixture {
	f := &fixture{
		source:   &mockSource{records: records},
		ledger:   memory.NewLedgerStore(),
		runs:     memory.NewRunStore(),
		embedder: static.NewEmbeddingService(8),
		index:    memory.NewVectorIndex(),
	}
	f.orch = NewOrchestrator(f.source, f.ledger, f.runs, mockBuilders{}, f.embedder, f.index, Options{BatchSize: 10})
	return f
}

func calendarRecord(container, record, fp, text string) domain.Record {
	return domain.Record{
		Ref:         domain.RecordRef{ContainerID: container, RecordID: record},
		Fingerprint: fp,
		Kind:        "calendar",
		Payload:     map[string]any{"text": text},
	}
}

// --- Tests ---

func TestRun_FullThenRerun_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(
		calendarRecord("cal-1", "a", "1", "standup"),
		calendarRecord("cal-1", "b", "1", "retro"),
	)

	// First run: both records are new.
	report, err := f.orch.Run(ctx, domain.ModeFull)
	require.NoError(t, err)
	assert.Equal(t, 2, report.New)
	assert.Equal(t, 2, report.Indexed)
	assert.Equal(t, 0, report.Failed)

	count, err := f.index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	entry, err := f.ledger.Get(ctx, domain.RecordRef{ContainerID: "cal-1", RecordID: "a"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIndexed, entry.Status)
	assert.Equal(t, "1", entry.Fingerprint)

	embedCalls := f.embedder.Calls()
	assert.Equal(t, 2, embedCalls)

	// Second run with no source changes: everything unchanged, zero
	// embedding calls, index content set identical.
	report, err = f.orch.Run(ctx, domain.ModeFull)
	require.NoError(t, err)
	assert.Equal(t, 0, report.New)
	assert.Equal(t, 2, report.Unchanged)
	assert.Equal(t, 0, report.Indexed)
	assert.Equal(t, embedCalls, f.embedder.Calls(), "second run must not embed")

	count, err = f.index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRun_FingerprintChange_Reembeds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(
		calendarRecord("cal-1", "a", "1", "standup"),
		calendarRecord("cal-1", "b", "1", "retro"),
	)

	_, err := f.orch.Run(ctx, domain.ModeFull)
	require.NoError(t, err)

	before, ok := f.index.Get("cal-1/b")
	require.True(t, ok)

	// Change b's content without changing its identity.
	f.source.set(calendarRecord("cal-1", "b", "2", "retro rescheduled"))

	report, err := f.orch.Run(ctx, domain.ModeIncremental)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Changed)
	assert.Equal(t, 1, report.Unchanged)
	assert.Equal(t, 1, report.Indexed)

	// Index count stays 2 but b is refreshed.
	count, err := f.index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	after, ok := f.index.Get("cal-1/b")
	require.True(t, ok)
	assert.NotEqual(t, before.Content, after.Content)

	entry, err := f.ledger.Get(ctx, domain.RecordRef{ContainerID: "cal-1", RecordID: "b"})
	require.NoError(t, err)
	assert.Equal(t, "2", entry.Fingerprint)
	assert.Equal(t, domain.StatusIndexed, entry.Status)
}

func TestRun_CrashSafety_PendingIsReprocessed(t *testing.T) {
	ctx := context.Background()
	rec := calendarRecord("cal-1", "a", "1", "standup")
	f := newFixture(rec)

	// Simulate a crash after the index write but before the ledger
	// commit: the index already holds the record, the ledger still
	// says pending.
	require.NoError(t, f.index.Upsert(ctx, []domain.IndexRecord{{
		ID:      rec.Ref.DocumentID(),
		Content: "standup",
	}}))
	require.NoError(t, f.ledger.Upsert(ctx, domain.LedgerEntry{
		Ref:         rec.Ref,
		Fingerprint: "1",
		Status:      domain.StatusPending,
	}))

	report, err := f.orch.Run(ctx, domain.ModeIncremental)
	require.NoError(t, err)

	// The record is re-embedded and re-upserted without duplication.
	assert.Equal(t, 1, report.Changed)
	assert.Equal(t, 1, report.Indexed)
	assert.Equal(t, 1, f.embedder.Calls())

	count, err := f.index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	entry, err := f.ledger.Get(ctx, rec.Ref)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIndexed, entry.Status)
}

func TestRun_DeletionPropagation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(
		calendarRecord("cal-1", "a", "1", "standup"),
		calendarRecord("cal-1", "b", "1", "retro"),
	)

	_, err := f.orch.Run(ctx, domain.ModeFull)
	require.NoError(t, err)

	f.source.remove(domain.RecordRef{ContainerID: "cal-1", RecordID: "b"})

	report, err := f.orch.Run(ctx, domain.ModeIncremental)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deleted)

	_, ok := f.index.Get("cal-1/b")
	assert.False(t, ok, "index must no longer return the deleted id")

	_, err = f.ledger.Get(ctx, domain.RecordRef{ContainerID: "cal-1", RecordID: "b"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	count, err := f.index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRun_PermanentFailure_IsolatedWithinBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(
		calendarRecord("cal-1", "good-1", "1", "standup"),
		calendarRecord("cal-1", "bad", "1", "poisoned"),
		calendarRecord("cal-1", "good-2", "1", "retro"),
	)
	embedder := newFlakyEmbedder(map[string]error{
		"poisoned": fmt.Errorf("%w: invalid input", domain.ErrPermanentRecord),
	})
	f.orch = NewOrchestrator(f.source, f.ledger, f.runs, mockBuilders{}, embedder, f.index, Options{BatchSize: 10})

	report, err := f.orch.Run(ctx, domain.ModeFull)
	require.NoError(t, err)

	// One bad record fails; the rest of its batch still lands.
	assert.Equal(t, 2, report.Indexed)
	assert.Equal(t, 1, report.Failed)

	count, err := f.index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	entry, err := f.ledger.Get(ctx, domain.RecordRef{ContainerID: "cal-1", RecordID: "bad"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, entry.Status)
	assert.Contains(t, entry.Reason, "unprocessable record")
}

func TestRun_TransientFailure_LeftPendingAndRetried(t *testing.T) {
	ctx := context.Background()
	f := newFixture(calendarRecord("cal-1", "a", "1", "standup"))
	embedder := newFlakyEmbedder(map[string]error{
		"standup": fmt.Errorf("%w: rate limited", domain.ErrTransient),
	})
	f.orch = NewOrchestrator(f.source, f.ledger, f.runs, mockBuilders{}, embedder, f.index, Options{BatchSize: 10})

	report, err := f.orch.Run(ctx, domain.ModeFull)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Indexed)
	assert.Equal(t, 1, report.Failed)

	entry, err := f.ledger.Get(ctx, domain.RecordRef{ContainerID: "cal-1", RecordID: "a"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, entry.Status)

	// The service recovers; the pending entry is retried next run.
	f.orch = NewOrchestrator(f.source, f.ledger, f.runs, mockBuilders{}, f.embedder, f.index, Options{BatchSize: 10})
	report, err = f.orch.Run(ctx, domain.ModeIncremental)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Changed)
	assert.Equal(t, 1, report.Indexed)

	entry, err = f.ledger.Get(ctx, domain.RecordRef{ContainerID: "cal-1", RecordID: "a"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIndexed, entry.Status)
}

func TestRun_IndexWriteFailure_BatchStaysPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(calendarRecord("cal-1", "a", "1", "standup"))
	broken := &failingIndex{VectorIndex: f.index, upsertErr: errors.New("disk full")}
	f.orch = NewOrchestrator(f.source, f.ledger, f.runs, mockBuilders{}, f.embedder, broken, Options{BatchSize: 10})

	report, err := f.orch.Run(ctx, domain.ModeFull)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Indexed)
	assert.Equal(t, 1, report.Failed)

	// The ledger must not claim indexed for a record the index never
	// confirmed.
	entry, err := f.ledger.Get(ctx, domain.RecordRef{ContainerID: "cal-1", RecordID: "a"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, entry.Status)

	// Once the index recovers, the pending entry completes.
	broken.upsertErr = nil
	report, err = f.orch.Run(ctx, domain.ModeIncremental)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)
}

func TestRun_UnsupportedKind_MarkedFailed(t *testing.T) {
	ctx := context.Background()
	rec := calendarRecord("cal-1", "a", "1", "standup")
	rec.Kind = "spreadsheet"
	f := newFixture(rec)

	report, err := f.orch.Run(ctx, domain.ModeFull)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Indexed)
	assert.Equal(t, 1, report.Failed)

	entry, err := f.ledger.Get(ctx, rec.Ref)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, entry.Status)
	assert.Contains(t, entry.Reason, "unsupported record kind")
}

func TestRun_ForceMode_ReembedsEverything(t *testing.T) {
	ctx := context.Background()
	f := newFixture(
		calendarRecord("cal-1", "a", "1", "standup"),
		calendarRecord("cal-1", "b", "1", "retro"),
	)

	_, err := f.orch.Run(ctx, domain.ModeFull)
	require.NoError(t, err)
	calls := f.embedder.Calls()

	report, err := f.orch.Run(ctx, domain.ModeForce)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Changed)
	assert.Equal(t, 2, report.Indexed)
	assert.Equal(t, calls+2, f.embedder.Calls())

	count, err := f.index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRun_EnumerationError_AbortsBeforeMutation(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.source.enumErr = errors.New("log directory unreadable")

	_, err := f.orch.Run(ctx, domain.ModeFull)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enumerate records")

	entries, err := f.ledger.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_MidEnumerationError_PreservesUnseenRecords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(
		calendarRecord("cal-1", "a", "1", "standup"),
		calendarRecord("cal-1", "b", "1", "retro"),
	)

	_, err := f.orch.Run(ctx, domain.ModeFull)
	require.NoError(t, err)

	// A later scan yields only part of the log before failing. The
	// partial view must never be mistaken for a complete enumeration,
	// or the unseen record would be partitioned as deleted. Repeated
	// runs guard against the select between the record and error
	// channels going either way.
	f.source.remove(domain.RecordRef{ContainerID: "cal-1", RecordID: "b"})
	f.source.enumErr = errors.New("segment unreadable")

	for i := 0; i < 50; i++ {
		_, err = f.orch.Run(ctx, domain.ModeIncremental)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "enumerate records")
	}

	_, ok := f.index.Get("cal-1/b")
	assert.True(t, ok, "record unseen by the failed scan must stay indexed")

	entry, err := f.ledger.Get(ctx, domain.RecordRef{ContainerID: "cal-1", RecordID: "b"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIndexed, entry.Status)
}

func TestRun_SavesRunHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(calendarRecord("cal-1", "a", "1", "standup"))

	start := time.Now().UTC()
	_, err := f.orch.Run(ctx, domain.ModeFull)
	require.NoError(t, err)

	run, err := f.runs.Last(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, domain.ModeFull, run.Mode)
	assert.Equal(t, 1, run.Report.Indexed)
	assert.False(t, run.StartedAt.Before(start.Truncate(time.Second)))
	assert.False(t, run.FinishedAt.Before(run.StartedAt))
}

func TestStats_CountsAndLastRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(
		calendarRecord("cal-1", "a", "1", "standup"),
		calendarRecord("cal-2", "b", "1", "retro"),
	)

	_, err := f.orch.Run(ctx, domain.ModeFull)
	require.NoError(t, err)

	stats, err := f.orch.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Indexed)
	assert.Equal(t, 0, stats.Pending)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 2, stats.IndexCount)
	assert.Empty(t, stats.ConsistencyErr)
	require.NotNil(t, stats.LastRun)
	assert.Equal(t, domain.ModeFull, stats.LastRun.Mode)

	require.Len(t, stats.Containers, 2)
	assert.Equal(t, "cal-1", stats.Containers[0].ContainerID)
	assert.Equal(t, 1, stats.Containers[0].Indexed)
}

func TestStats_ReportsDivergence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(calendarRecord("cal-1", "a", "1", "standup"))

	_, err := f.orch.Run(ctx, domain.ModeFull)
	require.NoError(t, err)

	// Remove the index record behind the ledger's back.
	require.NoError(t, f.index.Delete(ctx, []string{"cal-1/a"}))

	stats, err := f.orch.Stats(ctx)
	require.NoError(t, err)
	assert.Contains(t, stats.ConsistencyErr, "ledger/index divergence")
	assert.Contains(t, stats.ConsistencyErr, "1 ledger-indexed records missing")
}

func TestStats_IsReadOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(calendarRecord("cal-1", "a", "1", "standup"))

	_, err := f.orch.Stats(ctx)
	require.NoError(t, err)

	// No pipeline invocation, no ledger writes.
	assert.Equal(t, 0, f.embedder.Calls())
	entries, err := f.ledger.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
