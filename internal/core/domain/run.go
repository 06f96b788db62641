package domain

import "time"

// Mode selects how a run scans the event log.
type Mode string

const (
	// ModeFull scans the entire event log.
	ModeFull Mode = "full"

	// ModeIncremental is the same scan, typically invoked on a
	// schedule. The partitioning logic is identical to full mode.
	ModeIncremental Mode = "incremental"

	// ModeForce reindexes every observed record regardless of
	// fingerprint equality.
	ModeForce Mode = "force"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeFull, ModeIncremental, ModeForce:
		return Mode(s), true
	default:
		return "", false
	}
}

// RunReport summarises the outcome of one orchestrator run.
type RunReport struct {
	// New, Changed, Unchanged, Deleted are the partition sizes.
	New       int
	Changed   int
	Unchanged int
	Deleted   int

	// Indexed is how many records completed the full pipeline.
	Indexed int

	// Failed is how many records were left pending or failed.
	Failed int
}

// Run records one orchestrator invocation for the run history.
type Run struct {
	// ID is a UUID assigned at run start.
	ID string

	// Mode the run was invoked with.
	Mode Mode

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time
	FinishedAt time.Time

	// Report holds the run's counts.
	Report RunReport
}

// ContainerStats summarises ledger state for one container.
type ContainerStats struct {
	ContainerID string
	Indexed     int
	Pending     int
	Failed      int
	LastIndexed time.Time
}

// Stats is the read-only report produced by stats mode. It queries
// the ledger and index without invoking the pipeline.
type Stats struct {
	// Indexed, Pending, Failed are ledger entry counts by status.
	Indexed int
	Pending int
	Failed  int

	// IndexCount is the number of records in the vector index.
	IndexCount int

	// Containers breaks the ledger down per container.
	Containers []ContainerStats

	// LastRun is the most recent run, if any.
	LastRun *Run

	// ConsistencyErr describes a detected ledger/index divergence.
	// Divergence is reported, never auto-repaired.
	ConsistencyErr string
}
