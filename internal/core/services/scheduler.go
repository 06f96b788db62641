package services

import (
	"context"
	"sync"
	"time"

	"github.com/helicon-labs/vectra/internal/core/domain"
	"github.com/helicon-labs/vectra/internal/core/ports/driving"
	"github.com/helicon-labs/vectra/internal/logger"
)

// SchedulerConfig configures the background ingestion loop.
type SchedulerConfig struct {
	// Interval between periodic incremental runs.
	Interval time.Duration

	// Debounce delays trigger-driven runs so a burst of filesystem
	// events results in a single run.
	Debounce time.Duration

	// FullOnStart runs a full ingestion before the loop begins.
	FullOnStart bool
}

// Scheduler runs incremental ingestion on an interval and on external
// triggers (e.g. filesystem change notifications).
type Scheduler struct {
	config   SchedulerConfig
	orch     driving.IngestOrchestrator
	triggers <-chan struct{}

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewScheduler creates a scheduler. triggers may be nil, in which case
// only the interval drives runs.
func NewScheduler(config SchedulerConfig, orch driving.IngestOrchestrator, triggers <-chan struct{}) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Minute
	}
	if config.Debounce <= 0 {
		config.Debounce = 2 * time.Second
	}
	return &Scheduler{
		config:   config,
		orch:     orch,
		triggers: triggers,
	}
}

// Start begins the scheduler loop. Blocks until ctx is cancelled or
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	if s.config.FullOnStart {
		s.runOnce(ctx, domain.ModeFull)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	var debounce *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-s.stopCh:
			return nil

		case <-ticker.C:
			s.runOnce(ctx, domain.ModeIncremental)

		case _, ok := <-s.triggers:
			if !ok {
				s.triggers = nil
				continue
			}
			// Collapse bursts of triggers into one run.
			if debounce == nil {
				debounce = time.NewTimer(s.config.Debounce)
				debounceCh = debounce.C
			} else {
				if !debounce.Stop() {
					<-debounce.C
				}
				debounce.Reset(s.config.Debounce)
			}

		case <-debounceCh:
			debounce = nil
			debounceCh = nil
			s.runOnce(ctx, domain.ModeIncremental)
		}
	}
}

// Stop gracefully shuts down the scheduler loop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
}

// runOnce executes one run, logging instead of propagating errors so
// the loop survives transient failures.
func (s *Scheduler) runOnce(ctx context.Context, mode domain.Mode) {
	report, err := s.orch.Run(ctx, mode)
	if err != nil {
		logger.Warn("Scheduled %s run failed: %v", mode, err)
		return
	}
	logger.Info("Scheduled %s run: %d indexed, %d failed",
		mode, report.Indexed, report.Failed)
}
