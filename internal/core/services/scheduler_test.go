package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/helicon-labs/vectra/internal/core/domain"
)

// stubOrchestrator counts runs per mode.
type stubOrchestrator struct {
	full        atomic.Int64
	incremental atomic.Int64
}

func (s *stubOrchestrator) Run(_ context.Context, mode domain.Mode) (*domain.RunReport, error) {
	switch mode {
	case domain.ModeFull:
		s.full.Add(1)
	default:
		s.incremental.Add(1)
	}
	return &domain.RunReport{}, nil
}

func (s *stubOrchestrator) Stats(_ context.Context) (*domain.Stats, error) {
	return &domain.Stats{}, nil
}

func TestScheduler_IntervalDrivesRuns(t *testing.T) {
	orch := &stubOrchestrator{}
	sched := NewScheduler(SchedulerConfig{
		Interval: 20 * time.Millisecond,
		Debounce: time.Millisecond,
	}, orch, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sched.Start(context.Background())
	}()

	assert.Eventually(t, func() bool {
		return orch.incremental.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	sched.Stop()
	<-done
}

func TestScheduler_TriggersAreDebounced(t *testing.T) {
	orch := &stubOrchestrator{}
	triggers := make(chan struct{}, 16)
	sched := NewScheduler(SchedulerConfig{
		Interval: time.Hour, // interval out of the way
		Debounce: 10 * time.Millisecond,
	}, orch, triggers)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sched.Start(context.Background())
	}()

	// A burst of triggers collapses into a single run.
	for i := 0; i < 5; i++ {
		triggers <- struct{}{}
	}

	assert.Eventually(t, func() bool {
		return orch.incremental.Load() == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int64(1), orch.incremental.Load())

	sched.Stop()
	<-done
}

func TestScheduler_FullOnStart(t *testing.T) {
	orch := &stubOrchestrator{}
	sched := NewScheduler(SchedulerConfig{
		Interval:    time.Hour,
		Debounce:    time.Millisecond,
		FullOnStart: true,
	}, orch, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sched.Start(context.Background())
	}()

	assert.Eventually(t, func() bool {
		return orch.full.Load() == 1
	}, time.Second, 5*time.Millisecond)

	sched.Stop()
	<-done
}

func TestScheduler_StopWhileIdle(t *testing.T) {
	orch := &stubOrchestrator{}
	sched := NewScheduler(SchedulerConfig{Interval: time.Hour}, orch, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sched.Start(context.Background())
	}()

	// Give the loop a moment to start, then stop it.
	time.Sleep(10 * time.Millisecond)
	sched.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
