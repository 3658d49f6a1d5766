package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localidx/fsindex/internal/config"
	"github.com/localidx/fsindex/internal/events"
)

func testConfig() config.Config {
	cfg := config.Default("", "")
	cfg.DispatchTick = 5 * time.Millisecond
	cfg.ResourceSampleInterval = time.Hour
	cfg.PruneInterval = time.Hour
	cfg.AnalyticsPersistInterval = time.Hour
	cfg.MaxConcurrentTasks = 2
	cfg.MaxQueueLength = 3
	cfg.DefaultTaskTimeout = time.Second
	cfg.DefaultMaxRetries = 1
	cfg.FSTaskRatePerSec = 1000
	cfg.FSTaskBurst = 1000
	return cfg
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.Fail(t, "condition not met before timeout")
}

func TestScheduleAndCompleteTask(t *testing.T) {
	cfg := testConfig()
	bus := events.NewBus()
	done := make(chan struct{}, 1)
	s := New(cfg, bus, map[Kind]Executor{
		KindCleanup: func(ctx context.Context, t *Task) (any, error) {
			done <- struct{}{}
			return "ok", nil
		},
	})
	s.Start()
	defer s.Close()

	id := s.Schedule(KindCleanup, nil, Normal)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("executor never ran")
	}

	waitFor(t, time.Second, func() bool {
		task, ok := s.TaskState(id)
		return ok && task.State == StateCompleted
	})
}

func TestUnknownKindFailsImmediatelyWithoutRetry(t *testing.T) {
	cfg := testConfig()
	bus := events.NewBus()
	s := New(cfg, bus, map[Kind]Executor{})
	s.Start()
	defer s.Close()

	id := s.Schedule(KindCleanup, nil, Normal)

	waitFor(t, time.Second, func() bool {
		task, ok := s.TaskState(id)
		return ok && task.State == StateFailed
	})
	task, _ := s.TaskState(id)
	assert.Equal(t, 0, task.RetryCount)
}

func TestTaskRetriesThenFails(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultMaxRetries = 2
	bus := events.NewBus()
	var attempts int
	attemptCh := make(chan int, 10)
	s := New(cfg, bus, map[Kind]Executor{
		KindCleanup: func(ctx context.Context, t *Task) (any, error) {
			attempts++
			attemptCh <- attempts
			return nil, errors.New("boom")
		},
	})
	s.Start()
	defer s.Close()

	id := s.Schedule(KindCleanup, nil, Normal)

	waitFor(t, 2*time.Second, func() bool {
		task, ok := s.TaskState(id)
		return ok && task.State == StateFailed
	})
	task, _ := s.TaskState(id)
	assert.Equal(t, 2, task.RetryCount)
}

func TestQueueOverflowDropsLowestPriority(t *testing.T) {
	cfg := testConfig()
	cfg.MaxQueueLength = 2
	cfg.MaxConcurrentTasks = 0 // nothing dispatches, so the queue just fills
	bus := events.NewBus()
	s := New(cfg, bus, map[Kind]Executor{})

	lowID := s.Schedule(KindCleanup, nil, Low)
	s.Schedule(KindCleanup, nil, High)
	s.Schedule(KindCleanup, nil, Critical)

	assert.LessOrEqual(t, s.QueueLen(), 2)
	_, lowStillKnown := s.TaskState(lowID)
	assert.False(t, lowStillKnown)
}

func TestPauseStopsDispatchResumeContinues(t *testing.T) {
	cfg := testConfig()
	bus := events.NewBus()
	ran := make(chan struct{}, 1)
	s := New(cfg, bus, map[Kind]Executor{
		KindCleanup: func(ctx context.Context, t *Task) (any, error) {
			ran <- struct{}{}
			return nil, nil
		},
	})
	s.Start()
	defer s.Close()

	s.Pause()
	s.Schedule(KindCleanup, nil, Normal)

	select {
	case <-ran:
		t.Fatal("task ran while paused")
	case <-time.After(50 * time.Millisecond):
	}

	s.Resume()
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("task never ran after resume")
	}
}

func TestCancelRunningTaskMarksCancelled(t *testing.T) {
	cfg := testConfig()
	bus := events.NewBus()
	started := make(chan struct{})
	s := New(cfg, bus, map[Kind]Executor{
		KindCleanup: func(ctx context.Context, t *Task) (any, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})
	s.Start()
	defer s.Close()

	id := s.Schedule(KindCleanup, nil, Normal)
	<-started
	s.CancelTask(id)

	waitFor(t, time.Second, func() bool {
		task, ok := s.TaskState(id)
		return ok && task.State == StateCancelled
	})
}

func TestCancelPendingTaskRemovesFromQueue(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrentTasks = 0
	bus := events.NewBus()
	s := New(cfg, bus, map[Kind]Executor{})

	id := s.Schedule(KindCleanup, nil, Normal)
	s.CancelTask(id)

	task, ok := s.TaskState(id)
	require.True(t, ok)
	assert.Equal(t, StateCancelled, task.State)
	assert.Equal(t, 0, s.QueueLen())
}
