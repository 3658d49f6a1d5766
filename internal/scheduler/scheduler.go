package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/localidx/fsindex/internal/config"
	"github.com/localidx/fsindex/internal/events"
)

// fsTaskKinds touch the local filesystem directly and are subject to the
// io limiter; analytics/memory/cleanup kinds are cheap in comparison and
// bypass it.
var fsTaskKinds = map[Kind]bool{
	KindScanDirectory: true,
	KindRefreshPath:   true,
	KindMetadataScan:  true,
}

// Executor runs one task's body to completion or error. Context
// cancellation signals a timeout or an observed cancel request.
type Executor func(ctx context.Context, t *Task) (any, error)

// ResourceSampler reports the current process memory-used/total ratio.
// Swappable for tests; the default implementation is in resource.go.
type ResourceSampler func() float64

// Scheduler is the Cache Scheduler (spec.md §4.3).
type Scheduler struct {
	cfg config.Config
	bus *events.Bus

	executors map[Kind]Executor
	sampler   ResourceSampler
	ioLimiter *rate.Limiter

	mu        sync.Mutex
	queue     *taskQueue
	running   map[string]*runningTask
	completed []*Task
	paused    bool
	lastMemRatio float64

	eg       *errgroup.Group
	egCtx    context.Context
	stop     context.CancelFunc
	done     chan struct{}
}

type runningTask struct {
	task   *Task
	cancel context.CancelFunc
}

// New constructs a Scheduler. executors maps each Kind the host
// application supports to its handler; a task whose Kind has no executor
// is accepted by Schedule and fails without retry when dispatched
// (spec.md §4.3/§7).
func New(cfg config.Config, bus *events.Bus, executors map[Kind]Executor) *Scheduler {
	egCtx, cancel := context.WithCancel(context.Background())
	eg, egCtx := errgroup.WithContext(egCtx)
	eg.SetLimit(cfg.MaxConcurrentTasks)
	return &Scheduler{
		cfg:       cfg,
		bus:       bus,
		executors: executors,
		sampler:   sampleMemoryRatio,
		ioLimiter: rate.NewLimiter(rate.Limit(cfg.FSTaskRatePerSec), cfg.FSTaskBurst),
		queue:     newTaskQueue(),
		running:   make(map[string]*runningTask),
		eg:        eg,
		egCtx:     egCtx,
		stop:      cancel,
		done:      make(chan struct{}),
	}
}

// Start launches the dispatcher, resource sampler and periodic internal
// tasks. It returns immediately; background goroutines run until Close.
func (s *Scheduler) Start() {
	go s.dispatchLoop()
	go s.resourceLoop()
	go s.pruneLoop()
	go s.analyticsSaveLoop()
}

// Close stops all scheduler goroutines. Running tasks are cancelled.
func (s *Scheduler) Close() error {
	close(s.done)
	s.stop()
	s.bus.Publish(events.Event{Kind: events.SchedulerClosed})
	return nil
}

// Pause stops dispatch; running tasks finish normally.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	s.bus.Publish(events.Event{Kind: events.SchedulerPaused})
}

// Resume re-enables dispatch.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	s.bus.Publish(events.Event{Kind: events.SchedulerResumed})
}

// Schedule enqueues a new task and returns its id. Queue overflow drops
// the current lowest-priority pending task (spec.md §4.3).
func (s *Scheduler) Schedule(kind Kind, params map[string]string, priority Priority) string {
	t := &Task{
		ID:         uuid.NewString(),
		Kind:       kind,
		Params:     params,
		Priority:   priority,
		State:      StatePending,
		CreatedAt:  time.Now(),
		MaxRetries: s.cfg.DefaultMaxRetries,
		Timeout:    s.cfg.DefaultTaskTimeout,
		Cancelable: true,
	}

	s.mu.Lock()
	s.queue.enqueue(t)
	var dropped *Task
	if s.queue.Len() > s.cfg.MaxQueueLength {
		dropped = s.queue.dropLowestPriority()
	}
	s.mu.Unlock()

	s.bus.Publish(events.Event{Kind: events.TaskScheduled, TaskID: t.ID})
	if dropped != nil {
		s.bus.Publish(events.Event{Kind: events.TaskDropped, TaskID: dropped.ID, Reason: "queue_full"})
	}
	return t.ID
}

// CancelTask cancels a pending or running cancelable task. Cancellation of
// a task already completed/failed/cancelled is a no-op.
func (s *Scheduler) CancelTask(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rt, ok := s.running[id]; ok {
		if rt.task.Cancelable {
			rt.cancel()
		}
		return
	}
	for i, t := range s.queue.items {
		if t.ID == id {
			heap.Remove(s.queue, i)
			t.State = StateCancelled
			t.CompletedAt = time.Now()
			s.recordCompletedLocked(t)
			s.bus.Publish(events.Event{Kind: events.TaskCancelled, TaskID: id})
			return
		}
	}
}

// dispatchLoop is the ~100ms steady-rate dispatcher tick (spec.md §4.3).
func (s *Scheduler) dispatchLoop() {
	ticker := time.NewTicker(s.cfg.DispatchTick)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.dispatchOne()
		}
	}
}

func (s *Scheduler) dispatchOne() {
	s.mu.Lock()
	if s.paused {
		s.mu.Unlock()
		return
	}
	if len(s.running) >= s.cfg.MaxConcurrentTasks {
		s.mu.Unlock()
		return
	}
	if s.lastMemRatio >= s.cfg.MemoryThrottleRatio {
		s.mu.Unlock()
		return
	}
	head := s.queue.peek()
	if head == nil {
		s.mu.Unlock()
		return
	}
	if fsTaskKinds[head.Kind] && !s.ioLimiter.Allow() {
		s.mu.Unlock()
		return
	}
	t := s.queue.dequeue()
	t.State = StateRunning
	t.StartedAt = time.Now()
	taskCtx, cancel := context.WithTimeout(s.egCtx, effectiveTimeout(t, s.cfg))
	s.running[t.ID] = &runningTask{task: t, cancel: cancel}
	s.mu.Unlock()

	s.bus.Publish(events.Event{Kind: events.TaskStarted, TaskID: t.ID})
	s.eg.Go(func() error {
		s.runTask(taskCtx, t, cancel)
		return nil
	})
}

func effectiveTimeout(t *Task, cfg config.Config) time.Duration {
	if t.Timeout > 0 {
		return t.Timeout
	}
	return cfg.DefaultTaskTimeout
}

func (s *Scheduler) runTask(ctx context.Context, t *Task, cancel context.CancelFunc) {
	defer cancel()

	exec, ok := s.executors[t.Kind]
	if !ok {
		err := fmt.Errorf("unknown task kind %q", t.Kind)
		s.finish(t, nil, err, StateFailed)
		s.bus.Publish(events.Event{Kind: events.TaskFailed, TaskID: t.ID, Reason: err.Error()})
		return
	}

	result, err := exec(ctx, t)
	if err == nil {
		s.finish(t, result, nil, StateCompleted)
		s.bus.Publish(events.Event{Kind: events.TaskCompleted, TaskID: t.ID})
		return
	}

	if ctx.Err() == context.DeadlineExceeded {
		s.finish(t, nil, err, StateCancelled)
		s.bus.Publish(events.Event{Kind: events.TaskCancelled, TaskID: t.ID, Reason: "timeout"})
		return
	}
	if ctx.Err() == context.Canceled {
		s.finish(t, nil, err, StateCancelled)
		s.bus.Publish(events.Event{Kind: events.TaskCancelled, TaskID: t.ID})
		return
	}

	if t.RetryCount < t.MaxRetries {
		s.requeueForRetry(t, err)
		return
	}
	s.finish(t, nil, err, StateFailed)
	s.bus.Publish(events.Event{Kind: events.TaskFailed, TaskID: t.ID, Reason: err.Error()})
}

func (s *Scheduler) requeueForRetry(t *Task, err error) {
	s.mu.Lock()
	delete(s.running, t.ID)
	t.RetryCount++
	t.State = StatePending
	t.Error = err.Error()
	s.queue.enqueue(t)
	s.mu.Unlock()
}

// finish transitions t to a terminal state, records the result/error, and
// appends it to the completed-task store. Callers publish the
// corresponding event themselves since the right Kind depends on why the
// task ended (completed/failed/cancelled/timeout all land here).
func (s *Scheduler) finish(t *Task, result any, err error, state State) {
	s.mu.Lock()
	delete(s.running, t.ID)
	t.CompletedAt = time.Now()
	t.State = state
	if err != nil {
		t.Error = err.Error()
	} else {
		t.Result = result
	}
	s.recordCompletedLocked(t)
	s.mu.Unlock()
}

// recordCompletedLocked appends t to the completed-task store, capped at
// CompletedTaskCap (oldest by completion time evicted). Caller holds s.mu.
func (s *Scheduler) recordCompletedLocked(t *Task) {
	s.completed = append(s.completed, t)
	if len(s.completed) <= s.cfg.CompletedTaskCap {
		return
	}
	sort.Slice(s.completed, func(i, j int) bool { return s.completed[i].CompletedAt.Before(s.completed[j].CompletedAt) })
	s.completed = s.completed[len(s.completed)-s.cfg.CompletedTaskCap:]
}

// pruneLoop drops completed tasks older than CompletedTaskTTL every
// ~30s (spec.md §4.3).
func (s *Scheduler) pruneLoop() {
	ticker := time.NewTicker(s.cfg.PruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.prune()
		}
	}
}

func (s *Scheduler) prune() {
	cutoff := time.Now().Add(-s.cfg.CompletedTaskTTL)
	s.mu.Lock()
	kept := s.completed[:0]
	for _, t := range s.completed {
		if t.CompletedAt.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.completed = kept
	s.mu.Unlock()
}

// analyticsSaveLoop enqueues an ANALYTICS_SAVE task at Idle priority every
// ~5 min (spec.md §4.3).
func (s *Scheduler) analyticsSaveLoop() {
	ticker := time.NewTicker(s.cfg.AnalyticsPersistInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.Schedule(KindAnalyticsSave, nil, Idle)
		}
	}
}

// TaskState returns a snapshot of a task's current state and priority, or
// false if the id is unknown to the pending/running/completed sets.
func (s *Scheduler) TaskState(id string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rt, ok := s.running[id]; ok {
		return *rt.task, true
	}
	for _, t := range s.queue.items {
		if t.ID == id {
			return *t, true
		}
	}
	for _, t := range s.completed {
		if t.ID == id {
			return *t, true
		}
	}
	return Task{}, false
}

// QueueLen reports the current pending-queue length.
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// RunningCount reports the current number of running tasks.
func (s *Scheduler) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}
