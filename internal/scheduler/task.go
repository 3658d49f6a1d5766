// Package scheduler implements the Cache Scheduler (spec.md §4.3): a
// priority-queued, time-sliced background task runner driving rescans,
// precaches, analytics persistence and cleanup under resource feedback.
package scheduler

import "time"

// Kind identifies what a task does.
type Kind string

const (
	KindScanDirectory  Kind = "SCAN_DIRECTORY"
	KindRefreshPath    Kind = "REFRESH_PATH"
	KindSearchPreload  Kind = "SEARCH_PRELOAD"
	KindCleanup        Kind = "CLEANUP"
	KindAnalyticsSave  Kind = "ANALYTICS_SAVE"
	KindMemoryOptimize Kind = "MEMORY_OPTIMIZE"
	KindMetadataScan   Kind = "METADATA_SCAN"
)

// Priority is the scheduler's own 5-level priority, distinct from AFT's
// 4-level one (spec.md §4.3).
type Priority int

const (
	Idle     Priority = 1
	Low      Priority = 2
	Normal   Priority = 3
	High     Priority = 4
	Critical Priority = 5
)

// State is a task's position in its state machine.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Progress carries {current, total, phase} for a running task.
type Progress struct {
	Phase   string
	Current int
	Total   int
}

// Task is one unit of background work (spec.md §4.3 task record).
type Task struct {
	ID         string
	Kind       Kind
	Params     map[string]string
	Priority   Priority
	State      State
	CreatedAt  time.Time
	StartedAt  time.Time
	CompletedAt time.Time
	Error      string
	Result     any
	RetryCount int
	MaxRetries int
	Timeout    time.Duration
	Cancelable bool
	Progress   Progress

	seq int64 // FIFO tiebreaker within a priority level, set on enqueue
}
