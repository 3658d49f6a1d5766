// Package config holds the process-wide immutable configuration value that
// is constructed once and injected into every subsystem, following the
// "global singletons become a constructed config value" guidance for this
// core (spec §9 DESIGN NOTES).
package config

import "time"

// ScanPhase describes the slice budget and yield granularity of one phase
// of the progressive initial scan (spec §4.1).
type ScanPhase struct {
	SliceBudget time.Duration
	YieldEvery  int
}

// Config is the full set of tunables for one core instance.
type Config struct {
	// Root is the watched root directory on the local filesystem.
	Root string

	// KVConnectionURL is passed to the K/V store implementation; for the
	// bbolt-backed store this is a filesystem path to the database file.
	KVConnectionURL string

	// ScanPhases are the three progressive-scan phases: meta, content, dir.
	ScanPhases [3]ScanPhase

	// WatchDebounce is the write-stability debounce window before a
	// watcher event is emitted.
	WatchDebounce time.Duration

	// IgnorePatterns are glob-style patterns matched at any depth.
	IgnorePatterns []string

	// AFTCap bounds the number of tracked paths before LRU eviction.
	AFTCap int

	// InstantSearchLimit caps Instant-mode result count.
	InstantSearchLimit int

	// ContextualCacheTTL is the TTL of one contextual-cache entry.
	ContextualCacheTTL time.Duration
	// ContextualCacheCap is the entry cap before LRU eviction of the
	// oldest 10%.
	ContextualCacheCap int

	// AnalyticsPersistInterval is how often ISE persists analytics to the
	// K/V store.
	AnalyticsPersistInterval time.Duration
	// SessionIdleTimeout evicts sessions inactive longer than this.
	SessionIdleTimeout time.Duration

	// MaxConcurrentTasks bounds CS's running-task pool.
	MaxConcurrentTasks int
	// MaxQueueLength bounds CS's pending queue.
	MaxQueueLength int
	// DispatchTick is the steady-rate dispatcher tick.
	DispatchTick time.Duration
	// ResourceSampleInterval is how often CS samples memory/CPU.
	ResourceSampleInterval time.Duration
	// MemoryThrottleRatio: at or above this ratio dispatch is refused.
	MemoryThrottleRatio float64
	// MemoryOptimizeRatio: above this ratio a MEMORY_OPTIMIZE task
	// is auto-enqueued.
	MemoryOptimizeRatio float64
	// CompletedTaskTTL is the prune age for the completed-task store.
	CompletedTaskTTL time.Duration
	// CompletedTaskCap bounds the completed-task store.
	CompletedTaskCap int
	// PruneInterval is how often the completed-task store is pruned.
	PruneInterval time.Duration
	// DefaultTaskTimeout and DefaultMaxRetries seed new tasks lacking an
	// explicit value.
	DefaultTaskTimeout time.Duration
	DefaultMaxRetries  int

	// FSTaskRatePerSec and FSTaskBurst throttle dispatch of
	// filesystem-touching task kinds (scan/refresh), independent of
	// MaxConcurrentTasks, so a burst of scheduled precache refreshes
	// cannot saturate disk I/O ahead of everything else in the queue.
	FSTaskRatePerSec float64
	FSTaskBurst      int
}

// Default returns the configuration described by spec.md's tables.
func Default(root, kvURL string) Config {
	return Config{
		Root:            root,
		KVConnectionURL: kvURL,
		ScanPhases: [3]ScanPhase{
			{SliceBudget: 50 * time.Millisecond, YieldEvery: 100},
			{SliceBudget: 100 * time.Millisecond, YieldEvery: 50},
			{SliceBudget: 200 * time.Millisecond, YieldEvery: 25},
		},
		WatchDebounce: 200 * time.Millisecond,
		IgnorePatterns: []string{
			"node_modules", ".git", "*.log", "temp", "dist",
		},
		AFTCap:                   50000,
		InstantSearchLimit:       100,
		ContextualCacheTTL:       5 * time.Minute,
		ContextualCacheCap:       10000,
		AnalyticsPersistInterval: 5 * time.Minute,
		SessionIdleTimeout:       2 * time.Hour,
		MaxConcurrentTasks:       3,
		MaxQueueLength:           1000,
		DispatchTick:             100 * time.Millisecond,
		ResourceSampleInterval:   5 * time.Second,
		MemoryThrottleRatio:      0.85,
		MemoryOptimizeRatio:      0.90,
		CompletedTaskTTL:         24 * time.Hour,
		CompletedTaskCap:         100,
		PruneInterval:            30 * time.Second,
		DefaultTaskTimeout:       30 * time.Second,
		DefaultMaxRetries:        3,
		FSTaskRatePerSec:         20,
		FSTaskBurst:              5,
	}
}
