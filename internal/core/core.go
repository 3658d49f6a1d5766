// Package core composes AFT, LMI, ISE and CS into the file-metadata
// indexing and retrieval core (spec.md §2), in the mandated dependency
// order AFT -> LMI -> ISE -> CS, and exposes the external operations named
// in spec.md §2: Search, List, Stat, RefreshPath, Schedule, CancelTask,
// Close.
package core

import (
	"context"
	"fmt"

	"github.com/localidx/fsindex/internal/aft"
	"github.com/localidx/fsindex/internal/config"
	"github.com/localidx/fsindex/internal/coretypes"
	"github.com/localidx/fsindex/internal/events"
	"github.com/localidx/fsindex/internal/fsadapter"
	"github.com/localidx/fsindex/internal/ise"
	"github.com/localidx/fsindex/internal/kvstore"
	"github.com/localidx/fsindex/internal/lmi"
	"github.com/localidx/fsindex/internal/scheduler"
)

// Core is the assembled file-metadata indexing and retrieval core.
type Core struct {
	cfg config.Config
	bus *events.Bus

	aft   *aft.Tracker
	index *lmi.Index
	ise   *ise.Engine
	sched *scheduler.Scheduler
}

// New wires the four subsystems over the given filesystem and K/V store.
// Construction alone performs no I/O; call Init to flush/scan/connect.
func New(cfg config.Config, fs fsadapter.FS, kv kvstore.Store) *Core {
	bus := events.NewBus()
	tracker := aft.New(cfg.AFTCap)
	index := lmi.New(cfg, fs, kv, tracker, bus)
	engine := ise.New(cfg, index, kv, bus)

	c := &Core{cfg: cfg, bus: bus, aft: tracker, index: index, ise: engine}
	c.sched = scheduler.New(cfg, bus, c.buildExecutors())
	return c
}

// Events exposes the core's event bus for host applications to subscribe
// to (spec.md §6 emitted events).
func (c *Core) Events() *events.Bus { return c.bus }

// Init flushes the K/V store, runs the progressive initial scan, starts
// the watcher, loads ISE analytics, and starts the scheduler. A K/V
// connection failure here is fatal (spec.md §4.1/§7).
func (c *Core) Init(ctx context.Context) error {
	if err := c.index.Init(ctx); err != nil {
		return err
	}
	c.ise.Init(ctx)
	c.sched.Start()
	return nil
}

// Close stops the watcher, scan, scheduler and persists analytics one
// last time on a best-effort basis.
func (c *Core) Close() error {
	_ = c.ise.PersistAnalytics(context.Background())
	if err := c.sched.Close(); err != nil {
		return err
	}
	return c.index.Close()
}

// List returns the direct children of dir.
func (c *Core) List(ctx context.Context, dir string) ([]coretypes.Entry, error) {
	return c.index.List(ctx, dir)
}

// Stat returns the Entry for path, or nil if not indexed.
func (c *Core) Stat(ctx context.Context, path string) (*coretypes.Entry, error) {
	return c.index.Stat(ctx, path)
}

// RefreshPath rescans path (or its subtree, if a directory).
func (c *Core) RefreshPath(ctx context.Context, path string) error {
	return c.index.RefreshPath(ctx, path)
}

// SearchOptions parameterizes Search, mirroring ise.Options but keeping
// ISE's package out of callers that only need the core's surface.
type SearchOptions = ise.Options

// Search runs a ranked, mode-selected search over the index.
func (c *Core) Search(ctx context.Context, query string, opts SearchOptions) (ise.Result, error) {
	return c.ise.Search(ctx, query, opts)
}

// SearchStream runs a Progressive search, streaming deltas.
func (c *Core) SearchStream(ctx context.Context, query string, opts SearchOptions) (<-chan ise.Delta, <-chan ise.Result) {
	return c.ise.SearchStream(ctx, query, opts)
}

// CancelSearch cancels an in-flight Progressive search.
func (c *Core) CancelSearch(searchID string) {
	c.ise.CancelSearch(searchID)
}

// Schedule enqueues a background task and returns its id.
func (c *Core) Schedule(kind scheduler.Kind, params map[string]string, priority scheduler.Priority) string {
	return c.sched.Schedule(kind, params, priority)
}

// CancelTask cancels a pending or running task.
func (c *Core) CancelTask(id string) {
	c.sched.CancelTask(id)
}

// buildExecutors wires each scheduler.Kind to the subsystem method that
// implements it, per spec.md §4.3's task-kind table.
func (c *Core) buildExecutors() map[scheduler.Kind]scheduler.Executor {
	return map[scheduler.Kind]scheduler.Executor{
		scheduler.KindScanDirectory: func(ctx context.Context, t *scheduler.Task) (any, error) {
			return nil, c.index.RefreshPath(ctx, t.Params["path"])
		},
		scheduler.KindRefreshPath: func(ctx context.Context, t *scheduler.Task) (any, error) {
			return nil, c.index.RefreshPath(ctx, t.Params["path"])
		},
		scheduler.KindMetadataScan: func(ctx context.Context, t *scheduler.Task) (any, error) {
			return nil, c.index.InitialScan(ctx)
		},
		scheduler.KindSearchPreload: func(ctx context.Context, t *scheduler.Task) (any, error) {
			return nil, c.ise.SmartPreCache(ctx, c.aft)
		},
		scheduler.KindAnalyticsSave: func(ctx context.Context, t *scheduler.Task) (any, error) {
			return nil, c.ise.PersistAnalytics(ctx)
		},
		scheduler.KindCleanup: func(ctx context.Context, t *scheduler.Task) (any, error) {
			c.ise.EvictIdleSessions()
			return nil, nil
		},
		scheduler.KindMemoryOptimize: func(ctx context.Context, t *scheduler.Task) (any, error) {
			c.ise.EvictIdleSessions()
			return fmt.Sprintf("cache entries: %d", c.ise.CacheLen()), nil
		},
	}
}
