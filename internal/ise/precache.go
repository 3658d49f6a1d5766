package ise

import (
	"context"

	"github.com/localidx/fsindex/internal/aft"
	"github.com/localidx/fsindex/internal/corelog"
	"github.com/localidx/fsindex/internal/corepath"
	"github.com/localidx/fsindex/internal/coretypes"
)

const smartPreCacheDirCap = 20

// SmartPreCache derives candidate directories from the paths ISE has
// recorded that have a high ISE-local search_count or AFT priority >= High
// (the parent of each), then issues RefreshPath
// for each, capped at 20 (spec.md §4.2). High-frequency patterns bias
// priority elsewhere (AFT/ranking) but never enumerate new directories
// here.
func (e *Engine) SmartPreCache(ctx context.Context, tracker *aft.Tracker) error {
	e.analytics.mu.Lock()
	candidates := make([]string, 0, len(e.analytics.priorities))
	known := make([]string, 0, len(e.analytics.priorities))
	for path, p := range e.analytics.priorities {
		known = append(known, path)
		if p.SearchCount > 10 {
			candidates = append(candidates, path)
		}
	}
	e.analytics.mu.Unlock()

	dirs := make(map[string]struct{})
	for _, path := range candidates {
		if len(dirs) >= smartPreCacheDirCap {
			break
		}
		dirs[corepath.Parent(path)] = struct{}{}
	}

	// AFT priority >= High also nominates a path's own parent, independent
	// of ISE's search_count signal, for every path ISE has recorded.
	if tracker != nil {
		for _, path := range known {
			if len(dirs) >= smartPreCacheDirCap {
				break
			}
			if tracker.Priority(path) >= coretypes.High {
				dirs[corepath.Parent(path)] = struct{}{}
			}
		}
	}

	refreshed := 0
	for dir := range dirs {
		if refreshed >= smartPreCacheDirCap {
			break
		}
		if err := e.index.RefreshPath(ctx, dir); err != nil {
			corelog.Warnf("ise", "smart precache refresh %q: %v", dir, err)
			continue
		}
		refreshed++
	}
	return nil
}
