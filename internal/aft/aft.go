// Package aft implements the Access-Frequency Tracker (spec.md §4.4): an
// in-memory path -> {count, last_access, priority} map, capped with LRU
// eviction. It is the one piece of shared state all three other
// subsystems read.
//
// The cap-and-evict shape mirrors rclone's own Persistent/Memory storage
// split in backend/cache — here realized directly with
// hashicorp/golang-lru/v2, which is already present (indirectly) in the
// pack's dependency graph and is the natural library for "bounded map,
// evict least-recently-touched" instead of hand-rolling a doubly linked
// list the way a from-scratch LRU would.
package aft

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/localidx/fsindex/internal/corepath"
	"github.com/localidx/fsindex/internal/coretypes"
)

// record is the per-path statistic AFT tracks.
type record struct {
	count      int
	lastAccess time.Time
}

// Tracker is the Access-Frequency Tracker.
type Tracker struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *record]
	now   func() time.Time
}

// New constructs a Tracker capped at the given number of tracked paths.
func New(cap int) *Tracker {
	c, _ := lru.New[string, *record](cap)
	return &Tracker{cache: c, now: time.Now}
}

// Touch increments the access count for path and refreshes last_access.
func (t *Tracker) Touch(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.cache.Get(path)
	if !ok {
		r = &record{}
		t.cache.Add(path, r)
	}
	r.count++
	r.lastAccess = t.now()
}

// Priority computes the current priority for path per spec.md §4.4's rule
// table. Reading priority also touches the LRU so frequently queried (but
// not frequently written) paths are not evicted ahead of idle ones.
func (t *Tracker) Priority(path string) coretypes.Priority {
	if corepath.Depth(path) <= 1 {
		return coretypes.Critical
	}

	t.mu.Lock()
	r, ok := t.cache.Get(path)
	t.mu.Unlock()

	if !ok {
		if corepath.Depth(path) > 5 {
			return coretypes.Low
		}
		return coretypes.Medium
	}

	age := t.now().Sub(r.lastAccess)
	switch {
	case r.count > 10 && age <= 24*time.Hour:
		return coretypes.High
	case r.count > 5 && age <= 7*24*time.Hour:
		return coretypes.Medium
	case corepath.Depth(path) > 5:
		return coretypes.Low
	default:
		return coretypes.Medium
	}
}

// Purge drops every tracked path under prefix (a removed subtree), per
// spec.md §4.4.
func (t *Tracker) Purge(prefix string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, key := range t.cache.Keys() {
		if corepath.HasPrefixDir(key, prefix) {
			t.cache.Remove(key)
		}
	}
}

// Stats reports the count/last_access pair for path. ISE's ranking does
// not read it; the access and search counts it ranks by are ISE's own.
func (t *Tracker) Stats(path string) (count int, lastAccess time.Time, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, found := t.cache.Get(path)
	if !found {
		return 0, time.Time{}, false
	}
	return r.count, r.lastAccess, true
}

// Len reports the number of currently tracked paths.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cache.Len()
}
