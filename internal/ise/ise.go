// Package ise implements the Intelligent Search Engine (spec.md §4.2):
// ranked, fuzzy-tolerant, multi-tier search with three latency profiles,
// query analytics, and predictive precaching on top of LMI.
package ise

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/localidx/fsindex/internal/config"
	"github.com/localidx/fsindex/internal/corelog"
	"github.com/localidx/fsindex/internal/coretypes"
	"github.com/localidx/fsindex/internal/events"
	"github.com/localidx/fsindex/internal/kvstore"
	"github.com/localidx/fsindex/internal/lmi"
)

// Mode selects a search's latency/completeness tradeoff.
type Mode int

const (
	Instant Mode = iota
	Progressive
	Comprehensive
)

// Options parameterizes one Search call.
type Options struct {
	Mode        Mode
	Limit       int
	SessionID   string
	MinPriority coretypes.Priority
}

// Delta is one increment of a Progressive search's streamed results
// (spec.md §9's "streaming channel of SearchDelta" realization of the
// source's progress-callback design).
type Delta struct {
	Phase       string
	NewResults  []coretypes.Entry
	IsComplete  bool
}

// Result is the final outcome of a completed search.
type Result struct {
	SearchID string
	Results  []coretypes.Entry
	Context  searchContext
}

// Engine is the Intelligent Search Engine. It owns its own analytics and
// contextual cache and reads through to an *lmi.Index for candidates.
type Engine struct {
	cfg   config.Config
	index *lmi.Index
	bus   *events.Bus

	cache     *contextualCache
	analytics *analytics

	mu      sync.Mutex
	active  map[string]context.CancelFunc
}

// New constructs an Engine; call Init before first use to load persisted
// analytics.
func New(cfg config.Config, index *lmi.Index, kv kvstore.Store, bus *events.Bus) *Engine {
	return &Engine{
		cfg:       cfg,
		index:     index,
		bus:       bus,
		cache:     newContextualCache(cfg.ContextualCacheTTL, cfg.ContextualCacheCap),
		analytics: newAnalytics(kv, cfg.SessionIdleTimeout),
		active:    make(map[string]context.CancelFunc),
	}
}

// Init loads persisted analytics (spec.md §4.2); a K/V miss or error
// degrades to in-memory-only and is not fatal.
func (e *Engine) Init(ctx context.Context) {
	e.analytics.load(ctx)
}

// PersistAnalytics writes history/pattern/priority tables to the K/V
// store; this is the body of the periodic ANALYTICS_SAVE task (spec.md
// §4.3).
func (e *Engine) PersistAnalytics(ctx context.Context) error {
	return e.analytics.persist(ctx)
}

// EvictIdleSessions drops sessions inactive longer than SessionIdleTimeout.
func (e *Engine) EvictIdleSessions() {
	e.analytics.evictIdleSessions()
}

// CacheLen reports the contextual cache's current entry count, mainly for
// resource/diagnostic reporting.
func (e *Engine) CacheLen() int {
	return e.cache.len()
}

// newSearchID generates search_<ms>_<rand9> ids (spec.md §4.2).
func newSearchID() string {
	return fmt.Sprintf("search_%d_%09d", time.Now().UnixMilli(), rand.Intn(1_000_000_000))
}

// Search runs one query to completion, collecting all progressive deltas.
// A query of length 0 returns empty results with no K/V traffic (spec.md
// §8 boundary behavior).
func (e *Engine) Search(ctx context.Context, query string, opts Options) (Result, error) {
	if query == "" {
		return Result{SearchID: newSearchID(), Results: nil}, nil
	}

	start := time.Now()
	var result Result
	var err error

	switch opts.Mode {
	case Instant:
		result, err = e.searchInstant(ctx, query, opts)
	case Comprehensive:
		result, err = e.searchComprehensive(ctx, query, opts)
	default:
		result, err = e.searchProgressive(ctx, query, opts, nil)
	}
	if err != nil {
		return Result{}, err
	}

	e.analytics.recordQuery(opts.SessionID, query, time.Since(start))
	for _, r := range result.Results {
		e.analytics.touchPath(r.Full, true)
	}
	e.cache.set(query, result.Results, result.Context)
	return result, nil
}

// SearchStream runs a Progressive search, delivering each phase's delta on
// the returned channel and a final summary Result when done.
func (e *Engine) SearchStream(ctx context.Context, query string, opts Options) (<-chan Delta, <-chan Result) {
	deltas := make(chan Delta, 4)
	final := make(chan Result, 1)
	if query == "" {
		close(deltas)
		final <- Result{SearchID: newSearchID()}
		close(final)
		return deltas, final
	}

	go func() {
		defer close(deltas)
		defer close(final)
		start := time.Now()
		r, err := e.searchProgressive(ctx, query, opts, deltas)
		if err != nil {
			corelog.Warnf("ise", "progressive search %q failed: %v", query, err)
			return
		}
		e.analytics.recordQuery(opts.SessionID, query, time.Since(start))
		for _, res := range r.Results {
			e.analytics.touchPath(res.Full, true)
		}
		e.cache.set(query, r.Results, r.Context)
		final <- r
	}()
	return deltas, final
}

func (e *Engine) limitFor(opts Options) int {
	if opts.Limit > 0 {
		return opts.Limit
	}
	return e.cfg.InstantSearchLimit
}

// searchInstant serves from the contextual cache if present, else one
// Meta-tier lookup filtered to priority >= High (spec.md §4.2). Either way
// the result count is capped at the caller's limit, and never exceeds
// InstantSearchLimit.
func (e *Engine) searchInstant(ctx context.Context, query string, opts Options) (Result, error) {
	limit := e.limitFor(opts)
	if limit > e.cfg.InstantSearchLimit {
		limit = e.cfg.InstantSearchLimit
	}
	if entry, ok := e.cache.get(query); ok {
		results := entry.results
		if len(results) > limit {
			results = results[:limit]
		}
		return Result{SearchID: newSearchID(), Results: results, Context: entry.context}, nil
	}

	minPriority := coretypes.High
	if opts.MinPriority > minPriority {
		minPriority = opts.MinPriority
	}
	matches, err := e.index.Search(ctx, query, lmi.SearchOptions{Tier: coretypes.TierMeta, Limit: limit, MinPriority: minPriority})
	if err != nil {
		return Result{}, err
	}
	ranked := e.rankAndBuild(matches, query)
	return Result{SearchID: newSearchID(), Results: ranked.entries, Context: ranked.context}, nil
}

// searchProgressive runs the three phases in order, emitting a delta (and
// a searchProgress event) at each phase boundary, per spec.md §4.2.
func (e *Engine) searchProgressive(ctx context.Context, query string, opts Options, deltas chan<- Delta) (Result, error) {
	searchID := newSearchID()
	ctx, cancel := context.WithCancel(ctx)
	e.registerActive(searchID, cancel)
	defer e.unregisterActive(searchID)

	limit := e.limitFor(opts)
	seen := make(map[string]struct{})
	var merged []coretypes.Entry

	emit := func(phase string, fresh []coretypes.Entry, complete bool) {
		if deltas != nil {
			deltas <- Delta{Phase: phase, NewResults: fresh, IsComplete: complete}
		}
		e.bus.Publish(events.Event{
			Kind:     events.SearchProgress,
			SearchID: searchID,
			Progress: &events.Progress{Phase: phase, Current: len(merged), Total: limit},
		})
	}

	metaMatches, err := e.index.Search(ctx, query, lmi.SearchOptions{Tier: coretypes.TierMeta, Limit: limit, MinPriority: opts.MinPriority})
	if err != nil {
		return Result{}, err
	}
	merged = dedupeAppend(merged, seen, metaMatches)
	emit("metadata", metaMatches, false)

	if len(merged) < limit/2 {
		contentMatches, err := e.index.Search(ctx, query, lmi.SearchOptions{Tier: coretypes.TierContent, Limit: limit, MinPriority: opts.MinPriority})
		if err != nil {
			return Result{}, err
		}
		fresh := dedupeFresh(seen, contentMatches)
		merged = append(merged, fresh...)
		emit("content", fresh, false)
	}

	if len(merged) < int(float64(limit)*0.8) {
		dirMatches, err := e.index.Search(ctx, query, lmi.SearchOptions{Tier: coretypes.TierDir, Limit: limit, MinPriority: opts.MinPriority})
		if err != nil {
			return Result{}, err
		}
		fresh := dedupeFresh(seen, dirMatches)
		merged = append(merged, fresh...)
		emit("directory", fresh, true)
	} else {
		emit("directory", nil, true)
	}

	ranked := e.rankAndBuild(merged, query)
	if len(ranked.entries) > limit {
		ranked.entries = ranked.entries[:limit]
	}
	return Result{SearchID: searchID, Results: ranked.entries, Context: ranked.context}, nil
}

// searchComprehensive runs all three phases unconditionally, merges by
// full path preferring the richer (Content) record, and caps the merge at
// 2*limit before ranking trims to limit (spec.md §4.2).
func (e *Engine) searchComprehensive(ctx context.Context, query string, opts Options) (Result, error) {
	limit := e.limitFor(opts)

	byPath := make(map[string]coretypes.Entry)
	tiersByPath := make(map[string]map[string]struct{})

	merge := func(tier string, matches []coretypes.Entry) {
		for _, m := range matches {
			tset, ok := tiersByPath[m.Full]
			if !ok {
				tset = make(map[string]struct{})
				tiersByPath[m.Full] = tset
			}
			tset[tier] = struct{}{}

			if _, ok := byPath[m.Full]; !ok || tier == "content" {
				byPath[m.Full] = m
			}
		}
	}

	meta, err := e.index.Search(ctx, query, lmi.SearchOptions{Tier: coretypes.TierMeta, Limit: 2 * limit, MinPriority: opts.MinPriority})
	if err != nil {
		return Result{}, err
	}
	merge("meta", meta)

	content, err := e.index.Search(ctx, query, lmi.SearchOptions{Tier: coretypes.TierContent, Limit: 2 * limit, MinPriority: opts.MinPriority})
	if err != nil {
		return Result{}, err
	}
	merge("content", content)

	dir, err := e.index.Search(ctx, query, lmi.SearchOptions{Tier: coretypes.TierDir, Limit: 2 * limit, MinPriority: opts.MinPriority})
	if err != nil {
		return Result{}, err
	}
	merge("dir", dir)

	merged := make([]coretypes.Entry, 0, len(byPath))
	for path, e2 := range byPath {
		e2.Tiers = tiersByPath[path]
		merged = append(merged, e2)
	}
	if len(merged) > 2*limit {
		merged = merged[:2*limit]
	}

	ranked := e.rankAndBuild(merged, query)
	if len(ranked.entries) > limit {
		ranked.entries = ranked.entries[:limit]
	}
	return Result{SearchID: newSearchID(), Results: ranked.entries, Context: ranked.context}, nil
}

func (e *Engine) registerActive(searchID string, cancel context.CancelFunc) {
	e.mu.Lock()
	e.active[searchID] = cancel
	e.mu.Unlock()
}

func (e *Engine) unregisterActive(searchID string) {
	e.mu.Lock()
	delete(e.active, searchID)
	e.mu.Unlock()
}

// CancelSearch cancels an in-flight Progressive search by id, if it is
// still active. A search that has already completed is a no-op.
func (e *Engine) CancelSearch(searchID string) {
	e.mu.Lock()
	cancel, ok := e.active[searchID]
	e.mu.Unlock()
	if ok {
		cancel()
	}
}

func dedupeAppend(merged []coretypes.Entry, seen map[string]struct{}, fresh []coretypes.Entry) []coretypes.Entry {
	for _, f := range fresh {
		if _, ok := seen[f.Full]; ok {
			continue
		}
		seen[f.Full] = struct{}{}
		merged = append(merged, f)
	}
	return merged
}

func dedupeFresh(seen map[string]struct{}, candidates []coretypes.Entry) []coretypes.Entry {
	var fresh []coretypes.Entry
	for _, c := range candidates {
		if _, ok := seen[c.Full]; ok {
			continue
		}
		seen[c.Full] = struct{}{}
		fresh = append(fresh, c)
	}
	return fresh
}

type rankedResult struct {
	entries []coretypes.Entry
	context searchContext
}

// rankAndBuild scores every candidate, sorts by score descending (ties
// broken by path for determinism), and builds the match-composition
// context plus suggestions for the contextual cache.
func (e *Engine) rankAndBuild(candidates []coretypes.Entry, query string) rankedResult {
	queryLower := strings.ToLower(query)
	now := time.Now()

	scoredList := make([]scored, 0, len(candidates))
	var ctx searchContext
	for _, c := range candidates {
		accessCount, searchCount := e.analytics.countsFor(c.Full)
		sc := score(c, queryLower, accessCount, searchCount, now)
		scoredList = append(scoredList, sc)

		switch sc.Tag {
		case tagExact:
			ctx.ExactCount++
		case tagPartial:
			ctx.PartialCount++
		case tagFuzzy:
			ctx.FuzzyCount++
		}
		if c.IsDirectory {
			ctx.DirectoryCount++
		} else {
			ctx.FileCount++
		}
	}

	sort.SliceStable(scoredList, func(i, j int) bool {
		if scoredList[i].Score != scoredList[j].Score {
			return scoredList[i].Score > scoredList[j].Score
		}
		return scoredList[i].Entry.Full < scoredList[j].Entry.Full
	})

	entries := make([]coretypes.Entry, len(scoredList))
	for i, s := range scoredList {
		entries[i] = s.Entry
	}
	ctx.Suggestions = e.analytics.suggestionsFor(query)

	return rankedResult{entries: entries, context: ctx}
}
