package ise

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/localidx/fsindex/internal/corelog"
	"github.com/localidx/fsindex/internal/coretypes"
	"github.com/localidx/fsindex/internal/kvstore"
)

// historyEntry is the persisted/in-memory shape of search:history:<query>.
type historyEntry struct {
	Count           int           `json:"count"`
	LastSearch      time.Time     `json:"last_search"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	Patterns        map[string]struct{} `json:"-"`
}

// pathPriority is the persisted/in-memory shape of search:priority:<path>,
// ISE's own notion of priority distinct from AFT's.
type pathPriority struct {
	AccessCount int                `json:"access_count"`
	SearchCount int                `json:"search_count"`
	Priority    coretypes.Priority `json:"priority"`
}

type session struct {
	Queries   []string
	StartTime time.Time
	lastSeen  time.Time
}

var numberPattern = regexp.MustCompile(`[0-9]`)
var separatorPattern = regexp.MustCompile(`[/\\_-]`)

// analytics owns ISE's query history, extracted patterns, session tracking,
// and per-path search priorities, all protected by one mutex (spec.md
// §4.2). It degrades to in-memory-only operation when the K/V store is
// unavailable, per the ISE failure semantics table.
type analytics struct {
	mu sync.Mutex

	history    map[string]*historyEntry
	patterns   map[string]int
	sessions   map[string]*session
	priorities map[string]*pathPriority

	kv          kvstore.Store
	kvDegraded  bool
	sessionIdle time.Duration
}

func newAnalytics(kv kvstore.Store, sessionIdle time.Duration) *analytics {
	return &analytics{
		history:     make(map[string]*historyEntry),
		patterns:    make(map[string]int),
		sessions:    make(map[string]*session),
		priorities:  make(map[string]*pathPriority),
		kv:          kv,
		sessionIdle: sessionIdle,
	}
}

// load restores persisted analytics at ISE init, logging a warning and
// continuing in-memory-only if the K/V store has nothing or errors.
func (a *analytics) load(ctx context.Context) {
	a.loadPrefix(ctx, "search:history:", func(key string, raw []byte) {
		var h historyEntry
		if json.Unmarshal(raw, &h) != nil {
			return
		}
		a.history[strings.TrimPrefix(key, "search:history:")] = &h
	})
	a.loadPrefix(ctx, "search:pattern:", func(key string, raw []byte) {
		var freq int
		if json.Unmarshal(raw, &freq) != nil {
			return
		}
		a.patterns[strings.TrimPrefix(key, "search:pattern:")] = freq
	})
	a.loadPrefix(ctx, "search:priority:", func(key string, raw []byte) {
		var p pathPriority
		if json.Unmarshal(raw, &p) != nil {
			return
		}
		a.priorities[strings.TrimPrefix(key, "search:priority:")] = &p
	})
}

func (a *analytics) loadPrefix(ctx context.Context, prefix string, apply func(key string, raw []byte)) {
	cursor := ""
	for {
		page, err := a.kv.Scan(ctx, cursor, prefix, 100)
		if err != nil {
			corelog.Warnf("ise", "analytics load %q unavailable, degrading to in-memory: %v", prefix, err)
			a.kvDegraded = true
			return
		}
		for _, key := range page.Keys {
			raw, err := a.kv.HGet(ctx, key, "data")
			if err != nil {
				continue
			}
			apply(key, raw)
		}
		if page.Cursor == "" {
			return
		}
		cursor = page.Cursor
	}
}

// recordQuery updates history, extracted patterns, and the owning session
// for one completed search.
func (a *analytics) recordQuery(sessionID, query string, elapsed time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	h, ok := a.history[query]
	if !ok {
		h = &historyEntry{Patterns: make(map[string]struct{})}
		a.history[query] = h
	}
	if h.Patterns == nil {
		h.Patterns = make(map[string]struct{})
	}
	h.AvgResponseTime = (h.AvgResponseTime*time.Duration(h.Count) + elapsed) / time.Duration(h.Count+1)
	h.Count++
	h.LastSearch = time.Now()

	for _, p := range extractPatterns(query) {
		h.Patterns[p] = struct{}{}
		a.patterns[p]++
	}

	if sessionID == "" {
		return
	}
	s, ok := a.sessions[sessionID]
	if !ok {
		s = &session{StartTime: time.Now()}
		a.sessions[sessionID] = s
	}
	s.Queries = append(s.Queries, query)
	s.lastSeen = time.Now()
}

// extractPatterns implements the pattern vocabulary of spec.md §4.2.
func extractPatterns(query string) []string {
	var out []string
	if i := strings.LastIndexByte(query, '.'); i >= 0 && i < len(query)-1 {
		suffix := query[i+1:]
		isAlnum := true
		for _, r := range suffix {
			if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
				isAlnum = false
				break
			}
		}
		if isAlnum {
			out = append(out, "ext:"+strings.ToLower(suffix))
		}
	}
	if strings.ContainsAny(query, "/\\") {
		out = append(out, "path:contains_separator")
	}
	if numberPattern.MatchString(query) {
		out = append(out, "contains:numbers")
	}
	if separatorPattern.MatchString(query) {
		out = append(out, "contains:separators")
	}
	switch {
	case len(query) <= 3:
		out = append(out, "length:short")
	case len(query) > 20:
		out = append(out, "length:long")
	}
	if len(strings.Fields(query)) > 1 {
		out = append(out, "multi:word")
	}
	return out
}

// touchPath increments a path's ISE-local access/search counters and
// auto-promotes priority once search_count exceeds 5.
func (a *analytics) touchPath(path string, isSearchResult bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.priorities[path]
	if !ok {
		p = &pathPriority{Priority: coretypes.Medium}
		a.priorities[path] = p
	}
	if isSearchResult {
		p.SearchCount++
	} else {
		p.AccessCount++
	}
	if p.SearchCount > 5 && p.Priority < coretypes.High {
		p.Priority = coretypes.High
	}
}

func (a *analytics) countsFor(path string) (accessCount, searchCount int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.priorities[path]
	if !ok {
		return 0, 0
	}
	return p.AccessCount, p.SearchCount
}

// evictIdleSessions drops sessions inactive longer than sessionIdle.
func (a *analytics) evictIdleSessions() {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := time.Now()
	for id, s := range a.sessions {
		if now.Sub(s.lastSeen) > a.sessionIdle {
			delete(a.sessions, id)
		}
	}
}

// persist writes history, patterns and path priorities to the K/V store
// (the ANALYTICS_SAVE task's body). A K/V error here is logged and
// non-fatal; the in-memory copies are unaffected.
func (a *analytics) persist(ctx context.Context) error {
	a.mu.Lock()
	historySnapshot := make(map[string]historyEntry, len(a.history))
	for k, v := range a.history {
		historySnapshot[k] = *v
	}
	patternSnapshot := make(map[string]int, len(a.patterns))
	for k, v := range a.patterns {
		patternSnapshot[k] = v
	}
	prioritySnapshot := make(map[string]pathPriority, len(a.priorities))
	for k, v := range a.priorities {
		prioritySnapshot[k] = *v
	}
	a.mu.Unlock()

	var firstErr error
	for q, h := range historySnapshot {
		if err := a.writeRecord(ctx, "search:history:"+q, h); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for p, freq := range patternSnapshot {
		if err := a.writeRecord(ctx, "search:pattern:"+p, freq); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for path, p := range prioritySnapshot {
		if err := a.writeRecord(ctx, "search:priority:"+path, p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (a *analytics) writeRecord(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return a.kv.HSetRecord(ctx, key, raw)
}

// suggestionsFor derives up to 5 follow-up queries: frequent ext: patterns
// not already implied by the query, plus past queries with similarity >=
// 0.7 (spec.md §4.2 contextual cache).
func (a *analytics) suggestionsFor(query string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []string
	queryLower := strings.ToLower(query)

	for pattern, freq := range a.patterns {
		if freq <= 5 {
			continue
		}
		if !strings.HasPrefix(pattern, "ext:") {
			continue
		}
		ext := strings.TrimPrefix(pattern, "ext:")
		if strings.HasSuffix(queryLower, "."+ext) {
			continue
		}
		out = append(out, query+"."+ext)
		if len(out) >= 5 {
			return out
		}
	}

	for past := range a.history {
		if past == query {
			continue
		}
		if similarity(strings.ToLower(past), queryLower) >= 0.7 {
			out = append(out, past)
			if len(out) >= 5 {
				return out
			}
		}
	}
	return out
}
