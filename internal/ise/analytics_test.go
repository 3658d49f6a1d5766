package ise

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localidx/fsindex/internal/coretypes"
	"github.com/localidx/fsindex/internal/kvstore"
)

func TestExtractPatternsExtension(t *testing.T) {
	assert.Contains(t, extractPatterns("report.pdf"), "ext:pdf")
}

func TestExtractPatternsSeparatorsAndPath(t *testing.T) {
	p := extractPatterns("a/b_c-d")
	assert.Contains(t, p, "path:contains_separator")
	assert.Contains(t, p, "contains:separators")
}

func TestExtractPatternsNumbers(t *testing.T) {
	assert.Contains(t, extractPatterns("report2024"), "contains:numbers")
}

func TestExtractPatternsLengthBuckets(t *testing.T) {
	assert.Contains(t, extractPatterns("ab"), "length:short")
	assert.Contains(t, extractPatterns("this query is definitely long"), "length:long")
}

func TestExtractPatternsMultiWord(t *testing.T) {
	assert.Contains(t, extractPatterns("quarterly report"), "multi:word")
}

func TestRecordQueryUpdatesHistoryAndSessions(t *testing.T) {
	a := newAnalytics(kvstore.NewMemoryStore(), time.Hour)
	a.recordQuery("sess1", "report.pdf", 10*time.Millisecond)
	a.recordQuery("sess1", "report.pdf", 30*time.Millisecond)

	h, ok := a.history["report.pdf"]
	require.True(t, ok)
	assert.Equal(t, 2, h.Count)
	assert.Equal(t, 20*time.Millisecond, h.AvgResponseTime)

	s, ok := a.sessions["sess1"]
	require.True(t, ok)
	assert.Equal(t, []string{"report.pdf", "report.pdf"}, s.Queries)
}

func TestTouchPathPromotesPriorityAfterFiveSearchHits(t *testing.T) {
	a := newAnalytics(kvstore.NewMemoryStore(), time.Hour)
	for i := 0; i < 6; i++ {
		a.touchPath("docs/x", true)
	}
	access, search := a.countsFor("docs/x")
	assert.Equal(t, 0, access)
	assert.Equal(t, 6, search)

	a.mu.Lock()
	pr := a.priorities["docs/x"].Priority
	a.mu.Unlock()
	assert.Equal(t, coretypes.High, pr)
}

func TestEvictIdleSessionsDropsOnlyStale(t *testing.T) {
	a := newAnalytics(kvstore.NewMemoryStore(), time.Minute)
	a.recordQuery("fresh", "q1", 0)
	a.recordQuery("stale", "q2", 0)

	a.mu.Lock()
	a.sessions["stale"].lastSeen = time.Now().Add(-time.Hour)
	a.mu.Unlock()

	a.evictIdleSessions()

	_, freshOK := a.sessions["fresh"]
	_, staleOK := a.sessions["stale"]
	assert.True(t, freshOK)
	assert.False(t, staleOK)
}

func TestPersistAndLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemoryStore()

	a := newAnalytics(kv, time.Hour)
	a.recordQuery("sess", "report.pdf", 5*time.Millisecond)
	a.touchPath("docs/report.pdf", true)

	require.NoError(t, a.persist(ctx))

	b := newAnalytics(kv, time.Hour)
	b.load(ctx)

	assert.False(t, b.kvDegraded)
	_, ok := b.history["report.pdf"]
	assert.True(t, ok)
	_, ok = b.priorities["docs/report.pdf"]
	assert.True(t, ok)
	assert.Greater(t, b.patterns["ext:pdf"], 0)
}

func TestSuggestionsForSimilarPastQuery(t *testing.T) {
	a := newAnalytics(kvstore.NewMemoryStore(), time.Hour)
	a.recordQuery("s", "reports", 0)

	suggestions := a.suggestionsFor("report")
	assert.Contains(t, suggestions, "reports")
}
