package ise

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localidx/fsindex/internal/aft"
	"github.com/localidx/fsindex/internal/config"
	"github.com/localidx/fsindex/internal/coretypes"
	"github.com/localidx/fsindex/internal/events"
	"github.com/localidx/fsindex/internal/fsadapter"
	"github.com/localidx/fsindex/internal/kvstore"
	"github.com/localidx/fsindex/internal/lmi"
)

// newTestEngine builds a real LMI index over a temp directory tree and an
// ISE Engine on top of it, scanned but not watching (no Init call, since
// that would also start a live fsnotify watcher this test doesn't need).
func newTestEngine(t *testing.T) (*Engine, *lmi.Index, *aft.Tracker) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "report.pdf"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "report2.pdf"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "readme.md"), []byte("x"), 0644))

	cfg := config.Default(root, "")
	kv := kvstore.NewMemoryStore()
	tracker := aft.New(1000)
	bus := events.NewBus()
	index := lmi.New(cfg, fsadapter.NewLocal(root), kv, tracker, bus)

	require.NoError(t, index.InitialScan(context.Background()))

	engine := New(cfg, index, kv, bus)
	engine.Init(context.Background())
	return engine, index, tracker
}

func TestSearchInstantReturnsHighPriorityOnly(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	result, err := engine.Search(ctx, "report", Options{Mode: Instant, Limit: 10})
	require.NoError(t, err)
	// default priority for these shallow paths is Medium, below Instant's
	// High floor, so nothing should surface until priority is raised.
	assert.Empty(t, result.Results)
}

func TestSearchProgressiveFindsMatchAcrossTiers(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	result, err := engine.Search(ctx, "report", Options{Mode: Progressive, Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, result.Results)
	for _, r := range result.Results {
		assert.Contains(t, r.Name, "report")
	}
}

func TestSearchComprehensiveMergesTiers(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	result, err := engine.Search(ctx, "report", Options{Mode: Comprehensive, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, result.Results, 2)
}

func TestSearchEmptyQueryIsFastPath(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	result, err := engine.Search(ctx, "", Options{Mode: Progressive})
	require.NoError(t, err)
	assert.Empty(t, result.Results)
	assert.NotEmpty(t, result.SearchID)
}

func TestSearchResultsAreCached(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Search(ctx, "report", Options{Mode: Progressive, Limit: 10})
	require.NoError(t, err)

	assert.Equal(t, 1, engine.CacheLen())
}

func TestSearchStreamDeliversDeltasThenFinal(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	deltas, final := engine.SearchStream(ctx, "report", Options{Mode: Progressive, Limit: 10})

	var sawComplete bool
	for d := range deltas {
		if d.IsComplete {
			sawComplete = true
		}
	}
	assert.True(t, sawComplete)

	result := <-final
	assert.NotEmpty(t, result.Results)
}

func TestCancelSearchOnUnknownIDIsNoop(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	assert.NotPanics(t, func() { engine.CancelSearch("search_0_000000000") })
}

func TestSmartPreCacheRefreshesHighSearchCountDirectories(t *testing.T) {
	engine, index, tracker := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 11; i++ {
		engine.analytics.touchPath("docs/report.pdf", true)
	}

	require.NoError(t, engine.SmartPreCache(ctx, tracker))

	e, err := index.Stat(ctx, "docs/report.pdf")
	require.NoError(t, err)
	require.NotNil(t, e)
}

func TestDedupeAppendAndFreshSkipSeenPaths(t *testing.T) {
	seen := map[string]struct{}{}
	merged := dedupeAppend(nil, seen, []coretypes.Entry{{Full: "a"}, {Full: "b"}})
	assert.Len(t, merged, 2)

	fresh := dedupeFresh(seen, []coretypes.Entry{{Full: "b"}, {Full: "c"}})
	assert.Len(t, fresh, 1)
	assert.Equal(t, "c", fresh[0].Full)
}
