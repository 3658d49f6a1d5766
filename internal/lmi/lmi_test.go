package lmi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localidx/fsindex/internal/aft"
	"github.com/localidx/fsindex/internal/config"
	"github.com/localidx/fsindex/internal/coretypes"
	"github.com/localidx/fsindex/internal/events"
	"github.com/localidx/fsindex/internal/fsadapter"
	"github.com/localidx/fsindex/internal/kvstore"
)

func newTestIndex(fsys *fakeFS) (*Index, *kvstore.MemoryStore) {
	cfg := config.Default("", "")
	kv := kvstore.NewMemoryStore()
	tracker := aft.New(1000)
	bus := events.NewBus()
	return New(cfg, fsys, kv, tracker, bus), kv
}

func sampleTree() *fakeFS {
	f := newFakeFS()
	f.mkdir("docs")
	f.writeFile("docs/report.pdf", "pdf-bytes")
	f.writeFile("docs/notes.txt", "plain text")
	f.mkdir("docs/archive")
	f.writeFile("docs/archive/old.pdf", "old-pdf")
	f.writeFile("readme.md", "# hi")
	return f
}

func TestInitialScanThenList(t *testing.T) {
	ctx := context.Background()
	fsys := sampleTree()
	idx, _ := newTestIndex(fsys)

	require.NoError(t, idx.InitialScan(ctx))

	root, err := idx.List(ctx, ".")
	require.NoError(t, err)
	names := make([]string, 0, len(root))
	for _, e := range root {
		names = append(names, e.Name)
	}
	assert.ElementsMatch(t, []string{"docs", "readme.md"}, names)

	// directories sort before files regardless of name.
	assert.True(t, root[0].IsDirectory)

	docs, err := idx.List(ctx, "docs")
	require.NoError(t, err)
	docNames := make([]string, 0, len(docs))
	for _, e := range docs {
		docNames = append(docNames, e.Name)
	}
	assert.ElementsMatch(t, []string{"archive", "notes.txt", "report.pdf"}, docNames)
}

func TestInitialScanThenStat(t *testing.T) {
	ctx := context.Background()
	fsys := sampleTree()
	idx, _ := newTestIndex(fsys)
	require.NoError(t, idx.InitialScan(ctx))

	e, err := idx.Stat(ctx, "docs/report.pdf")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "report.pdf", e.Name)
	assert.Equal(t, ".pdf", e.Extension)
	assert.False(t, e.IsDirectory)
}

func TestStatUnknownPathReturnsNil(t *testing.T) {
	ctx := context.Background()
	idx, _ := newTestIndex(sampleTree())
	require.NoError(t, idx.InitialScan(ctx))

	e, err := idx.Stat(ctx, "does/not/exist")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestRefreshPathPicksUpNewFile(t *testing.T) {
	ctx := context.Background()
	fsys := sampleTree()
	idx, _ := newTestIndex(fsys)
	require.NoError(t, idx.InitialScan(ctx))

	fsys.writeFile("docs/new.txt", "fresh")
	require.NoError(t, idx.RefreshPath(ctx, "docs/new.txt"))

	e, err := idx.Stat(ctx, "docs/new.txt")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "new.txt", e.Name)

	docs, err := idx.List(ctx, "docs")
	require.NoError(t, err)
	var found bool
	for _, c := range docs {
		if c.Name == "new.txt" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRefreshPathOnMissingFileActsAsUnlink(t *testing.T) {
	ctx := context.Background()
	fsys := sampleTree()
	idx, _ := newTestIndex(fsys)
	require.NoError(t, idx.InitialScan(ctx))

	fsys.remove("docs/notes.txt")
	require.NoError(t, idx.RefreshPath(ctx, "docs/notes.txt"))

	e, err := idx.Stat(ctx, "docs/notes.txt")
	require.NoError(t, err)
	assert.Nil(t, e)

	docs, err := idx.List(ctx, "docs")
	require.NoError(t, err)
	for _, c := range docs {
		assert.NotEqual(t, "notes.txt", c.Name)
	}
}

func TestRemoveTreeCascadesSubtree(t *testing.T) {
	ctx := context.Background()
	fsys := sampleTree()
	idx, _ := newTestIndex(fsys)
	require.NoError(t, idx.InitialScan(ctx))

	require.NoError(t, idx.removeTree(ctx, "docs/archive"))

	e, err := idx.Stat(ctx, "docs/archive/old.pdf")
	require.NoError(t, err)
	assert.Nil(t, e)

	docs, err := idx.List(ctx, "docs")
	require.NoError(t, err)
	for _, c := range docs {
		assert.NotEqual(t, "archive", c.Name)
	}
}

func TestApplyWatchEventAddDir(t *testing.T) {
	ctx := context.Background()
	fsys := sampleTree()
	idx, _ := newTestIndex(fsys)
	require.NoError(t, idx.InitialScan(ctx))

	fsys.mkdir("projects")
	fsys.writeFile("projects/plan.txt", "plan")
	idx.applyWatchEvent(ctx, fsadapter.Event{Kind: fsadapter.EventAddDir, Path: "projects"})

	root, err := idx.List(ctx, ".")
	require.NoError(t, err)
	var found bool
	for _, e := range root {
		if e.Name == "projects" {
			found = true
		}
	}
	assert.True(t, found)

	child, err := idx.Stat(ctx, "projects/plan.txt")
	require.NoError(t, err)
	require.NotNil(t, child)
}

func TestApplyWatchEventUnlink(t *testing.T) {
	ctx := context.Background()
	fsys := sampleTree()
	idx, _ := newTestIndex(fsys)
	require.NoError(t, idx.InitialScan(ctx))

	fsys.remove("readme.md")
	idx.applyWatchEvent(ctx, fsadapter.Event{Kind: fsadapter.EventUnlink, Path: "readme.md"})

	e, err := idx.Stat(ctx, "readme.md")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestSearchMetaTierMatchesByBaseName(t *testing.T) {
	ctx := context.Background()
	idx, _ := newTestIndex(sampleTree())
	require.NoError(t, idx.InitialScan(ctx))

	results, err := idx.Search(ctx, "report", SearchOptions{Tier: coretypes.TierMeta, Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "report.pdf", results[0].Name)
}

func TestSearchDirTierMatchesChildNames(t *testing.T) {
	ctx := context.Background()
	idx, _ := newTestIndex(sampleTree())
	require.NoError(t, idx.InitialScan(ctx))

	results, err := idx.Search(ctx, "archive", SearchOptions{Tier: coretypes.TierDir, Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "archive", results[0].Name)
}

func TestSearchRespectsMinPriority(t *testing.T) {
	ctx := context.Background()
	idx, _ := newTestIndex(sampleTree())
	require.NoError(t, idx.InitialScan(ctx))

	results, err := idx.Search(ctx, "report", SearchOptions{Tier: coretypes.TierMeta, Limit: 10, MinPriority: coretypes.Critical})
	require.NoError(t, err)
	assert.Empty(t, results)
}
