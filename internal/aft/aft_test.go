package aft

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/localidx/fsindex/internal/coretypes"
)

func TestPriorityRootIsAlwaysCritical(t *testing.T) {
	tr := New(100)
	assert.Equal(t, coretypes.Critical, tr.Priority("."))
	assert.Equal(t, coretypes.Critical, tr.Priority("top"))
}

func TestPriorityUnknownPathFallsBackOnDepth(t *testing.T) {
	tr := New(100)
	assert.Equal(t, coretypes.Medium, tr.Priority("a/b"))
	assert.Equal(t, coretypes.Low, tr.Priority("a/b/c/d/e/f"))
}

func TestPriorityHighAfterFrequentRecentAccess(t *testing.T) {
	now := time.Now()
	tr := New(100)
	tr.now = func() time.Time { return now }

	for i := 0; i < 11; i++ {
		tr.Touch("a/b")
	}
	assert.Equal(t, coretypes.High, tr.Priority("a/b"))
}

func TestPriorityDecaysFromHighToMediumWhenStale(t *testing.T) {
	now := time.Now()
	tr := New(100)
	tr.now = func() time.Time { return now }
	for i := 0; i < 11; i++ {
		tr.Touch("a/b")
	}

	tr.now = func() time.Time { return now.Add(48 * time.Hour) }
	assert.Equal(t, coretypes.Medium, tr.Priority("a/b"))
}

func TestPriorityMediumAfterModerateRecentAccess(t *testing.T) {
	now := time.Now()
	tr := New(100)
	tr.now = func() time.Time { return now }
	for i := 0; i < 6; i++ {
		tr.Touch("a/b")
	}
	assert.Equal(t, coretypes.Medium, tr.Priority("a/b"))
}

func TestTouchIncrementsCountAndLastAccess(t *testing.T) {
	tr := New(100)
	tr.Touch("x/y")
	tr.Touch("x/y")
	count, _, ok := tr.Stats("x/y")
	assert.True(t, ok)
	assert.Equal(t, 2, count)
}

func TestPurgeRemovesSubtreeOnly(t *testing.T) {
	tr := New(100)
	tr.Touch("dir/a")
	tr.Touch("dir/b")
	tr.Touch("other/c")

	tr.Purge("dir")

	_, _, okA := tr.Stats("dir/a")
	_, _, okB := tr.Stats("dir/b")
	_, _, okC := tr.Stats("other/c")
	assert.False(t, okA)
	assert.False(t, okB)
	assert.True(t, okC)
}

func TestLRUCapEvictsLeastRecentlyTouched(t *testing.T) {
	tr := New(2)
	tr.Touch("a")
	tr.Touch("b")
	tr.Touch("c") // evicts "a"

	assert.Equal(t, 2, tr.Len())
	_, _, okA := tr.Stats("a")
	assert.False(t, okA)
}
