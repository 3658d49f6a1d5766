package ise

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/localidx/fsindex/internal/coretypes"
)

func TestSimilarityBothEmptyIsOne(t *testing.T) {
	assert.Equal(t, 1.0, similarity("", ""))
}

func TestSimilarityIdenticalIsOne(t *testing.T) {
	assert.Equal(t, 1.0, similarity("report", "report"))
}

func TestSimilarityOneEditAway(t *testing.T) {
	// "report" -> "repor" is one deletion; max len 6, dist 1 -> 5/6
	assert.InDelta(t, 5.0/6.0, similarity("report", "repor"), 1e-9)
}

func TestLevenshteinBasic(t *testing.T) {
	assert.Equal(t, 0, levenshtein([]rune("abc"), []rune("abc")))
	assert.Equal(t, 3, levenshtein([]rune("abc"), []rune("")))
	assert.Equal(t, 1, levenshtein([]rune("cat"), []rune("cats")))
	assert.Equal(t, 3, levenshtein([]rune("kitten"), []rune("sitting")))
}

func TestScoreExactMatchBeatsPrefixBeatsSubstring(t *testing.T) {
	now := time.Now()
	exact := score(coretypes.Entry{Name: "report"}, "report", 0, 0, now)
	prefix := score(coretypes.Entry{Name: "reportage"}, "report", 0, 0, now)
	substr := score(coretypes.Entry{Name: "myreport"}, "report", 0, 0, now)

	assert.Equal(t, tagExact, exact.Tag)
	assert.Equal(t, tagPartial, prefix.Tag)
	assert.Equal(t, tagPartial, substr.Tag)
	assert.Greater(t, exact.Score, prefix.Score)
	assert.Greater(t, prefix.Score, substr.Score)
}

func TestScoreDirectoryBonus(t *testing.T) {
	now := time.Now()
	file := score(coretypes.Entry{Name: "report", IsDirectory: false}, "report", 0, 0, now)
	dir := score(coretypes.Entry{Name: "report", IsDirectory: true}, "report", 0, 0, now)
	assert.Equal(t, 100.0, dir.Score-file.Score)
}

func TestScorePriorityAndAccessCountBonuses(t *testing.T) {
	now := time.Now()
	base := score(coretypes.Entry{Name: "x", Priority: coretypes.Low}, "x", 0, 0, now)
	withAccess := score(coretypes.Entry{Name: "x", Priority: coretypes.Low}, "x", 5, 0, now)
	withSearch := score(coretypes.Entry{Name: "x", Priority: coretypes.Low}, "x", 0, 3, now)

	assert.InDelta(t, 50.0, withAccess.Score-base.Score, 1e-9)
	assert.InDelta(t, 60.0, withSearch.Score-base.Score, 1e-9)
}

func TestScoreRecencyBonus(t *testing.T) {
	now := time.Now()
	recent := score(coretypes.Entry{Name: "x", ModTime: now.Add(-time.Hour)}, "x", 0, 0, now)
	weekOld := score(coretypes.Entry{Name: "x", ModTime: now.Add(-3 * 24 * time.Hour)}, "x", 0, 0, now)
	stale := score(coretypes.Entry{Name: "x", ModTime: now.Add(-30 * 24 * time.Hour)}, "x", 0, 0, now)

	assert.Greater(t, recent.Score, weekOld.Score)
	assert.Greater(t, weekOld.Score, stale.Score)
}

func TestScoreDepthPenalty(t *testing.T) {
	now := time.Now()
	shallow := score(coretypes.Entry{Name: "x", Full: "a/b/x"}, "x", 0, 0, now)
	deep := score(coretypes.Entry{Name: "x", Full: "a/b/c/d/e/f/x"}, "x", 0, 0, now)
	assert.Greater(t, shallow.Score, deep.Score)
}

func TestScoreFuzzyVsNoMatch(t *testing.T) {
	now := time.Now()
	fuzzy := score(coretypes.Entry{Name: "repot"}, "report", 0, 0, now)
	assert.Equal(t, tagFuzzy, fuzzy.Tag)

	none := score(coretypes.Entry{Name: "zzz"}, "report", 0, 0, now)
	assert.Equal(t, tagContent, none.Tag)
}
