package ise

import (
	"strings"
	"time"

	"github.com/localidx/fsindex/internal/corepath"
	"github.com/localidx/fsindex/internal/coretypes"
)

// matchTag classifies how a candidate matched the query, carried alongside
// its score so callers (and the contextual cache's suggestion logic) can
// tally exact/partial/fuzzy/content counts without recomputing the match.
type matchTag string

const (
	tagExact   matchTag = "exact"
	tagPartial matchTag = "partial"
	tagFuzzy   matchTag = "fuzzy"
	tagContent matchTag = "content"
)

// scored is a candidate Entry plus its ranking score and match tag.
type scored struct {
	Entry coretypes.Entry
	Score float64
	Tag   matchTag
}

// score implements the ranking function of spec.md §4.2 against a single
// candidate. accessCount and searchCount are AFT/ISE-local observation
// counts; now is injected for testability.
func score(e coretypes.Entry, queryLower string, accessCount, searchCount int, now time.Time) scored {
	nameLower := strings.ToLower(e.Name)

	var s float64
	var tag matchTag
	switch {
	case nameLower == queryLower:
		s, tag = 1000, tagExact
	case strings.HasPrefix(nameLower, queryLower):
		s, tag = 800, tagPartial
	case strings.Contains(nameLower, queryLower):
		s, tag = 600, tagPartial
	default:
		if sim := similarity(nameLower, queryLower); sim > 0.6 {
			s, tag = 400*sim, tagFuzzy
		} else {
			s, tag = 200, tagContent
		}
	}

	if e.IsDirectory {
		s += 100
	}
	s += 50 * float64(e.Priority)
	s += 10 * float64(accessCount)
	s += 20 * float64(searchCount)

	if !e.ModTime.IsZero() {
		age := now.Sub(e.ModTime)
		switch {
		case age <= 24*time.Hour:
			s += 100
		case age <= 7*24*time.Hour:
			s += 50
		}
	}

	if depth := corepath.Depth(e.Full); depth > 5 {
		s -= 10 * float64(depth-5)
	}

	return scored{Entry: e, Score: s, Tag: tag}
}

// similarity is normalized Levenshtein similarity: (max(|a|,|b|) -
// edit(a,b)) / max(|a|,|b|), defined as 1.0 when both strings are empty
// (spec.md §4.2).
func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 && lb == 0 {
		return 1.0
	}
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	dist := levenshtein(ra, rb)
	return float64(maxLen-dist) / float64(maxLen)
}

// levenshtein computes the classic edit distance with a two-row dynamic
// program, avoiding an O(n*m) matrix allocation.
func levenshtein(a, b []rune) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			curr[j] = m
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}
