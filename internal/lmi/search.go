package lmi

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/localidx/fsindex/internal/corepath"
	"github.com/localidx/fsindex/internal/coretypes"
)

// SearchOptions constrains an LMI-level Search call (spec.md §4.1).
type SearchOptions struct {
	Tier        coretypes.Tier
	Limit       int
	MinPriority coretypes.Priority
}

const searchScanPageSize = 100

// Search substring-matches query (case-insensitive) against the basename of
// every entry in the chosen tier, cursor-paginating in batches of ~100,
// stopping early once Limit results have been collected. Results are sorted
// priority desc, directories first, then name asc, and touch AFT.
func (idx *Index) Search(ctx context.Context, query string, opts SearchOptions) ([]coretypes.Entry, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	queryLower := strings.ToLower(query)

	matches, err := idx.searchInLayer(ctx, opts.Tier, queryLower, opts.MinPriority, limit)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.IsDirectory != b.IsDirectory {
			return a.IsDirectory
		}
		return idx.collator.CompareString(a.Name, b.Name) < 0
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	for _, e := range matches {
		idx.aft.Touch(e.Full)
	}
	return matches, nil
}

// searchInLayer implements the chosen tier's scan: Meta/Content iterate
// top-level keys directly, Dir iterates each hash's fields (spec.md §4.1).
func (idx *Index) searchInLayer(ctx context.Context, tier coretypes.Tier, queryLower string, minPriority coretypes.Priority, limit int) ([]coretypes.Entry, error) {
	switch tier {
	case coretypes.TierContent:
		return idx.scanLayerKeys(ctx, "content:", queryLower, minPriority, limit, func(raw []byte, path string) (coretypes.Entry, bool) {
			var c contentRecord
			if json.Unmarshal(raw, &c) != nil {
				return coretypes.Entry{}, false
			}
			return c.toEntry(corepath.Parent(path), path), true
		})
	case coretypes.TierDir:
		return idx.scanDirLayer(ctx, queryLower, minPriority, limit)
	default:
		return idx.scanLayerKeys(ctx, "meta:", queryLower, minPriority, limit, func(raw []byte, path string) (coretypes.Entry, bool) {
			var m metaRecord
			if json.Unmarshal(raw, &m) != nil {
				return coretypes.Entry{}, false
			}
			return m.toEntry(corepath.Parent(path), path), true
		})
	}
}

// scanLayerKeys cursor-paginates a Meta- or Content-tier prefix, decoding
// and basename-matching each key, stopping once limit matches are found.
func (idx *Index) scanLayerKeys(ctx context.Context, prefix, queryLower string, minPriority coretypes.Priority, limit int, decode func(raw []byte, path string) (coretypes.Entry, bool)) ([]coretypes.Entry, error) {
	var out []coretypes.Entry
	cursor := ""
	for {
		page, err := idx.kv.Scan(ctx, cursor, prefix, searchScanPageSize)
		if err != nil {
			return nil, err
		}
		for _, key := range page.Keys {
			path := strings.TrimPrefix(key, prefix)
			if !strings.Contains(strings.ToLower(corepath.Base(path)), queryLower) {
				continue
			}
			raw, err := idx.kv.HGet(ctx, key, "data")
			if err != nil {
				continue
			}
			e, ok := decode(raw, path)
			if !ok || e.Priority < minPriority {
				continue
			}
			out = append(out, e)
			if len(out) >= limit {
				return out, nil
			}
		}
		if page.Cursor == "" {
			return out, nil
		}
		cursor = page.Cursor
	}
}

// scanDirLayer iterates every dir:<parent> hash and matches against each
// field (child)'s name, since the Dir tier has no direct per-entry key.
func (idx *Index) scanDirLayer(ctx context.Context, queryLower string, minPriority coretypes.Priority, limit int) ([]coretypes.Entry, error) {
	var out []coretypes.Entry
	cursor := ""
	for {
		page, err := idx.kv.Scan(ctx, cursor, "dir:", searchScanPageSize)
		if err != nil {
			return nil, err
		}
		for _, key := range page.Keys {
			fields, err := idx.kv.HGetAll(ctx, key)
			if err != nil {
				continue
			}
			for name, raw := range fields {
				if !strings.Contains(strings.ToLower(name), queryLower) {
					continue
				}
				var c dirChild
				if json.Unmarshal(raw, &c) != nil {
					continue
				}
				if c.Priority < minPriority {
					continue
				}
				out = append(out, c.toEntry())
				if len(out) >= limit {
					return out, nil
				}
			}
		}
		if page.Cursor == "" {
			return out, nil
		}
		cursor = page.Cursor
	}
}
