// Package coretypes holds the data model shared by every subsystem: Entry,
// Priority and Tier (spec.md §3). The JSON tagging follows the convention
// rclone's own cache records use in backend/cache/directory.go and
// backend/cache/object.go — a plain struct, lower camel-case JSON names,
// marshalled directly into the K/V store's values.
package coretypes

import "time"

// Priority is the ordinal cache/search priority assigned by AFT.
type Priority int

const (
	Low      Priority = 1
	Medium   Priority = 2
	High     Priority = 3
	Critical Priority = 4
)

// String renders the priority for logging.
func (p Priority) String() string {
	switch p {
	case Critical:
		return "critical"
	case High:
		return "high"
	case Medium:
		return "medium"
	case Low:
		return "low"
	default:
		return "unknown"
	}
}

// Tier is one of the three projections of the entry set.
type Tier int

const (
	TierMeta Tier = iota
	TierContent
	TierDir
)

// String renders the tier name used as the K/V key prefix.
func (t Tier) String() string {
	switch t {
	case TierMeta:
		return "meta"
	case TierContent:
		return "content"
	case TierDir:
		return "dir"
	default:
		return "unknown"
	}
}

// Entry is a single indexed filesystem record, the union of what all three
// tiers can hold for one path (spec.md §3).
type Entry struct {
	Name        string    `json:"name"`
	IsDirectory bool      `json:"is_directory"`
	Size        int64     `json:"size"`
	ModTime     time.Time `json:"mtime"`
	CTime       time.Time `json:"ctime"`
	Extension   string    `json:"extension"`
	MIME        string    `json:"mime"`
	Priority    Priority  `json:"priority"`
	Parent      string    `json:"parent"`
	Full        string    `json:"full"`

	// LastAccess is carried on Meta-tier records only.
	LastAccess time.Time `json:"last_access,omitempty"`
	// Exists marks a Meta record as present; Meta holds no deletion
	// tombstones, absence of the key is the deletion signal.
	Exists bool `json:"exists,omitempty"`

	// Tiers records which tiers contributed to a Comprehensive-mode merge
	// (spec.md §4.2); empty outside of merged search results.
	Tiers map[string]struct{} `json:"-"`
}

// Clone returns a deep-enough copy safe for callers to mutate.
func (e Entry) Clone() Entry {
	out := e
	if e.Tiers != nil {
		out.Tiers = make(map[string]struct{}, len(e.Tiers))
		for k := range e.Tiers {
			out.Tiers[k] = struct{}{}
		}
	}
	return out
}
