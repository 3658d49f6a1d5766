// Package kvstore defines the key/value boundary the core consumes (spec.md
// §6): hash-field get/set, cursor-paginated scan, whole-key delete and
// flush. Two implementations are provided: a bbolt-backed persistent store
// (grounded on rclone's backend/cache/storage_persistent.go) and an
// in-memory store used by tests (grounded on
// backend/cache/storage_memory.go's patrickmn/go-cache wrapper).
package kvstore

import "context"

// notFoundError is returned by Get-style calls that miss.
type notFoundError struct{ key, field string }

func (e *notFoundError) Error() string {
	if e.field != "" {
		return "kvstore: no field " + e.field + " at key " + e.key
	}
	return "kvstore: no key " + e.key
}

// IsNotFound reports whether err is a miss, not a connectivity failure.
func IsNotFound(err error) bool {
	_, ok := err.(*notFoundError)
	return ok
}

// ScanResult is one page of a cursor-paginated key scan.
type ScanResult struct {
	// Cursor is opaque; pass it back to continue. The empty string both
	// starts and (when returned) terminates a scan.
	Cursor string
	Keys   []string
}

// Store is the K/V boundary consumed by LMI and ISE.
type Store interface {
	// HSet sets one field of the hash stored at key.
	HSet(ctx context.Context, key, field string, value []byte) error
	// HSetRecord sets the single "data" field of the hash stored at key,
	// used when a tier record has no meaningful sub-fields. Other fields
	// at key are left as they are.
	HSetRecord(ctx context.Context, key string, value []byte) error
	// HGet reads one field.
	HGet(ctx context.Context, key, field string) ([]byte, error)
	// HGetAll reads every field of the hash at key.
	HGetAll(ctx context.Context, key string) (map[string][]byte, error)
	// HDel removes one field; if it was the last field the key itself is
	// removed.
	HDel(ctx context.Context, key, field string) error
	// Del removes the whole key.
	Del(ctx context.Context, key string) error
	// Scan iterates keys with the given prefix, `count` per page.
	Scan(ctx context.Context, cursor, prefix string, count int) (ScanResult, error)
	// ScanPrefixDelete removes every key with the given prefix; used for
	// the unlinkDir cascade (spec.md §3 Lifecycle).
	ScanPrefixDelete(ctx context.Context, prefix string) error
	// FlushDB clears the whole store; used only at index init.
	FlushDB(ctx context.Context) error
	// Close releases underlying resources.
	Close() error
}

// singleField is the field name used for tier records that are logically
// a single value rather than a hash (Meta and Content tiers).
const singleField = "data"
