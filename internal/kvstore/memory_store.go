package kvstore

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store, used by tests; nothing in the core
// switches to it when a persistent store is unavailable. Modeled on
// the same bucket-of-hashes shape as BoltStore so callers see identical
// semantics regardless of backing, the way rclone's Memory storage
// (backend/cache/storage_memory.go) mirrors Persistent's chunk API.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string]map[string][]byte
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]map[string]map[string][]byte)}
}

func (m *MemoryStore) bucket(name string) map[string]map[string][]byte {
	bk, ok := m.buckets[name]
	if !ok {
		bk = make(map[string]map[string][]byte)
		m.buckets[name] = bk
	}
	return bk
}

func (m *MemoryStore) HSet(_ context.Context, key, field string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, id := bucketFor(key)
	bk := m.bucket(bucket)
	fields, ok := bk[id]
	if !ok {
		fields = make(map[string][]byte)
		bk[id] = fields
	}
	fields[field] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) HSetRecord(ctx context.Context, key string, value []byte) error {
	return m.HSet(ctx, key, singleField, value)
}

func (m *MemoryStore) HGet(_ context.Context, key, field string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bucket, id := bucketFor(key)
	fields, ok := m.buckets[bucket][id]
	if !ok {
		return nil, &notFoundError{key: key, field: field}
	}
	v, ok := fields[field]
	if !ok {
		return nil, &notFoundError{key: key, field: field}
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStore) HGetAll(_ context.Context, key string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bucket, id := bucketFor(key)
	fields, ok := m.buckets[bucket][id]
	if !ok {
		return nil, &notFoundError{key: key}
	}
	out := make(map[string][]byte, len(fields))
	for k, v := range fields {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}

func (m *MemoryStore) HDel(_ context.Context, key, field string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, id := bucketFor(key)
	fields, ok := m.buckets[bucket][id]
	if !ok {
		return nil
	}
	delete(fields, field)
	if len(fields) == 0 {
		delete(m.buckets[bucket], id)
	}
	return nil
}

func (m *MemoryStore) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, id := bucketFor(key)
	delete(m.buckets[bucket], id)
	return nil
}

func (m *MemoryStore) Scan(_ context.Context, cursor, prefix string, count int) (ScanResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bucket, idPrefix := bucketFor(prefix)
	bk := m.buckets[bucket]
	ids := make([]string, 0, len(bk))
	for id := range bk {
		if strings.HasPrefix(id, idPrefix) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	start := 0
	if cursor != "" {
		for i, id := range ids {
			if id > cursor {
				start = i
				break
			}
			start = i + 1
		}
	}

	var res ScanResult
	end := start
	for end < len(ids) && len(res.Keys) < count {
		res.Keys = append(res.Keys, bucket+":"+ids[end])
		end++
	}
	if end < len(ids) {
		res.Cursor = ids[end-1]
	}
	return res, nil
}

func (m *MemoryStore) ScanPrefixDelete(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, idPrefix := bucketFor(prefix)
	bk := m.buckets[bucket]
	for id := range bk {
		if strings.HasPrefix(id, idPrefix) {
			delete(bk, id)
		}
	}
	return nil
}

func (m *MemoryStore) FlushDB(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets = make(map[string]map[string]map[string][]byte)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
