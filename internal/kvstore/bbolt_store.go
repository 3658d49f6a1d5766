package kvstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// bucketFor groups keys of the form "<bucket>:<rest>" into one top-level
// bbolt bucket per prefix, the same one-bucket-per-concern split rclone's
// storage_persistent.go uses for RootBucket/RootTsBucket/DataTsBucket.
func bucketFor(key string) (bucket, id string) {
	idx := strings.IndexByte(key, ':')
	if idx < 0 {
		return "default", key
	}
	return key[:idx], key[idx+1:]
}

// BoltStore is a bbolt-backed implementation of Store. Each logical hash
// (one per tier record or search-analytics entry) is stored as a single
// bbolt value: a small length-prefixed field table, rather than a nested
// bucket per field, since the spec's hashes are narrow (a handful of
// fields per Dir entry, one field for Meta/Content). This follows the same
// "JSON blob under one bolt key, re-read/re-marshalled on every write"
// shape as GetDir/AddBatchDir in storage_persistent.go, simplified to a
// flat field map since this store has no chunk-data bucket to manage.
type BoltStore struct {
	db *bolt.DB
	mu sync.Mutex // serializes the encode-modify-write cycle per key
}

// Open connects to (creating if absent) the bbolt file at path.
func Open(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0644, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open a cache connection to %q", path)
	}
	return &BoltStore{db: db}, nil
}

func (b *BoltStore) fields(tx *bolt.Tx, bucket, id string) (map[string][]byte, *bolt.Bucket, error) {
	bk, err := tx.CreateBucketIfNotExists([]byte(bucket))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "couldn't open bucket %q", bucket)
	}
	raw := bk.Get([]byte(id))
	if raw == nil {
		return map[string][]byte{}, bk, nil
	}
	fields, err := decodeFields(raw)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "couldn't decode fields at %q/%q", bucket, id)
	}
	return fields, bk, nil
}

// HSet implements Store.
func (b *BoltStore) HSet(_ context.Context, key, field string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	bucket, id := bucketFor(key)
	return b.db.Update(func(tx *bolt.Tx) error {
		fields, bk, err := b.fields(tx, bucket, id)
		if err != nil {
			return err
		}
		fields[field] = append([]byte(nil), value...)
		return bk.Put([]byte(id), encodeFields(fields))
	})
}

// HSetRecord implements Store.
func (b *BoltStore) HSetRecord(ctx context.Context, key string, value []byte) error {
	return b.HSet(ctx, key, singleField, value)
}

// HGet implements Store.
func (b *BoltStore) HGet(_ context.Context, key, field string) ([]byte, error) {
	bucket, id := bucketFor(key)
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket([]byte(bucket))
		if bk == nil {
			return &notFoundError{key: key, field: field}
		}
		raw := bk.Get([]byte(id))
		if raw == nil {
			return &notFoundError{key: key, field: field}
		}
		fields, err := decodeFields(raw)
		if err != nil {
			return err
		}
		v, ok := fields[field]
		if !ok {
			return &notFoundError{key: key, field: field}
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

// HGetAll implements Store.
func (b *BoltStore) HGetAll(_ context.Context, key string) (map[string][]byte, error) {
	bucket, id := bucketFor(key)
	var out map[string][]byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket([]byte(bucket))
		if bk == nil {
			return &notFoundError{key: key}
		}
		raw := bk.Get([]byte(id))
		if raw == nil {
			return &notFoundError{key: key}
		}
		fields, err := decodeFields(raw)
		if err != nil {
			return err
		}
		out = fields
		return nil
	})
	return out, err
}

// HDel implements Store.
func (b *BoltStore) HDel(_ context.Context, key, field string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	bucket, id := bucketFor(key)
	return b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket([]byte(bucket))
		if bk == nil {
			return nil
		}
		raw := bk.Get([]byte(id))
		if raw == nil {
			return nil
		}
		fields, err := decodeFields(raw)
		if err != nil {
			return err
		}
		delete(fields, field)
		if len(fields) == 0 {
			return bk.Delete([]byte(id))
		}
		return bk.Put([]byte(id), encodeFields(fields))
	})
}

// Del implements Store.
func (b *BoltStore) Del(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	bucket, id := bucketFor(key)
	return b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket([]byte(bucket))
		if bk == nil {
			return nil
		}
		return bk.Delete([]byte(id))
	})
}

// Scan implements Store, paginating within the single bucket the prefix
// names via bbolt's own Cursor — never loading the whole bucket at once,
// satisfying spec.md §6's cursored-iteration requirement.
func (b *BoltStore) Scan(_ context.Context, cursor, prefix string, count int) (ScanResult, error) {
	bucket, idPrefix := bucketFor(prefix)
	var res ScanResult
	err := b.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket([]byte(bucket))
		if bk == nil {
			return nil
		}
		c := bk.Cursor()
		var k, v []byte
		var last string
		if cursor == "" {
			k, v = c.Seek([]byte(idPrefix))
		} else {
			k, v = c.Seek([]byte(cursor))
			// Seek lands on cursor itself if present; advance past it so
			// we don't re-emit the last key of the previous page.
			if k != nil && string(k) == cursor {
				k, v = c.Next()
			}
		}
		for ; k != nil; k, v = c.Next() {
			_ = v
			id := string(k)
			if !strings.HasPrefix(id, idPrefix) {
				break
			}
			if len(res.Keys) >= count {
				res.Cursor = last
				return nil
			}
			res.Keys = append(res.Keys, bucket+":"+id)
			last = id
		}
		res.Cursor = ""
		return nil
	})
	return res, err
}

// ScanPrefixDelete implements Store.
func (b *BoltStore) ScanPrefixDelete(_ context.Context, prefix string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	bucket, idPrefix := bucketFor(prefix)
	return b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket([]byte(bucket))
		if bk == nil {
			return nil
		}
		var toDelete [][]byte
		c := bk.Cursor()
		for k, _ := c.Seek([]byte(idPrefix)); k != nil && strings.HasPrefix(string(k), idPrefix); k, _ = c.Next() {
			toDelete = append(toDelete, append([]byte(nil), k...))
		}
		for _, k := range toDelete {
			if err := bk.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// FlushDB implements Store.
func (b *BoltStore) FlushDB(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.db.Update(func(tx *bolt.Tx) error {
		var names [][]byte
		_ = tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, append([]byte(nil), name...))
			return nil
		})
		for _, n := range names {
			if err := tx.DeleteBucket(n); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close implements Store.
func (b *BoltStore) Close() error {
	return b.db.Close()
}

// encodeFields/decodeFields use a trivial length-prefixed encoding rather
// than JSON so field values (themselves already JSON-encoded records) are
// not double-escaped.
func encodeFields(fields map[string][]byte) []byte {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []byte
	for _, k := range keys {
		out = append(out, putUvarint(uint64(len(k)))...)
		out = append(out, k...)
		v := fields[k]
		out = append(out, putUvarint(uint64(len(v)))...)
		out = append(out, v...)
	}
	return out
}

func decodeFields(raw []byte) (map[string][]byte, error) {
	out := make(map[string][]byte)
	for len(raw) > 0 {
		kl, n, err := getUvarint(raw)
		if err != nil {
			return nil, err
		}
		raw = raw[n:]
		if uint64(len(raw)) < kl {
			return nil, errors.New("corrupt field table: short key")
		}
		key := string(raw[:kl])
		raw = raw[kl:]

		vl, n, err := getUvarint(raw)
		if err != nil {
			return nil, err
		}
		raw = raw[n:]
		if uint64(len(raw)) < vl {
			return nil, errors.New("corrupt field table: short value")
		}
		out[key] = raw[:vl]
		raw = raw[vl:]
	}
	return out, nil
}
