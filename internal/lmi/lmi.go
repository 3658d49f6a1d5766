// Package lmi implements the Layered Metadata Index (spec.md §4.1): three
// cache tiers over a K/V store, a progressive scanner, and a filesystem
// watcher that keep them coherent.
package lmi

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/localidx/fsindex/internal/aft"
	"github.com/localidx/fsindex/internal/config"
	"github.com/localidx/fsindex/internal/corelog"
	"github.com/localidx/fsindex/internal/corepath"
	"github.com/localidx/fsindex/internal/coretypes"
	"github.com/localidx/fsindex/internal/events"
	"github.com/localidx/fsindex/internal/fsadapter"
	"github.com/localidx/fsindex/internal/kvstore"
)

// Index owns the three tiers and serves List/Stat/Search/RefreshPath.
type Index struct {
	cfg config.Config
	fs  fsadapter.FS
	kv  kvstore.Store
	aft *aft.Tracker
	bus *events.Bus

	collator *collate.Collator

	watcher   *fsadapter.Watcher
	watchDone chan struct{}

	scanMu     sync.Mutex
	scanCancel context.CancelFunc
}

// New constructs an Index. It does not scan or watch until Init is called.
func New(cfg config.Config, fs fsadapter.FS, kv kvstore.Store, tracker *aft.Tracker, bus *events.Bus) *Index {
	return &Index{
		cfg:      cfg,
		fs:       fs,
		kv:       kv,
		aft:      tracker,
		bus:      bus,
		collator: collate.New(language.Und, collate.IgnoreCase),
	}
}

// Init flushes the K/V store, runs the progressive initial scan to
// completion (or until cancelled), then starts the filesystem watcher. A
// connection failure to the K/V store is fatal per spec.md §4.1.
func (idx *Index) Init(ctx context.Context) error {
	if err := idx.kv.FlushDB(ctx); err != nil {
		return errors.Wrap(err, "lmi: K/V store unavailable at init")
	}

	if err := idx.InitialScan(ctx); err != nil && errors.Cause(err) != ErrAborted {
		return errors.Wrap(err, "lmi: initial scan failed")
	}

	w, err := fsadapter.NewWatcher(idx.fs.Root(), idx.cfg.IgnorePatterns, idx.cfg.WatchDebounce)
	if err != nil {
		corelog.Warnf("lmi", "watcher unavailable, index will not track live changes: %v", err)
		return nil
	}
	idx.watcher = w
	idx.watchDone = make(chan struct{})
	go idx.watchLoop()
	return nil
}

// Close stops the watcher and cancels any in-flight scan.
func (idx *Index) Close() error {
	idx.AbortScanning()
	if idx.watcher != nil {
		close(idx.watchDone)
		return idx.watcher.Close()
	}
	return nil
}

// List returns the direct children of dir, directories first then by
// locale-aware case-insensitive name (spec.md §4.1).
func (idx *Index) List(ctx context.Context, dir string) ([]coretypes.Entry, error) {
	dir = corepath.Clean(dir)

	entries, err := idx.listFromDirTier(ctx, dir)
	if err != nil && kvstore.IsNotFound(err) {
		entries, err = idx.listFallback(ctx, dir)
	}
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.IsDirectory != b.IsDirectory {
			return a.IsDirectory
		}
		return idx.collator.CompareString(a.Name, b.Name) < 0
	})

	for _, e := range entries {
		idx.aft.Touch(e.Full)
	}
	return entries, nil
}

func (idx *Index) listFromDirTier(ctx context.Context, dir string) ([]coretypes.Entry, error) {
	fields, err := idx.kv.HGetAll(ctx, keyDir(dir))
	if err != nil {
		return nil, err
	}
	out := make([]coretypes.Entry, 0, len(fields))
	for _, raw := range fields {
		var c dirChild
		if err := json.Unmarshal(raw, &c); err != nil {
			corelog.Warnf("lmi", "decode dir child of %q: %v", dir, err)
			continue
		}
		out = append(out, c.toEntry())
	}
	return out, nil
}

// listFallback serves List when the Dir key hasn't been written yet (only
// during initial indexing, per spec.md §4.1), preferring Content then Meta.
func (idx *Index) listFallback(ctx context.Context, dir string) ([]coretypes.Entry, error) {
	prefix := ""
	if dir != corepath.Root {
		prefix = dir + "/"
	}

	entries, err := idx.scanDirectChildren(ctx, "content:"+prefix, dir, func(raw []byte, path string) (coretypes.Entry, bool) {
		var c contentRecord
		if json.Unmarshal(raw, &c) != nil {
			return coretypes.Entry{}, false
		}
		return c.toEntry(dir, path), true
	})
	if err == nil && len(entries) > 0 {
		return entries, nil
	}

	return idx.scanDirectChildren(ctx, "meta:"+prefix, dir, func(raw []byte, path string) (coretypes.Entry, bool) {
		var m metaRecord
		if json.Unmarshal(raw, &m) != nil {
			return coretypes.Entry{}, false
		}
		return m.toEntry(dir, path), true
	})
}

// scanDirectChildren cursor-paginates the given K/V prefix (chunks of 100,
// per spec.md §4.1's searchInLayer batching) and keeps only keys that are
// direct children of dir.
func (idx *Index) scanDirectChildren(ctx context.Context, kvPrefix, dir string, decode func(raw []byte, path string) (coretypes.Entry, bool)) ([]coretypes.Entry, error) {
	var out []coretypes.Entry
	cursor := ""
	for {
		page, err := idx.kv.Scan(ctx, cursor, kvPrefix, 100)
		if err != nil {
			return nil, err
		}
		for _, key := range page.Keys {
			path := strings.TrimPrefix(key, kvPrefix[:strings.IndexByte(kvPrefix, ':')+1])
			if corepath.Parent(path) != dir {
				continue
			}
			raw, err := idx.kv.HGet(ctx, key, fieldForKey(key))
			if err != nil {
				continue
			}
			if e, ok := decode(raw, path); ok {
				out = append(out, e)
			}
		}
		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}
	return out, nil
}

func fieldForKey(key string) string {
	return "data"
}

// Stat returns the Entry for path, consulting Content then Meta (spec.md
// §4.1), or nil if neither tier has it.
func (idx *Index) Stat(ctx context.Context, path string) (*coretypes.Entry, error) {
	path = corepath.Clean(path)

	if raw, err := idx.kv.HGet(ctx, keyContent(path), "data"); err == nil {
		var c contentRecord
		if err := json.Unmarshal(raw, &c); err == nil {
			e := c.toEntry(corepath.Parent(path), path)
			idx.aft.Touch(path)
			return &e, nil
		}
	}
	if raw, err := idx.kv.HGet(ctx, keyMeta(path), "data"); err == nil {
		var m metaRecord
		if err := json.Unmarshal(raw, &m); err == nil {
			e := m.toEntry(corepath.Parent(path), path)
			idx.aft.Touch(path)
			return &e, nil
		}
	}
	return nil, nil
}

// RefreshPath rescans the subtree rooted at path (or the single entry if it
// is a file), rewriting all three tiers for it.
func (idx *Index) RefreshPath(ctx context.Context, path string) error {
	path = corepath.Clean(path)

	info, err := idx.fs.Lstat(path)
	if err != nil {
		// Missing mid-refresh is treated as an unlink (spec.md §7).
		return idx.applyUnlink(ctx, path)
	}

	if info.IsDir {
		return idx.refreshDir(ctx, path)
	}
	return idx.refreshSingle(ctx, path, info)
}

func (idx *Index) refreshSingle(ctx context.Context, path string, info fsadapter.Info) error {
	parent := corepath.Parent(path)
	priority := idx.aft.Priority(path)

	meta := metaRecord{Name: info.Name, IsDirectory: false, Exists: true, Priority: priority, LastAccess: time.Now()}
	if err := idx.kv.HSetRecord(ctx, keyMeta(path), marshal(meta)); err != nil {
		return errors.Wrapf(err, "refresh meta %q", path)
	}

	ext, mimeType := extensionAndMIME(path, false)
	if mimeType == "application/octet-stream" {
		if abs := filepath.Join(idx.fs.Root(), path); abs != "" {
			if sniffed, serr := sniffMIME(abs); serr == nil && sniffed != "" {
				mimeType = sniffed
			}
		}
	}
	content := contentRecord{
		Name: info.Name, IsDirectory: false, Size: info.Size,
		ModTime: time.Unix(0, info.ModTime), CTime: time.Unix(0, info.CTime),
		Extension: ext, MIME: mimeType, Priority: priority,
	}
	if err := idx.kv.HSetRecord(ctx, keyContent(path), marshal(content)); err != nil {
		return errors.Wrapf(err, "refresh content %q", path)
	}

	child := dirChild{
		Name: info.Name, IsDirectory: false, Size: info.Size,
		ModTime: time.Unix(0, info.ModTime), CTime: time.Unix(0, info.CTime),
		Parent: parent, Full: path, Priority: priority,
	}
	if err := idx.kv.HSet(ctx, keyDir(parent), info.Name, marshal(child)); err != nil {
		return errors.Wrapf(err, "refresh dir entry %q", path)
	}

	idx.bus.Publish(events.Event{Kind: events.IndexChanged, Operation: "change", Path: path, Tiers: []string{"meta", "content", "dir"}})
	return nil
}

func (idx *Index) refreshDir(ctx context.Context, dir string) error {
	parent := corepath.Parent(dir)
	info, err := idx.fs.Lstat(dir)
	if err != nil {
		return idx.applyUnlink(ctx, dir)
	}
	priority := idx.aft.Priority(dir)

	meta := metaRecord{Name: info.Name, IsDirectory: true, Exists: true, Priority: priority, LastAccess: time.Now()}
	_ = idx.kv.HSetRecord(ctx, keyMeta(dir), marshal(meta))
	content := contentRecord{Name: info.Name, IsDirectory: true, Priority: priority}
	_ = idx.kv.HSetRecord(ctx, keyContent(dir), marshal(content))
	if dir != corepath.Root {
		child := dirChild{Name: info.Name, IsDirectory: true, Parent: parent, Full: dir, Priority: priority}
		_ = idx.kv.HSet(ctx, keyDir(parent), info.Name, marshal(child))
	}

	if err := walkTree(idx.fs, dir, func(path string, info fsadapter.Info) error {
		if info.IsDir {
			return idx.refreshDirEntryOnly(ctx, path, info)
		}
		return idx.refreshSingle(ctx, path, info)
	}); err != nil {
		return err
	}

	idx.bus.Publish(events.Event{Kind: events.IndexChanged, Operation: "addDir", Path: dir, Tiers: []string{"meta", "content", "dir"}})
	return nil
}

func (idx *Index) refreshDirEntryOnly(ctx context.Context, path string, info fsadapter.Info) error {
	parent := corepath.Parent(path)
	priority := idx.aft.Priority(path)
	meta := metaRecord{Name: info.Name, IsDirectory: true, Exists: true, Priority: priority, LastAccess: time.Now()}
	_ = idx.kv.HSetRecord(ctx, keyMeta(path), marshal(meta))
	content := contentRecord{Name: info.Name, IsDirectory: true, Priority: priority}
	_ = idx.kv.HSetRecord(ctx, keyContent(path), marshal(content))
	child := dirChild{Name: info.Name, IsDirectory: true, Parent: parent, Full: path, Priority: priority}
	return idx.kv.HSet(ctx, keyDir(parent), info.Name, marshal(child))
}

// applyUnlink mirrors the watcher's unlink/unlinkDir handling (watch.go),
// used when RefreshPath discovers the path is already gone.
func (idx *Index) applyUnlink(ctx context.Context, path string) error {
	return idx.removeTree(ctx, path)
}
