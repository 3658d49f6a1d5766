package lmi

import (
	"context"

	"github.com/localidx/fsindex/internal/corelog"
	"github.com/localidx/fsindex/internal/corepath"
	"github.com/localidx/fsindex/internal/events"
	"github.com/localidx/fsindex/internal/fsadapter"
)

// watchLoop drains the filesystem watcher's debounced event stream and
// applies each one to the three tiers, per spec.md §4.1's watcher event
// mapping. It runs for the lifetime of the Index; Close stops it by closing
// watchDone, which the select below observes once any event in progress
// has been applied.
func (idx *Index) watchLoop() {
	ctx := context.Background()
	for {
		select {
		case <-idx.watchDone:
			return
		case evt, ok := <-idx.watcher.Events():
			if !ok {
				return
			}
			idx.applyWatchEvent(ctx, evt)
		}
	}
}

func (idx *Index) applyWatchEvent(ctx context.Context, evt fsadapter.Event) {
	switch evt.Kind {
	case fsadapter.EventAdd, fsadapter.EventChange:
		info, err := idx.fs.Lstat(evt.Path)
		if err != nil {
			// Gone again before we got to it; treat as unlink.
			if rerr := idx.removeTree(ctx, evt.Path); rerr != nil {
				corelog.Warnf("lmi", "unlink-on-missing %q: %v", evt.Path, rerr)
			}
			return
		}
		if err := idx.refreshSingle(ctx, evt.Path, info); err != nil {
			corelog.Warnf("lmi", "refresh %q: %v", evt.Path, err)
		}

	case fsadapter.EventAddDir:
		if err := idx.refreshDir(ctx, evt.Path); err != nil {
			corelog.Warnf("lmi", "refresh dir %q: %v", evt.Path, err)
		}

	case fsadapter.EventUnlink, fsadapter.EventUnlinkDir:
		if err := idx.removeTree(ctx, evt.Path); err != nil {
			corelog.Warnf("lmi", "remove %q: %v", evt.Path, err)
		}

	case fsadapter.EventError:
		// The watcher keeps running; the index stays as coherent as the
		// last successful scan/refresh left it (spec.md §7).
		corelog.Warnf("lmi", "watcher error: %v", evt.Err)
	}
}

// removeTree implements the unlink/unlinkDir deletion cascade (spec.md §3
// Lifecycle): drop path's own Meta/Content/Dir keys, drop its field from its
// parent's Dir hash, and — since a removed path's prior dir-ness may not be
// knowable from a bare Remove/Rename fsnotify op — cascade-delete anything
// filed under path/ in all three tiers too. Deleting a key or field that
// never existed (the file case) is a no-op.
func (idx *Index) removeTree(ctx context.Context, path string) error {
	path = corepath.Clean(path)
	parent := corepath.Parent(path)

	if err := idx.kv.Del(ctx, keyMeta(path)); err != nil {
		corelog.Warnf("lmi", "delete meta %q: %v", path, err)
	}
	if err := idx.kv.Del(ctx, keyContent(path)); err != nil {
		corelog.Warnf("lmi", "delete content %q: %v", path, err)
	}
	if err := idx.kv.Del(ctx, keyDir(path)); err != nil {
		corelog.Warnf("lmi", "delete dir %q: %v", path, err)
	}

	if name := pathBase(path); name != "" {
		if err := idx.kv.HDel(ctx, keyDir(parent), name); err != nil {
			corelog.Warnf("lmi", "remove dir entry %q from %q: %v", name, parent, err)
		}
	}

	subtree := path + "/"
	for _, prefix := range []string{"meta:" + subtree, "content:" + subtree, "dir:" + subtree} {
		if err := idx.kv.ScanPrefixDelete(ctx, prefix); err != nil {
			corelog.Warnf("lmi", "cascade delete %q: %v", prefix, err)
		}
	}

	idx.aft.Purge(path)

	idx.bus.Publish(events.Event{
		Kind:      events.IndexChanged,
		Operation: "unlink",
		Path:      path,
		Tiers:     []string{"meta", "content", "dir"},
	})
	return nil
}

func pathBase(path string) string {
	if path == corepath.Root {
		return ""
	}
	return corepath.Base(path)
}
