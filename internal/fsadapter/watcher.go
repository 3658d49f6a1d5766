package fsadapter

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/localidx/fsindex/internal/corelog"
)

// EventKind mirrors the filesystem watcher events spec.md §6 names.
type EventKind int

const (
	EventAdd EventKind = iota
	EventChange
	EventUnlink
	EventAddDir
	EventUnlinkDir
	EventError
)

// Event is one coalesced, debounced filesystem change.
type Event struct {
	Kind EventKind
	Path string // root-relative
	Err  error  // set when Kind == EventError
}

// Watcher recursively watches a root, translating raw fsnotify notifications
// into the debounced add/change/unlink/addDir/unlinkDir/error stream spec.md
// §4.1 describes. The structure — one goroutine pumping fsnotify events into
// a debounce map drained by a ticker — follows Yakitrak-obsidian-cli's
// pkg/cache/service.go watchLoop/markDirty/startStaleTicker, generalized
// from that package's single dirty-flag-per-path model to one that retains
// the event kind so LMI can dispatch add vs change vs unlink distinctly.
type Watcher struct {
	root    string
	ignore  []string
	debounce time.Duration

	fsw    *fsnotify.Watcher
	events chan Event

	mu      sync.Mutex
	pending map[string]pendingEvent
	watched map[string]struct{}

	closeOnce sync.Once
	done      chan struct{}
}

type pendingEvent struct {
	kind EventKind
	at   time.Time
}

// NewWatcher creates a recursive watcher rooted at root. Ignore patterns are
// matched against the basename at any depth (node_modules, .git, *.log,
// temp, dist, and dotfiles per spec.md §4.1).
func NewWatcher(root string, ignore []string, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:     filepath.Clean(root),
		ignore:   ignore,
		debounce: debounce,
		fsw:      fsw,
		events:   make(chan Event, 256),
		pending:  make(map[string]pendingEvent),
		watched:  make(map[string]struct{}),
		done:     make(chan struct{}),
	}
	if err := w.addRecursive(w.root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	go w.pump()
	go w.flushLoop()
	return w, nil
}

// Events returns the debounced event stream.
func (w *Watcher) Events() <-chan Event { return w.events }

// Close stops the watcher.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
	})
	return err
}

func (w *Watcher) shouldIgnore(absPath string) bool {
	rel, rerr := filepath.Rel(w.root, absPath)
	if rerr != nil {
		return false
	}
	for _, seg := range strings.Split(rel, string(filepath.Separator)) {
		if seg == "" || seg == "." {
			continue
		}
		if strings.HasPrefix(seg, ".") {
			return true
		}
		for _, pat := range w.ignore {
			if ok, _ := filepath.Match(pat, seg); ok {
				return true
			}
		}
	}
	return false
}

func (w *Watcher) addRecursive(dir string) error {
	if w.shouldIgnore(dir) {
		return nil
	}
	w.mu.Lock()
	if _, ok := w.watched[dir]; ok {
		w.mu.Unlock()
		return nil
	}
	w.watched[dir] = struct{}{}
	w.mu.Unlock()

	if err := w.fsw.Add(dir); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		// Directory vanished between discovery and watch; not fatal.
		return nil
	}
	for _, e := range entries {
		if e.IsDir() {
			_ = w.addRecursive(filepath.Join(dir, e.Name()))
		}
	}
	return nil
}

func (w *Watcher) dropWatch(absPath string) {
	w.mu.Lock()
	delete(w.watched, absPath)
	w.mu.Unlock()
	_ = w.fsw.Remove(absPath)
}

// pump translates raw fsnotify notifications into pending, debounced
// entries. A later event for the same path simply updates the pending
// kind/timestamp — write-stability debounce as described in spec.md §4.1.
func (w *Watcher) pump() {
	for {
		select {
		case <-w.done:
			return
		case evt, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.shouldIgnore(evt.Name) {
				continue
			}
			w.handleRaw(evt)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			corelog.Warnf("watcher", "fsnotify error: %v", err)
			select {
			case w.events <- Event{Kind: EventError, Err: err}:
			default:
			}
		}
	}
}

func (w *Watcher) handleRaw(evt fsnotify.Event) {
	isDir := false
	if info, err := os.Lstat(evt.Name); err == nil {
		isDir = info.IsDir()
	}

	var kind EventKind
	switch {
	case evt.Op&fsnotify.Create == fsnotify.Create:
		if isDir {
			_ = w.addRecursive(evt.Name)
			kind = EventAddDir
		} else {
			kind = EventAdd
		}
	case evt.Op&fsnotify.Write == fsnotify.Write:
		kind = EventChange
	case evt.Op&fsnotify.Remove == fsnotify.Remove, evt.Op&fsnotify.Rename == fsnotify.Rename:
		w.dropWatch(evt.Name)
		// We can no longer stat a removed path to know dir-ness; the LMI
		// watcher handler treats Unlink/UnlinkDir uniformly, always also
		// cascading under path/, so this default is safe.
		kind = EventUnlink
	default:
		return
	}

	w.mu.Lock()
	w.pending[evt.Name] = pendingEvent{kind: kind, at: time.Now()}
	w.mu.Unlock()
}

// flushLoop periodically promotes debounced-stable pending events to the
// public Events channel.
func (w *Watcher) flushLoop() {
	tick := w.debounce / 2
	if tick <= 0 {
		tick = 50 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.flushStable()
		}
	}
}

func (w *Watcher) flushStable() {
	now := time.Now()
	type ready struct {
		path string
		kind EventKind
	}
	var due []ready

	w.mu.Lock()
	for p, pe := range w.pending {
		if now.Sub(pe.at) >= w.debounce {
			due = append(due, ready{path: p, kind: pe.kind})
		}
	}
	for _, r := range due {
		delete(w.pending, r.path)
	}
	w.mu.Unlock()

	for _, r := range due {
		rel, err := filepath.Rel(w.root, r.path)
		if err != nil {
			continue
		}
		w.events <- Event{Kind: r.kind, Path: filepath.ToSlash(rel)}
	}
}
