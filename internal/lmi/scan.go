package lmi

import (
	"context"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	stdmime "mime"

	"github.com/localidx/fsindex/internal/config"
	"github.com/localidx/fsindex/internal/corelog"
	"github.com/localidx/fsindex/internal/corepath"
	"github.com/localidx/fsindex/internal/fsadapter"
)

// ErrAborted is the tagged "aborted" failure a cancelled scan returns, which
// callers may swallow when cancellation is expected (spec.md §4.1).
var ErrAborted = errors.New("lmi: scan aborted")

// slicer enforces one phase's slice budget and yield granularity,
// cooperatively yielding control and checking for cancellation — the Go
// realization of the "event loop with periodic timers" DESIGN NOTES §9
// calls for: a suspension point at the end of each time slice and every N
// entries.
type slicer struct {
	budget     time.Duration
	yieldEvery int

	sliceStart time.Time
	sinceYield int
}

func newSlicer(phase config.ScanPhase) *slicer {
	return &slicer{budget: phase.SliceBudget, yieldEvery: phase.YieldEvery, sliceStart: time.Now()}
}

// tick is called once per processed entry. It returns ErrAborted if ctx was
// cancelled at this suspension point.
func (s *slicer) tick(ctx context.Context) error {
	s.sinceYield++
	if s.sinceYield >= s.yieldEvery || time.Since(s.sliceStart) >= s.budget {
		s.sinceYield = 0
		s.sliceStart = time.Now()
		runtime.Gosched()
		select {
		case <-ctx.Done():
			return ErrAborted
		default:
		}
	}
	return nil
}

// extensionAndMIME derives the lowercased extension (including the dot, or
// empty for directories) and a best-effort MIME type from the extension
// alone — this is metadata indexing, not content indexing (spec.md §1
// Non-goals), so no file body is read here. stdlib mime.TypeByExtension is
// the right tool for a pure extension table; gabriel-vasile/mimetype is a
// content sniffer and is instead used through sniffMIME for the rarer
// case of an unmapped extension on the single-file refresh path
// (refreshSingle in lmi.go), not during the bulk progressive scan.
func extensionAndMIME(path string, isDir bool) (ext, mimeType string) {
	if isDir {
		return "", ""
	}
	ext = strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return "", "application/octet-stream"
	}
	if t := stdmime.TypeByExtension(ext); t != "" {
		return ext, t
	}
	return ext, "application/octet-stream"
}

// sniffMIME content-sniffs absPath when the extension table has nothing,
// capping the read to mimetype's own default header size.
func sniffMIME(absPath string) (string, error) {
	m, err := mimetype.DetectFile(absPath)
	if err != nil {
		return "", err
	}
	return m.String(), nil
}

// InitialScan runs the three-phase progressive scan described in spec.md
// §4.1: each phase re-walks the root and writes one tier, yielding between
// entries per its slice budget. It is safe to call only once per Index.
func (idx *Index) InitialScan(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	idx.scanMu.Lock()
	idx.scanCancel = cancel
	idx.scanMu.Unlock()
	defer func() {
		idx.scanMu.Lock()
		idx.scanCancel = nil
		idx.scanMu.Unlock()
	}()

	if err := idx.scanPhaseMeta(ctx); err != nil {
		return err
	}
	if err := idx.scanPhaseContent(ctx); err != nil {
		return err
	}
	if err := idx.scanPhaseDir(ctx); err != nil {
		return err
	}
	return nil
}

func (idx *Index) scanPhaseMeta(ctx context.Context) error {
	sl := newSlicer(idx.cfg.ScanPhases[0])
	return walkTree(idx.fs, corepath.Root, func(path string, info fsadapter.Info) error {
		if err := sl.tick(ctx); err != nil {
			return err
		}
		rec := metaRecord{
			Name:        info.Name,
			IsDirectory: info.IsDir,
			Exists:      true,
			Priority:    idx.aft.Priority(path),
			LastAccess:  time.Now(),
		}
		if err := idx.kv.HSetRecord(ctx, keyMeta(path), marshal(rec)); err != nil {
			corelog.Warnf("scan", "meta write %q: %v", path, err)
		}
		return nil
	})
}

func (idx *Index) scanPhaseContent(ctx context.Context) error {
	sl := newSlicer(idx.cfg.ScanPhases[1])
	return walkTree(idx.fs, corepath.Root, func(path string, info fsadapter.Info) error {
		if err := sl.tick(ctx); err != nil {
			return err
		}
		ext, mime := extensionAndMIME(path, info.IsDir)
		rec := contentRecord{
			Name:        info.Name,
			IsDirectory: info.IsDir,
			Size:        info.Size,
			ModTime:     time.Unix(0, info.ModTime),
			CTime:       time.Unix(0, info.CTime),
			Extension:   ext,
			MIME:        mime,
			Priority:    idx.aft.Priority(path),
		}
		if err := idx.kv.HSetRecord(ctx, keyContent(path), marshal(rec)); err != nil {
			corelog.Warnf("scan", "content write %q: %v", path, err)
		}
		return nil
	})
}

func (idx *Index) scanPhaseDir(ctx context.Context) error {
	sl := newSlicer(idx.cfg.ScanPhases[2])
	return walkTree(idx.fs, corepath.Root, func(path string, info fsadapter.Info) error {
		if err := sl.tick(ctx); err != nil {
			return err
		}
		parent := corepath.Parent(path)
		child := dirChild{
			Name:        info.Name,
			IsDirectory: info.IsDir,
			Size:        info.Size,
			ModTime:     time.Unix(0, info.ModTime),
			CTime:       time.Unix(0, info.CTime),
			Parent:      parent,
			Full:        path,
			Priority:    idx.aft.Priority(path),
		}
		if err := idx.kv.HSet(ctx, keyDir(parent), info.Name, marshal(child)); err != nil {
			corelog.Warnf("scan", "dir write %q: %v", path, err)
		}
		return nil
	})
}

// AbortScanning cooperatively cancels an in-flight initial or refresh scan.
func (idx *Index) AbortScanning() {
	idx.scanMu.Lock()
	cancel := idx.scanCancel
	idx.scanMu.Unlock()
	if cancel != nil {
		cancel()
	}
}
