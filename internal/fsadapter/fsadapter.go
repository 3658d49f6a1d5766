// Package fsadapter is the thin local-filesystem wrapper the core consumes
// (spec.md §6): list, stat, access and lstat, plus a watcher. spec.md
// treats this wrapper itself as out of scope ("the trivial local-filesystem
// wrapper" is named as an external collaborator); what belongs to the core
// is the FS interface the rest of LMI programs against, so that is what
// this package centers, with an os-backed implementation to make the
// module runnable end to end.
package fsadapter

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/localidx/fsindex/internal/corepath"
)

// Info is the subset of os.FileInfo the core needs, kept small so fakes in
// tests don't have to satisfy the whole interface.
type Info struct {
	Name    string
	IsDir   bool
	Size    int64
	ModTime int64 // unix nano
	CTime   int64 // unix nano; best-effort, platform dependent
	Mode    fs.FileMode
}

// DirEntry is one child returned by ReadDir, avoiding a second stat for the
// common case where the entry type is already known.
type DirEntry struct {
	Name  string
	IsDir bool
}

// FS is the filesystem read boundary LMI consumes.
type FS interface {
	// ReadDir lists the immediate children of dir (root-relative path).
	ReadDir(dir string) ([]DirEntry, error)
	// Lstat stats a path without following a trailing symlink.
	Lstat(path string) (Info, error)
	// Stat stats a path, following symlinks.
	Stat(path string) (Info, error)
	// Access reports whether path is readable.
	Access(path string) bool
	// Root returns the absolute filesystem root this FS wraps.
	Root() string
}

// Local is an os-backed FS rooted at a directory.
type Local struct {
	root string
}

// NewLocal constructs a Local FS rooted at root.
func NewLocal(root string) *Local {
	return &Local{root: filepath.Clean(root)}
}

func (l *Local) Root() string { return l.root }

func (l *Local) abs(relPath string) string {
	if relPath == corepath.Root {
		return l.root
	}
	return filepath.Join(l.root, relPath)
}

func (l *Local) ReadDir(dir string) ([]DirEntry, error) {
	entries, err := os.ReadDir(l.abs(dir))
	if err != nil {
		return nil, err
	}
	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, DirEntry{Name: e.Name(), IsDir: e.IsDir()})
	}
	return out, nil
}

func (l *Local) Lstat(path string) (Info, error) {
	fi, err := os.Lstat(l.abs(path))
	if err != nil {
		return Info{}, err
	}
	return toInfo(fi), nil
}

func (l *Local) Stat(path string) (Info, error) {
	fi, err := os.Stat(l.abs(path))
	if err != nil {
		return Info{}, err
	}
	return toInfo(fi), nil
}

func (l *Local) Access(path string) bool {
	f, err := os.Open(l.abs(path))
	if err != nil {
		return !os.IsPermission(err) && !os.IsNotExist(err)
	}
	_ = f.Close()
	return true
}

func toInfo(fi os.FileInfo) Info {
	return Info{
		Name:    fi.Name(),
		IsDir:   fi.IsDir(),
		Size:    fi.Size(),
		ModTime: fi.ModTime().UnixNano(),
		CTime:   ctimeOf(fi),
		Mode:    fi.Mode(),
	}
}
