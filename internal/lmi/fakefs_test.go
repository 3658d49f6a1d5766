package lmi

import (
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/localidx/fsindex/internal/corepath"
	"github.com/localidx/fsindex/internal/fsadapter"
)

// fakeFS is a deterministic in-memory fsadapter.FS fixture, grounded on the
// teacher's own fstest fixture package: directories and files are kept in
// two maps keyed by cleaned paths ("." or "a/b"), files with their content.
type fakeFS struct {
	files map[string][]byte
	dirs  map[string]bool
	mtime time.Time
}

func newFakeFS() *fakeFS {
	return &fakeFS{
		files: make(map[string][]byte),
		dirs:  map[string]bool{corepath.Root: true},
		mtime: time.Unix(1700000000, 0),
	}
}

func (f *fakeFS) mkdir(path string) {
	f.dirs[corepath.Clean(path)] = true
}

func (f *fakeFS) writeFile(path string, content string) {
	f.files[corepath.Clean(path)] = []byte(content)
}

func (f *fakeFS) remove(path string) {
	path = corepath.Clean(path)
	delete(f.files, path)
	delete(f.dirs, path)
}

func (f *fakeFS) Root() string { return "/fake" }

func (f *fakeFS) ReadDir(dir string) ([]fsadapter.DirEntry, error) {
	dir = corepath.Clean(dir)
	if dir != corepath.Root && !f.dirs[dir] {
		return nil, fs.ErrNotExist
	}
	seen := make(map[string]bool)
	var out []fsadapter.DirEntry
	for p := range f.dirs {
		if p == corepath.Root || corepath.Parent(p) != dir {
			continue
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, fsadapter.DirEntry{Name: corepath.Base(p), IsDir: true})
		}
	}
	for p := range f.files {
		if corepath.Parent(p) != dir {
			continue
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, fsadapter.DirEntry{Name: corepath.Base(p), IsDir: false})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeFS) Lstat(path string) (fsadapter.Info, error) {
	path = corepath.Clean(path)
	if f.dirs[path] {
		return fsadapter.Info{Name: corepath.Base(path), IsDir: true, ModTime: f.mtime.UnixNano(), Mode: fs.ModeDir}, nil
	}
	if content, ok := f.files[path]; ok {
		return fsadapter.Info{
			Name: corepath.Base(path), IsDir: false, Size: int64(len(content)),
			ModTime: f.mtime.UnixNano(), CTime: f.mtime.UnixNano(), Mode: 0644,
		}, nil
	}
	return fsadapter.Info{}, fs.ErrNotExist
}

func (f *fakeFS) Stat(path string) (fsadapter.Info, error) { return f.Lstat(path) }

func (f *fakeFS) Access(path string) bool {
	path = corepath.Clean(path)
	_, isDir := f.dirs[path]
	_, isFile := f.files[path]
	return isDir || isFile || strings.HasPrefix(path, "/")
}
