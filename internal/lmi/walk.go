package lmi

import (
	"io/fs"

	"github.com/localidx/fsindex/internal/corelog"
	"github.com/localidx/fsindex/internal/corepath"
	"github.com/localidx/fsindex/internal/fsadapter"
)

// visitFunc is called for every qualifying descendant of the walked
// directory. Returning an error aborts the remainder of the walk; a
// visitFunc wanting to skip just that entry without aborting should
// return nil.
type visitFunc func(path string, info fsadapter.Info) error

// walkTree recursively visits every regular file and directory under root
// (root-relative path, "." for the watched root itself), in the filtering
// rules of spec.md §4.1: symlinks are skipped outright, anything that is
// neither file nor directory is skipped, permission-denied entries are
// skipped silently, and other stat errors are logged without aborting.
func walkTree(fsys fsadapter.FS, root string, visit visitFunc) error {
	entries, err := fsys.ReadDir(root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		childPath := corepath.Join(root, e.Name)

		info, err := fsys.Lstat(childPath)
		if err != nil {
			corelog.Debugf("scan", "lstat %q: %v", childPath, err)
			continue
		}

		if info.Mode&fs.ModeSymlink != 0 {
			continue
		}
		if !info.IsDir && !info.Mode.IsRegular() {
			continue
		}
		if !fsys.Access(childPath) {
			continue
		}

		if err := visit(childPath, info); err != nil {
			return err
		}

		if info.IsDir {
			if err := walkTree(fsys, childPath, visit); err != nil {
				return err
			}
		}
	}
	return nil
}
