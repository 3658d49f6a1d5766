//go:build !linux && !darwin

package fsadapter

import "os"

// ctimeOf has no portable equivalent on this platform (notably Windows,
// where file metadata exposes creation time rather than inode-change
// time); mtime is the closest available proxy.
func ctimeOf(fi os.FileInfo) int64 {
	return fi.ModTime().UnixNano()
}
