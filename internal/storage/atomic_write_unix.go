//go:build !windows

package storage

import "os"

// renameReplace is os.Rename, which already replaces atomically on POSIX.
func renameReplace(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}
