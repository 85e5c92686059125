//go:build windows

package vault

import (
	"os"

	"github.com/avelhart/chronicle/internal/errors"
)

// openFileNoFollow falls back to a plain open on Windows, where O_NOFOLLOW
// is unavailable. The Lstat check before rename still rejects symlinked
// destinations.
func openFileNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(path, flag, perm)
}

// openFileNoFollowRead opens path read-only.
func openFileNoFollowRead(path string) (*os.File, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound(path)
		}
		return nil, errors.NewFile(path, err)
	}
	return file, nil
}
