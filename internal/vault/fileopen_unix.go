//go:build !windows

package vault

import (
	"fmt"
	"os"
	"syscall"

	"github.com/avelhart/chronicle/internal/errors"
)

// openFileNoFollow opens path with O_NOFOLLOW so a symlink planted at the
// note path cannot redirect the write elsewhere.
func openFileNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	fd, err := syscall.Open(path, flag|syscall.O_NOFOLLOW|syscall.O_CLOEXEC, uint32(perm))
	if err != nil {
		if err == syscall.ELOOP {
			return nil, fmt.Errorf("cannot write to symlink: %s", path)
		}
		return nil, err
	}
	return os.NewFile(uintptr(fd), path), nil
}

// openFileNoFollowRead opens path read-only, refusing symlinks.
func openFileNoFollowRead(path string) (*os.File, error) {
	fd, err := syscall.Open(path, syscall.O_RDONLY|syscall.O_NOFOLLOW|syscall.O_CLOEXEC, 0)
	if err != nil {
		if err == syscall.ELOOP {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot read symlink: %s", path))
		}
		if err == syscall.ENOENT {
			return nil, errors.NewNotFound(path)
		}
		return nil, errors.NewFile(path, err)
	}
	return os.NewFile(uintptr(fd), path), nil
}
