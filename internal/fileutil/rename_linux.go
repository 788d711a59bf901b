//go:build linux

package fileutil

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// RenameNoReplace moves oldPath to newPath, failing with ErrExists instead of
// overwriting. On Linux the check and the move are one renameat2 call.
func RenameNoReplace(oldPath, newPath string) error {
	err := unix.Renameat2(unix.AT_FDCWD, oldPath, unix.AT_FDCWD, newPath, unix.RENAME_NOREPLACE)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.EEXIST):
		return fmt.Errorf("rename %s: %w", newPath, ErrExists)
	case errors.Is(err, unix.ENOSYS), errors.Is(err, unix.EINVAL):
		// Kernel or filesystem without RENAME_NOREPLACE.
		return renameChecked(oldPath, newPath)
	default:
		return fmt.Errorf("rename %s: %w", oldPath, err)
	}
}
