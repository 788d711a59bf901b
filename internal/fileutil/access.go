//go:build unix

package fileutil

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// CheckDirAccess verifies path is a directory the process can list, read, and
// write.
func CheckDirAccess(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return fmt.Errorf("%s is not readable and writable: %w", path, err)
	}
	return nil
}
