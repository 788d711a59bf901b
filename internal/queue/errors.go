package queue

import (
	"errors"
	"fmt"

	"orchestra/internal/services"
)

// ErrCollision is returned when a relocation or create would overwrite a file
// that already exists in the destination directory.
var ErrCollision = errors.New("destination already holds a task with this name")

// ConfigError reports an unusable directory layout. It is fatal: no task may
// be processed until it is fixed.
type ConfigError struct {
	Key string
	Dir string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Key, e.Dir, e.Err)
}

func (e *ConfigError) Unwrap() []error {
	return []error{services.ErrConfiguration, e.Err}
}

// ErrorKind classifies the error for logging.
func (e *ConfigError) ErrorKind() string { return "config" }

// FilesystemError reports a failed read, write, or move of a single task. The
// task stays where it was.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() []error {
	return []error{services.ErrFilesystem, e.Err}
}

// ErrorKind classifies the error for logging.
func (e *FilesystemError) ErrorKind() string {
	if errors.Is(e.Err, ErrCollision) {
		return "collision"
	}
	return "filesystem"
}

func fsErr(op, path string, err error) error {
	return &FilesystemError{Op: op, Path: path, Err: err}
}
