package queue

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"orchestra/internal/fileutil"
	"orchestra/internal/task"
)

var syncDir = fileutil.SyncDir

// Relocate moves rec's file into the directory for class, keeping its file
// name. A name collision returns a *FilesystemError wrapping ErrCollision and
// leaves the file where it was. rec.Path is updated only on success.
func (s *Store) Relocate(rec *task.Record, class task.Class) error {
	if rec == nil || rec.Path == "" {
		return errors.New("relocate: record has no path")
	}
	dest, err := s.RelocatePath(rec.Path, class)
	if err != nil {
		return err
	}
	rec.Path = dest
	return nil
}

// RelocatePath moves the file at path into the directory for class without
// reading it. It is used for files that cannot be decoded.
func (s *Store) RelocatePath(path string, class task.Class) (string, error) {
	dir, err := s.Dir(class)
	if err != nil {
		return "", err
	}
	dest := filepath.Join(dir, filepath.Base(path))
	if filepath.Clean(dest) == filepath.Clean(path) {
		return dest, nil
	}
	if err := fileutil.RenameNoReplace(path, dest); err != nil {
		if errors.Is(err, fileutil.ErrExists) {
			return "", fsErr("relocate", path, fmt.Errorf("%w: %s", ErrCollision, dest))
		}
		return "", fsErr("relocate", path, err)
	}
	syncErr := errors.Join(syncDir(dir), syncDir(filepath.Dir(path)))
	if err := s.committed("relocate", dest, syncErr); err != nil {
		return dest, fsErr("relocate", dest, err)
	}
	return dest, nil
}

// Requeue sends a failed task back to the queued directory as pending with
// its error, response, and attempt count cleared. The reset is persisted
// before the move; a crash in between leaves a pending task in failed that a
// second Requeue picks up.
func (s *Store) Requeue(name string) (*task.Record, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(s.dirs.Failed, name)
	if _, err := os.Lstat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("task %q is not in the failed directory: %w", name, fs.ErrNotExist)
		}
		return nil, fsErr("stat", path, err)
	}
	rec, err := s.Load(path)
	if err != nil {
		return nil, err
	}
	rec.Status = task.StatusPending
	rec.Error = ""
	rec.Response = nil
	rec.Attempts = 0
	rec.RunID = ""
	if err := s.Persist(rec); err != nil {
		return nil, err
	}
	if err := s.Relocate(rec, task.ClassQueued); err != nil {
		return nil, err
	}
	return rec, nil
}
