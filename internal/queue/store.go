package queue

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"orchestra/internal/config"
	"orchestra/internal/fileutil"
	"orchestra/internal/logging"
	"orchestra/internal/task"
)

// Dirs names the three location classes.
type Dirs struct {
	Queued    string
	Completed string
	Failed    string
}

// DirsFromConfig extracts the task directories from cfg.
func DirsFromConfig(cfg *config.Config) Dirs {
	return Dirs{
		Queued:    cfg.Paths.QueuedDir,
		Completed: cfg.Paths.CompletedDir,
		Failed:    cfg.Paths.FailedDir,
	}
}

// Store manages task files on disk.
type Store struct {
	dirs   Dirs
	now    func() time.Time
	logger *slog.Logger
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the timestamp source used for updated_at and created_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used for warnings that do not fail an operation.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logging.NewComponentLogger(logger, "queue")
		}
	}
}

// Open validates the directory layout. The queued directory must already
// exist; completed and failed are created when missing. Every directory must
// be readable and writable.
func Open(dirs Dirs, opts ...Option) (*Store, error) {
	if err := fileutil.CheckDirAccess(dirs.Queued); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = errors.New("queued directory does not exist")
		}
		return nil, &ConfigError{Key: "paths.queued_dir", Dir: dirs.Queued, Err: err}
	}
	for _, target := range []struct {
		key string
		dir string
	}{
		{"paths.completed_dir", dirs.Completed},
		{"paths.failed_dir", dirs.Failed},
	} {
		if err := os.MkdirAll(target.dir, 0o755); err != nil {
			return nil, &ConfigError{Key: target.key, Dir: target.dir, Err: err}
		}
		if err := fileutil.CheckDirAccess(target.dir); err != nil {
			return nil, &ConfigError{Key: target.key, Dir: target.dir, Err: err}
		}
	}

	store := &Store{dirs: dirs, now: time.Now, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// Dirs returns the directory layout.
func (s *Store) Dirs() Dirs {
	return s.dirs
}

// Dir returns the directory for a location class.
func (s *Store) Dir(class task.Class) (string, error) {
	switch class {
	case task.ClassQueued:
		return s.dirs.Queued, nil
	case task.ClassCompleted:
		return s.dirs.Completed, nil
	case task.ClassFailed:
		return s.dirs.Failed, nil
	default:
		return "", fmt.Errorf("unknown location class %q", class)
	}
}

// ClassOf returns the location class of the directory holding path.
func (s *Store) ClassOf(path string) (task.Class, bool) {
	dir := filepath.Clean(filepath.Dir(path))
	for _, class := range task.AllClasses() {
		classDir, _ := s.Dir(class)
		if filepath.Clean(classDir) == dir {
			return class, true
		}
	}
	return "", false
}

// committed logs and drops a directory sync failure that followed a
// successful rename. The rename is the commit point.
func (s *Store) committed(op, path string, err error) error {
	if err == nil || !errors.Is(err, fileutil.ErrDirSync) {
		return err
	}
	logging.WarnWithContext(s.logger, "task file written but directory sync failed", "dir_sync_failed",
		logging.String("op", op),
		logging.String("task_path", path),
		logging.Error(err),
		logging.String(logging.FieldImpact, "the change may not survive a power loss"),
	)
	return nil
}
