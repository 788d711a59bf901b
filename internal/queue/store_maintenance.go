package queue

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"orchestra/internal/task"
)

// ErrTaskRunning is returned when removing a task whose header says a pass is
// dispatching it.
var ErrTaskRunning = errors.New("task is running")

// HealthSummary describes aggregated counts per location class and the
// status breakdown of the queued directory.
type HealthSummary struct {
	Queued     int
	Completed  int
	Failed     int
	Unreadable int
	ByStatus   map[task.Status]int
}

// Total returns the number of task files across all classes.
func (h HealthSummary) Total() int {
	return h.Queued + h.Completed + h.Failed
}

// SuccessRate returns completed / (completed + failed) as a percentage, or
// zero when nothing has finished.
func (h HealthSummary) SuccessRate() float64 {
	finished := h.Completed + h.Failed
	if finished == 0 {
		return 0
	}
	return float64(h.Completed) * 100 / float64(finished)
}

// Stats scans every class and counts tasks. Queued tasks are further broken
// down by header status; files that fail to load count as unreadable.
func (s *Store) Stats() (HealthSummary, error) {
	summary := HealthSummary{ByStatus: make(map[task.Status]int)}
	for _, class := range task.AllClasses() {
		dir, _ := s.Dir(class)
		names, err := taskNames(dir)
		if err != nil {
			return HealthSummary{}, fsErr("scan", dir, err)
		}
		switch class {
		case task.ClassQueued:
			summary.Queued = len(names)
		case task.ClassCompleted:
			summary.Completed = len(names)
		case task.ClassFailed:
			summary.Failed = len(names)
		}
	}
	entries, err := s.ListPending()
	if err != nil {
		return HealthSummary{}, err
	}
	for _, entry := range entries {
		if entry.Err != nil {
			summary.Unreadable++
			continue
		}
		summary.ByStatus[entry.Record.Status]++
	}
	return summary, nil
}

// Remove deletes one task file and returns its path. An empty class searches
// every class in scan order. A running task is refused unless force is set.
func (s *Store) Remove(name string, class task.Class, force bool) (string, error) {
	name, err := normalizeName(name)
	if err != nil {
		return "", err
	}
	classes := task.AllClasses()
	if class != "" {
		if _, err := s.Dir(class); err != nil {
			return "", err
		}
		classes = []task.Class{class}
	}
	for _, c := range classes {
		dir, _ := s.Dir(c)
		path := filepath.Join(dir, name)
		if _, err := os.Lstat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return "", fsErr("stat", path, err)
		}
		if !force {
			// An unreadable file has no status to protect.
			if rec, err := s.Load(path); err == nil && rec.Status == task.StatusRunning {
				return "", fmt.Errorf("remove %s: %w", name, ErrTaskRunning)
			}
		}
		if err := os.Remove(path); err != nil {
			return "", fsErr("remove", path, err)
		}
		if err := s.committed("remove", path, syncDir(dir)); err != nil {
			return path, fsErr("remove", path, err)
		}
		return path, nil
	}
	return "", fmt.Errorf("task %q: %w", name, fs.ErrNotExist)
}

// Clear deletes every task file in the completed or failed directory and
// returns how many were removed. The queued directory cannot be cleared.
func (s *Store) Clear(class task.Class) (int, error) {
	if class != task.ClassCompleted && class != task.ClassFailed {
		return 0, fmt.Errorf("clear: only completed and failed can be cleared, not %q", class)
	}
	dir, _ := s.Dir(class)
	names, err := taskNames(dir)
	if err != nil {
		return 0, fsErr("scan", dir, err)
	}
	removed := 0
	var errs []error
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fsErr("remove", path, err))
			continue
		}
		removed++
	}
	if removed > 0 {
		if err := s.committed("clear", dir, syncDir(dir)); err != nil {
			errs = append(errs, fsErr("clear", dir, err))
		}
	}
	return removed, errors.Join(errs...)
}
