package queue

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"orchestra/internal/fileutil"
	"orchestra/internal/task"
)

const taskExt = ".md"

const filePerm fs.FileMode = 0o644

// Entry is one task file found by a directory scan. Exactly one of Record and
// Err is set; Err is a *task.ParseError or a *FilesystemError.
type Entry struct {
	Name   string
	Path   string
	Record *task.Record
	Err    error
}

// ListPending returns a snapshot of the queued directory sorted
// lexicographically by filename. Files that fail to load are returned with
// Err set so the caller can apply its policy.
func (s *Store) ListPending() ([]Entry, error) {
	return s.List(task.ClassQueued)
}

// List scans one location class.
func (s *Store) List(class task.Class) ([]Entry, error) {
	dir, err := s.Dir(class)
	if err != nil {
		return nil, err
	}
	names, err := taskNames(dir)
	if err != nil {
		return nil, fsErr("scan", dir, err)
	}
	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		entry := Entry{Name: name, Path: path}
		entry.Record, entry.Err = s.Load(path)
		entries = append(entries, entry)
	}
	return entries, nil
}

func taskNames(dir string) ([]string, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(dirEntries))
	for _, entry := range dirEntries {
		name := entry.Name()
		if !entry.Type().IsRegular() || strings.HasPrefix(name, ".") || fileutil.IsTemp(name) {
			continue
		}
		if !strings.EqualFold(filepath.Ext(name), taskExt) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Load reads and decodes one task file.
func (s *Store) Load(path string) (*task.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fsErr("read", path, err)
	}
	return task.Decode(path, data)
}

// Persist writes rec back to rec.Path atomically and stamps updated_at.
func (s *Store) Persist(rec *task.Record) error {
	if rec == nil || rec.Path == "" {
		return errors.New("persist: record has no path")
	}
	previous := rec.UpdatedAt
	rec.UpdatedAt = s.now().UTC()
	data, err := task.Encode(rec)
	if err != nil {
		rec.UpdatedAt = previous
		return err
	}
	if err := s.committed("persist", rec.Path, fileutil.WriteFileAtomic(rec.Path, data, filePerm)); err != nil {
		rec.UpdatedAt = previous
		return fsErr("persist", rec.Path, err)
	}
	return nil
}

// Create writes a new task into the queued directory. name is a bare file
// name; the .md extension is added when missing. An existing file is never
// overwritten.
func (s *Store) Create(name string, rec *task.Record) (*task.Record, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = &task.Record{}
	}
	rec.Path = filepath.Join(s.dirs.Queued, name)
	rec.ID = task.IDFromPath(name)
	if rec.Status == "" {
		rec.Status = task.StatusPending
	}
	now := s.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	data, err := task.Encode(rec)
	if err != nil {
		return nil, err
	}
	if err := s.committed("create", rec.Path, fileutil.CreateFileAtomic(rec.Path, data, filePerm)); err != nil {
		if errors.Is(err, fileutil.ErrExists) {
			return nil, fsErr("create", rec.Path, ErrCollision)
		}
		return nil, fsErr("create", rec.Path, err)
	}
	return rec, nil
}

// Locate finds a task by name in any location class.
func (s *Store) Locate(name string) (*task.Record, task.Class, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, "", err
	}
	for _, class := range task.AllClasses() {
		dir, _ := s.Dir(class)
		path := filepath.Join(dir, name)
		if _, err := os.Lstat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, "", fsErr("stat", path, err)
		}
		rec, err := s.Load(path)
		return rec, class, err
	}
	return nil, "", fmt.Errorf("task %q: %w", name, fs.ErrNotExist)
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid task name %q", name)
	}
	if !strings.EqualFold(filepath.Ext(name), taskExt) {
		name += taskExt
	}
	return name, nil
}
