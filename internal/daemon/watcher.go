package daemon

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"orchestra/internal/fileutil"
	"orchestra/internal/logging"
	"orchestra/internal/task"
)

// queueWatcher turns file events in the queued directory into debounced
// pass requests.
type queueWatcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	notify   func()
	logger   *slog.Logger
}

func newQueueWatcher(dir string, debounce time.Duration, notify func(), logger *slog.Logger) (*queueWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	return &queueWatcher{watcher: watcher, debounce: debounce, notify: notify, logger: logger}, nil
}

func (w *queueWatcher) run(ctx context.Context) {
	defer w.watcher.Close()
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !relevant(event) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.notify)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("directory watch error", logging.Error(err))
		}
	}
}

func relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return false
	}
	return isTaskName(filepath.Base(event.Name))
}

func isTaskName(name string) bool {
	if strings.HasPrefix(name, ".") || fileutil.IsTemp(name) {
		return false
	}
	return strings.EqualFold(filepath.Ext(name), ".md")
}

// hasNewWork reports whether the queued directory holds a task the last pass
// did not see, or one modified after it ended. Files the pass itself rewrote
// match neither, so its own writes never schedule another pass.
func (d *Daemon) hasNewWork() bool {
	entries, err := os.ReadDir(d.queuedDir)
	if err != nil {
		return true
	}
	d.mu.Lock()
	seen, passEnd := d.seen, d.passEnd
	d.mu.Unlock()
	for _, entry := range entries {
		if entry.IsDir() || !isTaskName(entry.Name()) {
			continue
		}
		if _, ok := seen[task.IDFromPath(entry.Name())]; !ok {
			return true
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(passEnd) {
			return true
		}
	}
	return false
}
