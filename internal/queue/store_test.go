package queue_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"orchestra/internal/queue"
	"orchestra/internal/services"
	"orchestra/internal/task"
	"orchestra/internal/testsupport"
)

const pendingTask = `---
status: pending
model: llama3
---
Summarize the report.
`

func TestOpenRequiresQueuedDirectory(t *testing.T) {
	base := t.TempDir()
	_, err := queue.Open(queue.Dirs{
		Queued:    filepath.Join(base, "missing"),
		Completed: filepath.Join(base, "completed"),
		Failed:    filepath.Join(base, "failed"),
	})
	var cfgErr *queue.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration marker, got %v", err)
	}
	if cfgErr.Key != "paths.queued_dir" {
		t.Fatalf("unexpected key %q", cfgErr.Key)
	}
}

func TestOpenCreatesCompletedAndFailed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.MustOpenStore(t, cfg)

	testsupport.AssertExists(t, cfg.Paths.CompletedDir)
	testsupport.AssertExists(t, cfg.Paths.FailedDir)
}

func TestListPendingIsSortedAndSkipsNonTasks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	queued := cfg.Paths.QueuedDir

	testsupport.WriteTask(t, queued, "b.md", pendingTask)
	testsupport.WriteTask(t, queued, "a.md", pendingTask)
	testsupport.WriteTask(t, queued, "10-c.md", pendingTask)
	testsupport.WriteTask(t, queued, "notes.txt", "ignore me")
	testsupport.WriteTask(t, queued, ".hidden.md", pendingTask)
	testsupport.WriteTask(t, queued, ".orchestra-tmp123.md", pendingTask)
	if err := os.Mkdir(filepath.Join(queued, "dir.md"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	entries, err := store.ListPending()
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name)
	}
	want := []string{"10-c.md", "a.md", "b.md"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
}

func TestListPendingReportsParseErrorsPerEntry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	testsupport.WriteTask(t, cfg.Paths.QueuedDir, "good.md", pendingTask)
	testsupport.WriteTask(t, cfg.Paths.QueuedDir, "bad.md", "---\nstatus: [unclosed\n---\nbody\n")

	entries, err := store.ListPending()
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	bad, good := entries[0], entries[1]
	var parseErr *task.ParseError
	if !errors.As(bad.Err, &parseErr) || bad.Record != nil {
		t.Fatalf("expected parse error for bad.md, got %+v", bad)
	}
	if good.Err != nil || good.Record == nil {
		t.Fatalf("expected good.md to load, got %+v", good)
	}
}

func TestPersistStampsUpdatedAtAndKeepsBody(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	path := testsupport.WriteTask(t, cfg.Paths.QueuedDir, "t.md", pendingTask)

	rec, err := store.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	rec.Status = task.StatusRunning
	if err := store.Persist(rec); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	reloaded := testsupport.ReadTask(t, path)
	if reloaded.Status != task.StatusRunning {
		t.Fatalf("expected running, got %s", reloaded.Status)
	}
	if !reloaded.UpdatedAt.Equal(testsupport.FixedTime) {
		t.Fatalf("unexpected updated_at %v", reloaded.UpdatedAt)
	}
	if string(reloaded.Body) != "Summarize the report.\n" {
		t.Fatalf("body changed: %q", reloaded.Body)
	}
}

func TestRelocateMovesFileAndRefusesCollision(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	path := testsupport.WriteTask(t, cfg.Paths.QueuedDir, "t.md", pendingTask)

	rec, err := store.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := store.Relocate(rec, task.ClassCompleted); err != nil {
		t.Fatalf("Relocate: %v", err)
	}
	want := filepath.Join(cfg.Paths.CompletedDir, "t.md")
	if rec.Path != want {
		t.Fatalf("expected path %s, got %s", want, rec.Path)
	}
	testsupport.AssertMissing(t, path)
	testsupport.AssertExists(t, want)

	second := testsupport.WriteTask(t, cfg.Paths.QueuedDir, "t.md", pendingTask)
	again, err := store.Load(second)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	err = store.Relocate(again, task.ClassCompleted)
	if !errors.Is(err, queue.ErrCollision) {
		t.Fatalf("expected collision, got %v", err)
	}
	if services.Kind(err) != "collision" {
		t.Fatalf("expected collision kind, got %q", services.Kind(err))
	}
	if again.Path != second {
		t.Fatalf("path should be unchanged on collision, got %s", again.Path)
	}
	testsupport.AssertExists(t, second)
}

func TestCreateNeverOverwrites(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	rec, err := store.Create("follow-up", &task.Record{Body: []byte("Next step.\n"), Workspace: "evaluator"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.Status != task.StatusPending || rec.ID != "follow-up" {
		t.Fatalf("unexpected record %+v", rec)
	}
	onDisk := testsupport.ReadTask(t, filepath.Join(cfg.Paths.QueuedDir, "follow-up.md"))
	if onDisk.Workspace != "evaluator" || !onDisk.CreatedAt.Equal(testsupport.FixedTime) {
		t.Fatalf("unexpected file content %+v", onDisk)
	}

	if _, err := store.Create("follow-up.md", &task.Record{Body: []byte("other")}); !errors.Is(err, queue.ErrCollision) {
		t.Fatalf("expected collision, got %v", err)
	}
	if _, err := store.Create("../escape", &task.Record{}); err == nil {
		t.Fatal("expected invalid name error")
	}
}

func TestRequeueResetsFailedTask(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	failed := "---\nstatus: failed\nattempts: 2\nerror: dispatch timeout\nresponse: partial\n---\nRetry me.\n"
	testsupport.WriteTask(t, cfg.Paths.FailedDir, "r.md", failed)

	rec, err := store.Requeue("r")
	if err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	want := filepath.Join(cfg.Paths.QueuedDir, "r.md")
	if rec.Path != want {
		t.Fatalf("expected %s, got %s", want, rec.Path)
	}
	onDisk := testsupport.ReadTask(t, want)
	if onDisk.Status != task.StatusPending || onDisk.Error != "" || onDisk.Attempts != 0 || onDisk.Response != nil {
		t.Fatalf("expected reset task, got %+v", onDisk)
	}
	testsupport.AssertMissing(t, filepath.Join(cfg.Paths.FailedDir, "r.md"))

	if _, err := store.Requeue("r"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not-exist for second requeue, got %v", err)
	}
}

func TestLocateSearchesEveryClass(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.WriteTask(t, cfg.Paths.CompletedDir, "done.md", "---\nstatus: complete\n---\nok\n")

	rec, class, err := store.Locate("done")
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if class != task.ClassCompleted || rec.Status != task.StatusComplete {
		t.Fatalf("unexpected result class=%s status=%s", class, rec.Status)
	}
	if _, _, err := store.Locate("nope"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not-exist, got %v", err)
	}
}

func TestStatsCountsClassesAndStatuses(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.WriteTask(t, cfg.Paths.QueuedDir, "a.md", pendingTask)
	testsupport.WriteTask(t, cfg.Paths.QueuedDir, "b.md", "---\nstatus: incomplete\n---\nx\n")
	testsupport.WriteTask(t, cfg.Paths.QueuedDir, "c.md", "---\nstatus: bogus\n---\nx\n")
	testsupport.WriteTask(t, cfg.Paths.CompletedDir, "d.md", "---\nstatus: complete\n---\nx\n")
	testsupport.WriteTask(t, cfg.Paths.CompletedDir, "e.md", "---\nstatus: complete\n---\nx\n")
	testsupport.WriteTask(t, cfg.Paths.FailedDir, "f.md", "---\nstatus: failed\n---\nx\n")

	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Queued != 3 || stats.Completed != 2 || stats.Failed != 1 || stats.Unreadable != 1 {
		t.Fatalf("unexpected counts %+v", stats)
	}
	if stats.ByStatus[task.StatusPending] != 1 || stats.ByStatus[task.StatusIncomplete] != 1 {
		t.Fatalf("unexpected status breakdown %v", stats.ByStatus)
	}
	if stats.Total() != 6 {
		t.Fatalf("expected total 6, got %d", stats.Total())
	}
	if rate := stats.SuccessRate(); rate < 66.6 || rate > 66.7 {
		t.Fatalf("unexpected success rate %f", rate)
	}
}

func TestRemoveDeletesTaskAndRefusesRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.WriteTask(t, cfg.Paths.FailedDir, "old.md", "---\nstatus: failed\n---\nGone.\n")
	running := testsupport.WriteTask(t, cfg.Paths.QueuedDir, "busy.md", "---\nstatus: running\n---\nIn flight.\n")
	testsupport.WriteTask(t, cfg.Paths.CompletedDir, "keep.md", "---\nstatus: complete\n---\nStays.\n")

	path, err := store.Remove("old", "", false)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if path != filepath.Join(cfg.Paths.FailedDir, "old.md") {
		t.Fatalf("unexpected removed path %s", path)
	}
	testsupport.AssertMissing(t, path)

	if _, err := store.Remove("keep", task.ClassFailed, false); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not-exist outside the requested class, got %v", err)
	}
	testsupport.AssertExists(t, filepath.Join(cfg.Paths.CompletedDir, "keep.md"))

	if _, err := store.Remove("busy", task.ClassQueued, false); !errors.Is(err, queue.ErrTaskRunning) {
		t.Fatalf("expected ErrTaskRunning, got %v", err)
	}
	testsupport.AssertExists(t, running)
	if _, err := store.Remove("busy", task.ClassQueued, true); err != nil {
		t.Fatalf("forced Remove: %v", err)
	}
	testsupport.AssertMissing(t, running)
}

func TestClearEmptiesFinishedClassesOnly(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.WriteTask(t, cfg.Paths.FailedDir, "a.md", "---\nstatus: failed\n---\nA\n")
	testsupport.WriteTask(t, cfg.Paths.FailedDir, "b.md", "---\nstatus: failed\n---\nB\n")
	queued := testsupport.WriteTask(t, cfg.Paths.QueuedDir, "c.md", pendingTask)

	removed, err := store.Clear(task.ClassFailed)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if removed != 2 || len(testsupport.TaskNames(t, cfg.Paths.FailedDir)) != 0 {
		t.Fatalf("expected failed directory emptied, removed=%d", removed)
	}
	if _, err := store.Clear(task.ClassQueued); err == nil {
		t.Fatal("expected clearing the queued directory to be refused")
	}
	testsupport.AssertExists(t, queued)
}
