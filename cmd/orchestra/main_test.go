package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"orchestra/internal/daemon"
	"orchestra/internal/task"
	"orchestra/internal/testsupport"
)

type cliTestEnv struct {
	baseDir    string
	queuedDir  string
	failedDir  string
	doneDir    string
	configPath string

	mu      sync.Mutex
	prompts []string
}

func (e *cliTestEnv) recordedPrompts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.prompts...)
}

func setupCLITestEnv(t *testing.T, reply string) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	env := &cliTestEnv{
		baseDir:    base,
		queuedDir:  filepath.Join(base, "tasks", "queued"),
		failedDir:  filepath.Join(base, "tasks", "failed"),
		doneDir:    filepath.Join(base, "tasks", "completed"),
		configPath: filepath.Join(base, "orchestra.toml"),
	}
	if err := os.MkdirAll(env.queuedDir, 0o755); err != nil {
		t.Fatalf("mkdir queued: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if len(payload.Messages) > 0 {
			env.mu.Lock()
			env.prompts = append(env.prompts, payload.Messages[0].Content)
			env.mu.Unlock()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": reply}}},
		})
	}))
	t.Cleanup(server.Close)

	content := fmt.Sprintf(`[paths]
tasks_dir = %q
state_dir = %q

[api]
url = %q
timeout_seconds = 5

[workflow]
watch = false

[logging]
level = "error"
`, filepath.Join(base, "tasks"), filepath.Join(base, "state"), server.URL+"/v1/chat/completions")
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func runCLI(t *testing.T, args []string, configPath string, stdin string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestRunCommandCompletesQueuedTask(t *testing.T) {
	env := setupCLITestEnv(t, "The list price is $499.")
	testsupport.WriteTask(t, env.queuedDir, "001-price.md", "---\ncompletion_criteria:\n  contains: \"$\"\n---\nFind the price.\n")

	out, _, err := runCLI(t, []string{"run"}, env.configPath, "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	requireContains(t, out, "1 completed")
	requireContains(t, out, "001-price")

	testsupport.AssertMissing(t, filepath.Join(env.queuedDir, "001-price.md"))
	rec := testsupport.ReadTask(t, filepath.Join(env.doneDir, "001-price.md"))
	if rec.Status != task.StatusComplete || rec.ResponseText() != "The list price is $499." {
		t.Fatalf("unexpected record %+v", rec)
	}
	if prompts := env.recordedPrompts(); len(prompts) != 1 || prompts[0] != "Find the price.\n" {
		t.Fatalf("unexpected prompts %q", prompts)
	}
}

func TestRunCommandJSONReportsIncomplete(t *testing.T) {
	env := setupCLITestEnv(t, "no idea")
	testsupport.WriteTask(t, env.queuedDir, "002-price.md", "---\ncompletion_criteria:\n  contains: \"$\"\n---\nFind the price.\n")

	out, _, err := runCLI(t, []string{"run", "--json"}, env.configPath, "")
	if err != nil {
		t.Fatalf("run --json: %v", err)
	}
	var summary struct {
		Dispatched int `json:"dispatched"`
		Incomplete int `json:"incomplete"`
		Outcomes   []struct {
			TaskID string `json:"task_id"`
			Action string `json:"action"`
		} `json:"outcomes"`
	}
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode summary: %v\n%s", err, out)
	}
	if summary.Dispatched != 1 || summary.Incomplete != 1 || summary.Outcomes[0].Action != "incomplete" {
		t.Fatalf("unexpected summary %+v", summary)
	}
	testsupport.AssertExists(t, filepath.Join(env.queuedDir, "002-price.md"))
}

func TestRunCommandRefusesWhileLockHeld(t *testing.T) {
	env := setupCLITestEnv(t, "The list price is $499.")
	queued := testsupport.WriteTask(t, env.queuedDir, "001-price.md", "---\ncompletion_criteria:\n  contains: \"$\"\n---\nFind the price.\n")

	lock, err := daemon.AcquireLock(filepath.Join(env.baseDir, "state", "orchestra.lock"))
	if err != nil {
		t.Fatalf("acquire lock: %v", err)
	}

	_, _, err = runCLI(t, []string{"run"}, env.configPath, "")
	if err == nil {
		t.Fatal("expected run to refuse while another process holds the lock")
	}
	requireContains(t, err.Error(), "orchestra.lock")
	if prompts := env.recordedPrompts(); len(prompts) != 0 {
		t.Fatalf("expected no dispatch, got %q", prompts)
	}
	rec := testsupport.ReadTask(t, queued)
	if rec.Status != task.StatusPending || rec.Attempts != 0 {
		t.Fatalf("task touched while locked: %+v", rec)
	}

	if err := lock.Unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if _, _, err := runCLI(t, []string{"run"}, env.configPath, ""); err != nil {
		t.Fatalf("run after unlock: %v", err)
	}
	testsupport.AssertExists(t, filepath.Join(env.doneDir, "001-price.md"))
}

func TestQueueAddListAndShow(t *testing.T) {
	env := setupCLITestEnv(t, "unused")

	out, _, err := runCLI(t, []string{"queue", "add", "010-summary", "--model", "mistral", "--min-length", "20"}, env.configPath, "Summarise the report.")
	if err != nil {
		t.Fatalf("queue add: %v", err)
	}
	requireContains(t, out, "Queued 010-summary")
	requireContains(t, out, "min_length 20")

	rec := testsupport.ReadTask(t, filepath.Join(env.queuedDir, "010-summary.md"))
	if rec.Status != task.StatusPending || rec.Model != "mistral" || string(rec.Body) != "Summarise the report.\n" {
		t.Fatalf("unexpected record %+v", rec)
	}

	if _, _, err := runCLI(t, []string{"queue", "add", "010-summary", "--body", "again"}, env.configPath, ""); err == nil {
		t.Fatal("expected duplicate add to fail")
	}

	out, _, err = runCLI(t, []string{"queue", "list"}, env.configPath, "")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "010-summary.md")
	requireContains(t, out, "Pending")
	requireContains(t, out, "mistral")

	out, _, err = runCLI(t, []string{"queue", "show", "010-summary", "--json"}, env.configPath, "")
	if err != nil {
		t.Fatalf("queue show: %v", err)
	}
	var view struct {
		Class     string `json:"class"`
		Workspace string `json:"workspace"`
	}
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode show: %v\n%s", err, out)
	}
	if view.Class != "queued" || view.Workspace != "default" {
		t.Fatalf("unexpected view %+v", view)
	}
}

func TestQueueAddRejectsEmptyBody(t *testing.T) {
	env := setupCLITestEnv(t, "unused")
	if _, _, err := runCLI(t, []string{"queue", "add", "blank"}, env.configPath, "  \n"); err == nil {
		t.Fatal("expected empty body to be rejected")
	}
	testsupport.AssertMissing(t, filepath.Join(env.queuedDir, "blank.md"))
}

func TestQueueRetryAndStatus(t *testing.T) {
	env := setupCLITestEnv(t, "unused")
	if err := os.MkdirAll(env.failedDir, 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	testsupport.WriteTask(t, env.failedDir, "broken.md", "---\nstatus: failed\nerror: dispatch timeout\nattempts: 1\n---\nTry again.\n")
	testsupport.WriteTask(t, env.failedDir, "other.md", "---\nstatus: failed\n---\nStays.\n")

	out, _, err := runCLI(t, []string{"queue", "status", "--json"}, env.configPath, "")
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	requireContains(t, out, `"failed": 2`)

	out, _, err = runCLI(t, []string{"queue", "retry", "broken"}, env.configPath, "")
	if err != nil {
		t.Fatalf("queue retry: %v", err)
	}
	requireContains(t, out, "Requeued broken")

	rec := testsupport.ReadTask(t, filepath.Join(env.queuedDir, "broken.md"))
	if rec.Status != task.StatusPending || rec.Error != "" || rec.Attempts != 0 {
		t.Fatalf("unexpected requeued record %+v", rec)
	}
	testsupport.AssertMissing(t, filepath.Join(env.failedDir, "broken.md"))

	if _, _, err := runCLI(t, []string{"queue", "retry", "missing"}, env.configPath, ""); err == nil {
		t.Fatal("expected retry of unknown task to fail")
	}

	out, _, err = runCLI(t, []string{"queue", "status"}, env.configPath, "")
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	requireContains(t, out, "Pending")
	requireContains(t, out, "0.0%")
}

func TestQueueRemoveAndClear(t *testing.T) {
	env := setupCLITestEnv(t, "unused")
	if err := os.MkdirAll(env.failedDir, 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	queued := testsupport.WriteTask(t, env.queuedDir, "draft.md", "---\nstatus: pending\n---\nNever mind.\n")
	busy := testsupport.WriteTask(t, env.queuedDir, "busy.md", "---\nstatus: running\n---\nIn flight.\n")
	testsupport.WriteTask(t, env.failedDir, "x.md", "---\nstatus: failed\n---\nX\n")
	testsupport.WriteTask(t, env.failedDir, "y.md", "---\nstatus: failed\n---\nY\n")

	out, _, err := runCLI(t, []string{"queue", "remove", "draft"}, env.configPath, "")
	if err != nil {
		t.Fatalf("queue remove: %v", err)
	}
	requireContains(t, out, "Removed")
	testsupport.AssertMissing(t, queued)

	out, _, err = runCLI(t, []string{"queue", "remove", "busy"}, env.configPath, "")
	if err == nil {
		t.Fatal("expected running task removal to be refused")
	}
	requireContains(t, out, "--force")
	testsupport.AssertExists(t, busy)

	if _, _, err := runCLI(t, []string{"queue", "remove", "--class", "completed", "x"}, env.configPath, ""); err == nil {
		t.Fatal("expected remove outside the task's class to fail")
	}

	if _, _, err := runCLI(t, []string{"queue", "clear"}, env.configPath, ""); err == nil {
		t.Fatal("expected clear without a class flag to fail")
	}
	out, _, err = runCLI(t, []string{"queue", "clear", "--failed"}, env.configPath, "")
	if err != nil {
		t.Fatalf("queue clear: %v", err)
	}
	requireContains(t, out, "Cleared 2 failed tasks")
	testsupport.AssertExists(t, busy)
}

func TestHealthCommand(t *testing.T) {
	env := setupCLITestEnv(t, "pong")

	out, _, err := runCLI(t, []string{"health"}, env.configPath, "")
	if err != nil {
		t.Fatalf("health: %v\n%s", err, out)
	}
	requireContains(t, out, "Queued directory")
	requireContains(t, out, "Inference endpoint")
	requireContains(t, out, "[OK]")

	if err := os.RemoveAll(env.queuedDir); err != nil {
		t.Fatalf("remove queued: %v", err)
	}
	out, _, err = runCLI(t, []string{"health", "--offline"}, env.configPath, "")
	if err == nil {
		t.Fatal("expected health to fail without a queued directory")
	}
	requireContains(t, out, "does not exist")
}

func TestConfigInitAndValidate(t *testing.T) {
	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	target := filepath.Join(base, "cfg", "orchestra.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	testsupport.AssertExists(t, target)

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", ""); err == nil {
		t.Fatal("expected init to refuse an existing file")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, "", ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}

	env := setupCLITestEnv(t, "unused")
	out, _, err = runCLI(t, []string{"config", "validate"}, env.configPath, "")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	out, _, err = runCLI(t, []string{"config", "show"}, env.configPath, "")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "[api]")
	requireContains(t, out, "timeout_seconds = 5")
}

func TestConfigRejectsUnknownKeys(t *testing.T) {
	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	path := filepath.Join(base, "bad.toml")
	if err := os.WriteFile(path, []byte("[api]\nbogus = 1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, _, err := runCLI(t, []string{"queue", "list"}, path, "")
	if err == nil || !strings.Contains(err.Error(), "load config") {
		t.Fatalf("expected load config error, got %v", err)
	}
}

func TestLogsCommandFiltersByMatch(t *testing.T) {
	env := setupCLITestEnv(t, "unused")
	stateDir := filepath.Join(env.baseDir, "state")
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		t.Fatalf("mkdir state: %v", err)
	}
	content := "INFO dispatching task_id=010-price\nINFO dispatching task_id=020-other\nWARN incomplete task_id=010-price\n"
	if err := os.WriteFile(filepath.Join(stateDir, "orchestra.log"), []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, _, err := runCLI(t, []string{"logs", "--match", "010-price", "-n", "1"}, env.configPath, "")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if strings.TrimSpace(out) != "WARN incomplete task_id=010-price" {
		t.Fatalf("unexpected logs output %q", out)
	}
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t, "unused")
	out, _, err := runCLI(t, []string{"test-notify"}, env.configPath, "")
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "Notifications disabled")
}
