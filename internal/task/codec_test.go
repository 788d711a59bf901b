package task_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"orchestra/internal/services"
	"orchestra/internal/task"
)

const sampleTask = `---
model: llama3
workspace: research
status: pending
completion_criteria:
  contains: "$"
  min_length: 200
priority: high
tags:
  - finance
---
Find the current list price.

## Acceptance Criteria
- mentions a dollar amount

## Notes
Be brief.
`

func TestDecodeReadsHeaderAndBody(t *testing.T) {
	rec, err := task.Decode("/tasks/queued/010-price.md", []byte(sampleTask))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if rec.ID != "010-price" {
		t.Fatalf("unexpected id %q", rec.ID)
	}
	if rec.Status != task.StatusPending || rec.Model != "llama3" || rec.Workspace != "research" {
		t.Fatalf("unexpected header fields %+v", rec)
	}
	if rec.Criteria == nil || *rec.Criteria.Contains != "$" || *rec.Criteria.MinLength != 200 {
		t.Fatalf("unexpected criteria %+v", rec.Criteria)
	}
	if rec.Response != nil {
		t.Fatal("expected no response before dispatch")
	}
	if !strings.HasPrefix(string(rec.Body), "Find the current list price.") {
		t.Fatalf("unexpected body %q", rec.Body)
	}
	if keys := rec.ExtraKeys(); len(keys) != 2 || keys[0] != "priority" || keys[1] != "tags" {
		t.Fatalf("expected unknown keys to be kept, got %v", keys)
	}
}

func TestDecodeWithoutHeaderDefaultsToPending(t *testing.T) {
	rec, err := task.Decode("plain.md", []byte("Just do it.\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if rec.Status != task.StatusPending || rec.Criteria != nil || string(rec.Body) != "Just do it.\n" {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestEncodeRoundTripPreservesBodyAndUnknownKeys(t *testing.T) {
	rec, err := task.Decode("010-price.md", []byte(sampleTask))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	rec.Status = task.StatusIncomplete
	rec.Attempts = 1
	rec.RunID = "run-1"
	rec.UpdatedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec.Error = "response does not contain \"$\""

	responses := []string{
		"single line",
		"multi\nline\nresponse\n",
		"  leading indent\nand trailing spaces   \n",
		"ends without newline\nsecond",
		"true",
		"123",
		"",
		"trailing blank lines\n\n\n",
	}
	for _, response := range responses {
		rec.SetResponse(response)
		data, err := task.Encode(rec)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		again, err := task.Decode("010-price.md", data)
		if err != nil {
			t.Fatalf("Decode after Encode: %v\n%s", err, data)
		}
		if string(again.Body) != string(rec.Body) {
			t.Fatalf("body changed:\n got %q\nwant %q", again.Body, rec.Body)
		}
		if again.ResponseText() != response {
			t.Fatalf("response changed: got %q want %q", again.ResponseText(), response)
		}
		if again.Status != task.StatusIncomplete || again.Attempts != 1 || again.RunID != "run-1" {
			t.Fatalf("bookkeeping lost: %+v", again)
		}
		if !again.UpdatedAt.Equal(rec.UpdatedAt) {
			t.Fatalf("updated_at changed: %s", again.UpdatedAt)
		}
		if again.Error != rec.Error {
			t.Fatalf("error changed: %q", again.Error)
		}
		if keys := again.ExtraKeys(); len(keys) != 2 {
			t.Fatalf("unknown keys lost: %v", keys)
		}
		if *again.Criteria.Contains != "$" || *again.Criteria.MinLength != 200 {
			t.Fatalf("criteria changed: %+v", again.Criteria)
		}
	}
}

func TestEncodeKeepsAwkwardResponsesLoadable(t *testing.T) {
	responses := []string{
		"\tindented first line\nsecond",
		"func main() {\n\tfmt.Println(1)\n}\n",
		"\n",
		" \n\t\n",
		"\nleading blank line",
		"windows\r\nline endings\r\n",
		"--- looks like a delimiter\n---\n",
		"# heading\n- item\n: colon\n",
	}
	for _, response := range responses {
		rec := &task.Record{Status: task.StatusIncomplete, Body: []byte("Write code.\n")}
		rec.SetResponse(response)
		data, err := task.Encode(rec)
		if err != nil {
			t.Fatalf("Encode %q: %v", response, err)
		}
		again, err := task.Decode("020-code.md", data)
		if err != nil {
			t.Fatalf("Decode after Encode of %q: %v\n%s", response, err, data)
		}
		if again.ResponseText() != response {
			t.Fatalf("response changed: got %q want %q", again.ResponseText(), response)
		}
		if string(again.Body) != "Write code.\n" {
			t.Fatalf("body changed: %q", again.Body)
		}
	}
}

func TestDecodeRejectsSchemaViolations(t *testing.T) {
	tests := []struct {
		name   string
		header string
		field  string
	}{
		{"unknown status", "status: done", "status"},
		{"criteria not mapping", "completion_criteria: yes", "completion_criteria"},
		{"criteria list", "completion_criteria:\n  - contains", "completion_criteria"},
		{"negative min length", "completion_criteria:\n  min_length: -5", "completion_criteria.min_length"},
		{"min length not integer", "completion_criteria:\n  min_length: lots", "completion_criteria.min_length"},
		{"min length float", "completion_criteria:\n  min_length: 2.5", "completion_criteria.min_length"},
		{"unknown criterion", "completion_criteria:\n  max_length: 5", "completion_criteria.max_length"},
		{"contains not string", "completion_criteria:\n  contains: 499", "completion_criteria.contains"},
		{"model not string", "model: [a, b]", "model"},
		{"header not mapping", "- just\n- a list", ""},
		{"duplicate key", "status: pending\nstatus: failed", "status"},
		{"attempts negative", "attempts: -1", "attempts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := task.Decode("bad.md", []byte("---\n"+tt.header+"\n---\nbody\n"))
			var perr *task.ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected ParseError, got %v", err)
			}
			if perr.Field != tt.field {
				t.Fatalf("expected field %q, got %q (%v)", tt.field, perr.Field, err)
			}
			if !errors.Is(err, services.ErrParse) {
				t.Fatalf("expected ErrParse marker, got %v", err)
			}
			if services.Kind(err) != "parse" {
				t.Fatalf("unexpected kind %q", services.Kind(err))
			}
		})
	}
}

func TestDecodeRejectsBrokenYAMLAndUnterminatedHeader(t *testing.T) {
	for _, doc := range []string{
		"---\nstatus: [pending\n---\nbody",
		"---\nstatus: pending\nbody without closing",
	} {
		var perr *task.ParseError
		if _, err := task.Decode("bad.md", []byte(doc)); !errors.As(err, &perr) {
			t.Fatalf("expected ParseError for %q, got %v", doc, err)
		}
	}
}

func TestStatusClassAndEligibility(t *testing.T) {
	tests := []struct {
		status   task.Status
		class    task.Class
		eligible bool
	}{
		{task.StatusPending, task.ClassQueued, true},
		{task.StatusRunning, task.ClassQueued, false},
		{task.StatusIncomplete, task.ClassQueued, true},
		{task.StatusComplete, task.ClassCompleted, false},
		{task.StatusFailed, task.ClassFailed, false},
	}
	for _, tt := range tests {
		if got := tt.status.Class(); got != tt.class {
			t.Fatalf("%s: class %s want %s", tt.status, got, tt.class)
		}
		if got := tt.status.Eligible(); got != tt.eligible {
			t.Fatalf("%s: eligible %v want %v", tt.status, got, tt.eligible)
		}
	}
	if _, ok := task.ParseStatus(" Complete "); !ok {
		t.Fatal("expected status parsing to trim and lowercase")
	}
	if _, ok := task.ParseStatus("done"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
}

func TestResolvedDefaults(t *testing.T) {
	defaults := task.Defaults{Model: "llama3", Workspace: "default"}
	rec := &task.Record{}
	if rec.ResolvedModel(defaults) != "llama3" || rec.ResolvedWorkspace(defaults) != "default" {
		t.Fatal("expected defaults to apply")
	}
	rec.Model, rec.Workspace = "mistral", "legal"
	if rec.ResolvedModel(defaults) != "mistral" || rec.ResolvedWorkspace(defaults) != "legal" {
		t.Fatal("expected task values to win")
	}
}

func TestPromptBodyStripsAcceptanceCriteria(t *testing.T) {
	rec, err := task.Decode("010-price.md", []byte(sampleTask))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	prompt := rec.PromptBody()
	if strings.Contains(prompt, "Acceptance Criteria") || strings.Contains(prompt, "mentions a dollar amount") {
		t.Fatalf("acceptance criteria leaked into prompt: %q", prompt)
	}
	if !strings.Contains(prompt, "## Notes\nBe brief.") {
		t.Fatalf("expected following section to survive: %q", prompt)
	}
	if got := task.StripAcceptanceCriteria("no section here\n"); got != "no section here\n" {
		t.Fatalf("expected unchanged body, got %q", got)
	}
}
