package task

import (
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"orchestra/internal/criteria"
)

// Status represents the lifecycle of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusRunning    Status = "running"
	StatusComplete   Status = "complete"
	StatusIncomplete Status = "incomplete"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusRunning,
	StatusComplete,
	StatusIncomplete,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts a header value to a Status.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := statusSet[status]; !ok {
		return "", false
	}
	return status, true
}

// Class is the directory a task file lives in.
type Class string

const (
	ClassQueued    Class = "queued"
	ClassCompleted Class = "completed"
	ClassFailed    Class = "failed"
)

// AllClasses returns the directory classes in scan order.
func AllClasses() []Class {
	return []Class{ClassQueued, ClassCompleted, ClassFailed}
}

// ParseClass converts a CLI value to a Class.
func ParseClass(value string) (Class, bool) {
	switch Class(strings.ToLower(strings.TrimSpace(value))) {
	case ClassQueued, "pending":
		return ClassQueued, true
	case ClassCompleted, "complete":
		return ClassCompleted, true
	case ClassFailed:
		return ClassFailed, true
	default:
		return "", false
	}
}

// Class returns the directory class a task with this status must live in.
func (s Status) Class() Class {
	switch s {
	case StatusComplete:
		return ClassCompleted
	case StatusFailed:
		return ClassFailed
	default:
		return ClassQueued
	}
}

// IsTerminal reports whether the status leaves the pending set.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Eligible reports whether a task in this status may be dispatched.
func (s Status) Eligible() bool {
	return s == StatusPending || s == StatusIncomplete
}

// Task types written by follow-up generation.
const (
	TypeEvaluation = "evaluation"
	TypeNextStep   = "next_step"
)

// Record is one task file in memory.
type Record struct {
	ID        string
	Path      string
	Status    Status
	Model     string
	Workspace string
	Criteria  *criteria.Spec
	Body      []byte
	// Response is nil until a dispatch succeeds.
	Response *string
	Error    string
	Attempts int
	RunID    string

	UpdatedAt time.Time
	CreatedAt time.Time

	OriginalTask string
	TaskType     string
	StepNumber   int

	// extra holds header entries the codec does not know, as key/value node
	// pairs in file order.
	extra []*yaml.Node
}

// IDFromPath returns the task identifier for a file path: its base name
// without extension.
func IDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Defaults are the engine-level fallbacks for optional header fields.
type Defaults struct {
	Model     string
	Workspace string
}

// ResolvedModel returns the task's model or the default.
func (r *Record) ResolvedModel(d Defaults) string {
	if m := strings.TrimSpace(r.Model); m != "" {
		return m
	}
	return d.Model
}

// ResolvedWorkspace returns the task's workspace or the default.
func (r *Record) ResolvedWorkspace(d Defaults) string {
	if w := strings.TrimSpace(r.Workspace); w != "" {
		return w
	}
	return d.Workspace
}

// ResponseText returns the response or the empty string.
func (r *Record) ResponseText() string {
	if r.Response == nil {
		return ""
	}
	return *r.Response
}

// SetResponse stores a response.
func (r *Record) SetResponse(text string) {
	r.Response = &text
}

// MarkFailed sets the failed status with a reason.
func (r *Record) MarkFailed(reason string) {
	r.Status = StatusFailed
	r.Error = strings.TrimSpace(reason)
}

// ExtraKeys lists preserved unknown header keys in file order.
func (r *Record) ExtraKeys() []string {
	keys := make([]string, 0, len(r.extra)/2)
	for i := 0; i+1 < len(r.extra); i += 2 {
		keys = append(keys, r.extra[i].Value)
	}
	return keys
}
