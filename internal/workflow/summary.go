package workflow

import (
	"time"

	"orchestra/internal/task"
)

// Action names what the engine did with one task during a pass.
type Action string

const (
	ActionCompleted  Action = "completed"
	ActionIncomplete Action = "incomplete"
	ActionFailed     Action = "failed"
	// ActionReconciled finishes a relocation interrupted by a crash, or
	// fails a task found running under the fail recovery policy.
	ActionReconciled Action = "reconciled"
	// ActionRequeued resets a task found running to pending.
	ActionRequeued Action = "requeued"
	// ActionExhausted skips a task that reached max_attempts.
	ActionExhausted Action = "exhausted"
	// ActionSkipped leaves an unparseable task untouched.
	ActionSkipped Action = "skipped"
	// ActionInterrupted leaves a task running on disk after cancellation.
	ActionInterrupted Action = "interrupted"
	// ActionError records a filesystem failure; the task keeps its last
	// persisted state.
	ActionError Action = "error"
)

// Outcome is the result for one task in a pass.
type Outcome struct {
	TaskID   string        `json:"task_id"`
	Path     string        `json:"path"`
	Action   Action        `json:"action"`
	Status   task.Status   `json:"status,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns,omitempty"`
}

// Summary aggregates one pass.
type Summary struct {
	Scanned    int       `json:"scanned"`
	Dispatched int       `json:"dispatched"`
	Completed  int       `json:"completed"`
	Incomplete int       `json:"incomplete"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	Reconciled int       `json:"reconciled"`
	Errors     int       `json:"errors"`
	Outcomes   []Outcome `json:"outcomes"`
}

func (s *Summary) record(o Outcome) {
	switch o.Action {
	case ActionCompleted:
		s.Completed++
	case ActionIncomplete:
		s.Incomplete++
	case ActionFailed:
		s.Failed++
	case ActionReconciled, ActionRequeued:
		s.Reconciled++
	case ActionExhausted, ActionSkipped:
		s.Skipped++
	case ActionError, ActionInterrupted:
		s.Errors++
	}
	s.Outcomes = append(s.Outcomes, o)
}

// Outcome returns the outcome recorded for taskID, if any.
func (s Summary) Outcome(taskID string) (Outcome, bool) {
	for _, o := range s.Outcomes {
		if o.TaskID == taskID {
			return o, true
		}
	}
	return Outcome{}, false
}
