package workflow

import (
	"context"
	"errors"

	"orchestra/internal/logging"
	"orchestra/internal/notifications"
	"orchestra/internal/queue"
	"orchestra/internal/services"
	"orchestra/internal/task"
)

// RunPass processes a snapshot of the queued directory. Tasks are handled
// sequentially in filename order; files added during the pass wait for the
// next one. The returned error is non-nil only when the snapshot cannot be
// taken or ctx is cancelled.
func (e *Engine) RunPass(ctx context.Context) (Summary, error) {
	var summary Summary
	entries, err := e.store.ListPending()
	if err != nil {
		e.logger.Error("queue scan failed",
			logging.Args(append(logging.ErrorAttrs(err),
				logging.String(logging.FieldEventType, "queue_scan_failed"),
				logging.String(logging.FieldErrorHint, "check permissions on the queued directory"),
			)...)...,
		)
		return summary, err
	}
	summary.Scanned = len(entries)
	if len(entries) == 0 {
		e.logger.Debug("queue empty")
		return summary, nil
	}
	e.logger.Info("pass started", logging.Int("tasks", len(entries)))

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		outcome, dispatched := e.handleEntry(ctx, entry)
		if dispatched {
			summary.Dispatched++
		}
		summary.record(outcome)
		if outcome.Action == ActionInterrupted {
			return summary, ctx.Err()
		}
	}

	e.logger.Info("pass finished",
		logging.Int("scanned", summary.Scanned),
		logging.Int("dispatched", summary.Dispatched),
		logging.Int("completed", summary.Completed),
		logging.Int("incomplete", summary.Incomplete),
		logging.Int("failed", summary.Failed),
		logging.Int("skipped", summary.Skipped),
		logging.Int("reconciled", summary.Reconciled),
		logging.Int("errors", summary.Errors),
		logging.String(logging.FieldEventType, "pass_finished"),
	)
	if summary.Dispatched > 0 {
		e.notify(ctx, notifications.EventPassCompleted, notifications.Payload{
			"dispatched": summary.Dispatched,
			"completed":  summary.Completed,
			"incomplete": summary.Incomplete,
			"failed":     summary.Failed,
		})
	}
	return summary, nil
}

// handleEntry routes one snapshot entry by its load result and status.
func (e *Engine) handleEntry(ctx context.Context, entry queue.Entry) (Outcome, bool) {
	id := task.IDFromPath(entry.Name)
	ctx = services.WithTaskID(ctx, id)
	base := Outcome{TaskID: id, Path: entry.Path}

	if entry.Err != nil {
		var parseErr *task.ParseError
		if errors.As(entry.Err, &parseErr) {
			return e.handleParseError(ctx, base, parseErr), false
		}
		e.logTaskError(ctx, "task unreadable; left in place", "task_unreadable", entry.Err)
		base.Action = ActionError
		base.Error = entry.Err.Error()
		return base, false
	}

	rec := entry.Record
	base.Status = rec.Status
	switch rec.Status {
	case task.StatusComplete, task.StatusFailed:
		return e.finishRelocation(ctx, base, rec), false
	case task.StatusRunning:
		return e.recoverRunning(ctx, base, rec), false
	case task.StatusPending, task.StatusIncomplete:
		if limit := e.settings.MaxAttempts; limit > 0 && rec.Attempts >= limit {
			logging.WithContext(ctx, e.logger).Info("attempt limit reached; task left for review",
				logging.Int("attempts", rec.Attempts),
				logging.Int("max_attempts", limit),
				logging.String(logging.FieldEventType, "task_exhausted"),
			)
			base.Action = ActionExhausted
			return base, false
		}
		return e.process(ctx, base, rec), true
	default:
		base.Action = ActionSkipped
		return base, false
	}
}

func (e *Engine) logTaskError(ctx context.Context, msg, eventType string, err error, attrs ...logging.Attr) {
	attrs = append(attrs, logging.ErrorAttrs(err)...)
	attrs = append(attrs, logging.String(logging.FieldEventType, eventType))
	logging.WithContext(ctx, e.logger).Error(msg, logging.Args(attrs...)...)
}
