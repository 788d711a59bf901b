package workflow

import (
	"context"

	"orchestra/internal/config"
	"orchestra/internal/logging"
	"orchestra/internal/notifications"
	"orchestra/internal/services"
	"orchestra/internal/task"
)

const errInterrupted = "interrupted while running"

// handleParseError applies the parse-error policy. The file is never
// rewritten: skip leaves it alone, fail moves the raw bytes to failed.
func (e *Engine) handleParseError(ctx context.Context, base Outcome, parseErr *task.ParseError) Outcome {
	ctx = services.WithStage(ctx, "parse")
	base.Error = parseErr.Error()
	if e.settings.ParseErrorPolicy != config.ParseErrorFail {
		logging.WarnWithContext(logging.WithContext(ctx, e.logger), "task header invalid; skipped", "parse_error",
			logging.Error(parseErr),
			logging.String(logging.FieldErrorKind, services.Kind(parseErr)),
			logging.String(logging.FieldErrorHint, "fix the front matter; the task is retried on the next pass"),
			logging.String(logging.FieldImpact, "task not dispatched"),
		)
		base.Action = ActionSkipped
		return base
	}

	dest, err := e.store.RelocatePath(base.Path, task.ClassFailed)
	if err != nil {
		e.logTaskError(ctx, "could not move unparseable task", "relocate_failed", err)
		return e.errorOutcome(base, err)
	}
	e.logTaskError(ctx, "task header invalid; moved to failed", "parse_error", parseErr,
		logging.String(logging.FieldErrorHint, "fix the front matter and run 'orchestra queue retry'"))
	base.Action = ActionFailed
	base.Status = task.StatusFailed
	base.Path = dest
	return base
}

// finishRelocation handles a task whose terminal status was persisted but
// whose move did not happen.
func (e *Engine) finishRelocation(ctx context.Context, base Outcome, rec *task.Record) Outcome {
	ctx = services.WithStage(ctx, "reconcile")
	class := rec.Status.Class()
	if err := e.store.Relocate(rec, class); err != nil {
		e.logTaskError(ctx, "could not finish interrupted move", "relocate_failed", err,
			logging.String("target", string(class)))
		return e.errorOutcome(base, err)
	}
	logging.WithContext(ctx, e.logger).Info("finished interrupted move",
		logging.String("status", string(rec.Status)),
		logging.String("target", string(class)),
		logging.String(logging.FieldEventType, "task_reconciled"),
	)
	base.Action = ActionReconciled
	base.Path = rec.Path
	return base
}

// recoverRunning applies the recovery policy to a task left running by a
// previous process. It is never dispatched in the same pass.
func (e *Engine) recoverRunning(ctx context.Context, base Outcome, rec *task.Record) Outcome {
	ctx = services.WithStage(ctx, "reconcile")
	logger := logging.WithContext(ctx, e.logger)

	if e.settings.RecoveryPolicy == config.RecoveryRequeue {
		rec.Status = task.StatusPending
		if err := e.store.Persist(rec); err != nil {
			e.logTaskError(ctx, "could not requeue interrupted task", "persist_failed", err)
			return e.errorOutcome(base, err)
		}
		logging.WarnWithContext(logger, "task was interrupted while running; requeued", "task_requeued",
			logging.String("run_id", rec.RunID),
			logging.String(logging.FieldImpact, "task is dispatched again on the next pass"),
		)
		base.Action = ActionRequeued
		base.Status = task.StatusPending
		return base
	}

	rec.MarkFailed(errInterrupted)
	if err := e.store.Persist(rec); err != nil {
		e.logTaskError(ctx, "could not fail interrupted task", "persist_failed", err)
		return e.errorOutcome(base, err)
	}
	if err := e.store.Relocate(rec, task.ClassFailed); err != nil {
		e.logTaskError(ctx, "could not move interrupted task", "relocate_failed", err,
			logging.String(logging.FieldErrorHint, "the next pass retries the move"))
		return e.errorOutcome(base, err)
	}
	logging.WarnWithContext(logger, "task was interrupted while running; marked failed", "task_reconciled",
		logging.String("run_id", rec.RunID),
		logging.String(logging.FieldErrorHint, "run 'orchestra queue retry' to dispatch it again"),
		logging.String(logging.FieldImpact, "task moved to failed"),
		logging.Alert("interrupted_task"),
	)
	base.Action = ActionReconciled
	base.Status = task.StatusFailed
	base.Path = rec.Path
	base.Error = errInterrupted
	e.notify(ctx, notifications.EventTaskFailed, notifications.Payload{"task": rec.ID, "error": errInterrupted})
	return base
}
