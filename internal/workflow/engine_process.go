package workflow

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"orchestra/internal/criteria"
	"orchestra/internal/logging"
	"orchestra/internal/notifications"
	"orchestra/internal/services"
	"orchestra/internal/services/llm"
	"orchestra/internal/task"
)

const errCriteriaNotMet = "completion criteria not met"

// process dispatches one eligible task and records the result.
func (e *Engine) process(ctx context.Context, base Outcome, rec *task.Record) Outcome {
	start := e.now()
	runID := e.newRunID()
	ctx = services.WithRequestID(services.WithStage(ctx, "dispatch"), runID)
	logger := logging.WithContext(ctx, e.logger)

	previous := *rec
	rec.Status = task.StatusRunning
	rec.Attempts++
	rec.RunID = runID
	if err := e.store.Persist(rec); err != nil {
		*rec = previous
		e.logTaskError(ctx, "could not mark task running; skipped", "persist_failed", err,
			logging.String(logging.FieldErrorHint, "check write access to the queued directory"))
		return e.errorOutcome(base, err)
	}

	model := rec.ResolvedModel(e.settings.Defaults)
	workspace := rec.ResolvedWorkspace(e.settings.Defaults)
	logger.Info("dispatching task",
		logging.String("model", model),
		logging.String("workspace", workspace),
		logging.Int("attempt", rec.Attempts),
		logging.String(logging.FieldEventType, "task_dispatched"),
	)

	response, err := e.dispatch(ctx, llm.Request{Body: rec.PromptBody(), Model: model, Workspace: workspace})
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			logger.Warn("dispatch interrupted; task left running for recovery",
				logging.String(logging.FieldEventType, "task_interrupted"),
				logging.String(logging.FieldImpact, "recovery policy applies on next start"),
			)
			base.Action = ActionInterrupted
			base.Status = task.StatusRunning
			base.Error = err.Error()
			base.Duration = e.now().Sub(start)
			return base
		}
		return e.failDispatch(ctx, base, rec, err, start)
	}

	rec.SetResponse(response)
	if unmet := criteria.Explain(response, rec.Criteria); len(unmet) > 0 {
		return e.markIncomplete(ctx, base, rec, unmet, start)
	}
	return e.markComplete(ctx, base, rec, start)
}

func (e *Engine) dispatch(ctx context.Context, req llm.Request) (string, error) {
	if e.settings.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.settings.RequestTimeout)
		defer cancel()
	}
	return e.dispatcher.Submit(ctx, req)
}

// failDispatch files a task whose dispatch returned an error. Every error
// kind ends in failed; a response from an earlier attempt is kept.
func (e *Engine) failDispatch(ctx context.Context, base Outcome, rec *task.Record, dispatchErr error, start time.Time) Outcome {
	rec.MarkFailed(dispatchErr.Error())
	e.logTaskError(ctx, "dispatch failed", "task_failed", dispatchErr,
		logging.String(logging.FieldErrorHint, dispatchHint(dispatchErr)))
	if err := e.store.Persist(rec); err != nil {
		e.logTaskError(ctx, "could not persist failed status; task stays running", "persist_failed", err)
		return e.errorOutcome(base, err)
	}
	if err := e.store.Relocate(rec, task.ClassFailed); err != nil {
		e.logTaskError(ctx, "could not move failed task", "relocate_failed", err,
			logging.String(logging.FieldErrorHint, "the next pass retries the move"))
		return e.errorOutcome(base, err)
	}
	base.Action = ActionFailed
	base.Status = task.StatusFailed
	base.Path = rec.Path
	base.Error = rec.Error
	base.Duration = e.now().Sub(start)
	e.notify(ctx, notifications.EventTaskFailed, notifications.Payload{"task": rec.ID, "error": rec.Error})
	return base
}

func (e *Engine) markIncomplete(ctx context.Context, base Outcome, rec *task.Record, unmet []string, start time.Time) Outcome {
	rec.Status = task.StatusIncomplete
	rec.Error = errCriteriaNotMet + ": " + strings.Join(unmet, "; ")
	if err := e.store.Persist(rec); err != nil {
		e.logTaskError(ctx, "could not persist incomplete status; task stays running", "persist_failed", err)
		return e.errorOutcome(base, err)
	}
	logging.WithContext(ctx, e.logger).Info("response did not meet completion criteria",
		logging.String("criteria", criteria.Describe(rec.Criteria)),
		logging.String("unmet", strings.Join(unmet, "; ")),
		logging.Int("attempt", rec.Attempts),
		logging.String(logging.FieldEventType, "task_incomplete"),
	)
	base.Action = ActionIncomplete
	base.Status = task.StatusIncomplete
	base.Error = rec.Error
	base.Duration = e.now().Sub(start)
	return base
}

func (e *Engine) markComplete(ctx context.Context, base Outcome, rec *task.Record, start time.Time) Outcome {
	rec.Status = task.StatusComplete
	rec.Error = ""
	if err := e.store.Persist(rec); err != nil {
		e.logTaskError(ctx, "could not persist complete status; task stays running", "persist_failed", err)
		return e.errorOutcome(base, err)
	}
	if e.reviewer != nil {
		reviewCtx := services.WithStage(ctx, "review")
		if err := e.reviewer.Review(reviewCtx, rec); err != nil {
			logging.WarnWithContext(logging.WithContext(reviewCtx, e.logger), "review follow-ups not created", "review_failed",
				append(logging.ErrorAttrs(err),
					logging.String(logging.FieldImpact, "task still completes; no follow-up tasks were queued"))...,
			)
		}
	}
	if err := e.store.Relocate(rec, task.ClassCompleted); err != nil {
		e.logTaskError(ctx, "could not move completed task", "relocate_failed", err,
			logging.String(logging.FieldErrorHint, "the next pass retries the move"))
		return e.errorOutcome(base, err)
	}
	logging.WithContext(ctx, e.logger).Info("task completed",
		logging.Int("response_chars", utf8.RuneCountInString(rec.ResponseText())),
		logging.Duration("elapsed", e.now().Sub(start)),
		logging.String(logging.FieldEventType, "task_completed"),
	)
	base.Action = ActionCompleted
	base.Status = task.StatusComplete
	base.Path = rec.Path
	base.Duration = e.now().Sub(start)
	e.notify(ctx, notifications.EventTaskCompleted, notifications.Payload{
		"task":      rec.ID,
		"workspace": rec.ResolvedWorkspace(e.settings.Defaults),
		"duration":  base.Duration,
	})
	return base
}

func (e *Engine) errorOutcome(base Outcome, err error) Outcome {
	base.Action = ActionError
	base.Error = err.Error()
	return base
}

func dispatchHint(err error) string {
	switch services.Kind(err) {
	case "timeout":
		return "raise api.timeout_seconds or check endpoint load"
	case "connection":
		return "check api.url and that the endpoint is reachable"
	case "server":
		return "check the endpoint logs, model name, and api key"
	case "invalid_response":
		return "the endpoint returned no usable text; check the model"
	default:
		return "fix the cause, then run 'orchestra queue retry' for this task"
	}
}
