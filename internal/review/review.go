// Package review sends completed responses to an evaluator workspace and
// queues the follow-up tasks it asks for.
//
// Every review queues one evaluation task holding the evaluator's reply.
// When the reply is a JSON verdict with acceptance_status "no", each entry
// of next_steps also becomes its own pending task.
package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"orchestra/internal/config"
	"orchestra/internal/logging"
	"orchestra/internal/services/llm"
	"orchestra/internal/task"
)

const timestampLayout = "20060102_150405"

// hashSuffix matches the short hex suffix earlier tooling appended to task
// names; follow-ups are named after the base without it.
var hashSuffix = regexp.MustCompile(`_[a-f0-9]{6}$`)

// Dispatcher submits one prompt and returns the reply text.
type Dispatcher interface {
	Submit(ctx context.Context, req llm.Request) (string, error)
}

// Store creates new queued tasks without overwriting.
type Store interface {
	Create(name string, rec *task.Record) (*task.Record, error)
}

// Settings configure the evaluator.
type Settings struct {
	Workspace string
	Defaults  task.Defaults
	Timeout   time.Duration
}

// SettingsFromConfig extracts review settings from a validated config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Workspace: cfg.Review.Workspace,
		Defaults: task.Defaults{
			Model:     cfg.Defaults.Model,
			Workspace: cfg.Defaults.Workspace,
		},
		Timeout: cfg.RequestTimeout(),
	}
}

// Verdict is the evaluator's structured answer.
type Verdict struct {
	AcceptanceStatus string            `json:"acceptance_status"`
	NextSteps        []json.RawMessage `json:"next_steps"`
	NextStepsUpper   []json.RawMessage `json:"NEXT STEPS"`
}

// Steps returns the next steps as task bodies. String entries are used
// verbatim; anything else is rendered as compact JSON.
func (v Verdict) Steps() []string {
	raw := v.NextStepsUpper
	if len(raw) == 0 {
		raw = v.NextSteps
	}
	steps := make([]string, 0, len(raw))
	for _, item := range raw {
		var text string
		if err := json.Unmarshal(item, &text); err == nil {
			steps = append(steps, text)
			continue
		}
		steps = append(steps, strings.TrimSpace(string(item)))
	}
	return steps
}

// Rejected reports whether the evaluator declined the response.
func (v Verdict) Rejected() bool {
	return strings.EqualFold(strings.TrimSpace(v.AcceptanceStatus), "no")
}

// Result lists what one review produced.
type Result struct {
	Reply   string
	Verdict *Verdict
	Created []string
}

// Reviewer implements workflow.Reviewer.
type Reviewer struct {
	settings   Settings
	store      Store
	dispatcher Dispatcher
	logger     *slog.Logger
	now        func() time.Time
}

// Option customizes a Reviewer.
type Option func(*Reviewer)

// WithClock overrides the clock used for follow-up names.
func WithClock(now func() time.Time) Option {
	return func(r *Reviewer) {
		if now != nil {
			r.now = now
		}
	}
}

// New constructs a reviewer.
func New(settings Settings, store Store, dispatcher Dispatcher, logger *slog.Logger, opts ...Option) *Reviewer {
	r := &Reviewer{
		settings:   settings,
		store:      store,
		dispatcher: dispatcher,
		logger:     logging.NewComponentLogger(logger, "review"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Review runs Evaluate and discards the result.
func (r *Reviewer) Review(ctx context.Context, rec *task.Record) error {
	_, err := r.Evaluate(ctx, rec)
	return err
}

// Evaluate submits rec's response to the evaluator workspace and queues the
// follow-ups. A reply that is not a JSON verdict still produces the
// evaluation task. Evaluation tasks themselves are not reviewed.
func (r *Reviewer) Evaluate(ctx context.Context, rec *task.Record) (Result, error) {
	var result Result
	if rec == nil || rec.Response == nil {
		return result, errors.New("review: task has no response")
	}
	logger := logging.WithContext(ctx, r.logger)
	if rec.TaskType == task.TypeEvaluation {
		logger.Debug("evaluation tasks are not reviewed again")
		return result, nil
	}
	model := rec.ResolvedModel(r.settings.Defaults)

	reply, err := r.submit(ctx, llm.Request{Body: rec.ResponseText(), Model: model, Workspace: r.settings.Workspace})
	if err != nil {
		return result, fmt.Errorf("evaluator dispatch: %w", err)
	}
	result.Reply = reply

	base := hashSuffix.ReplaceAllString(rec.ID, "")
	stamp := r.now().Format(timestampLayout)
	var errs []error

	var verdict Verdict
	if err := llm.DecodeLLMJSON(reply, &verdict); err != nil {
		logger.Info("evaluator reply is not a verdict; queuing it as-is",
			logging.String("reason", err.Error()),
			logging.String(logging.FieldEventType, "review_unstructured"),
		)
	} else {
		result.Verdict = &verdict
		logger.Info("evaluator verdict",
			logging.String("acceptance_status", verdict.AcceptanceStatus),
			logging.Int("next_steps", len(verdict.Steps())),
			logging.String(logging.FieldEventType, "review_verdict"),
		)
		if verdict.Rejected() {
			for i, step := range verdict.Steps() {
				name := fmt.Sprintf("%s_step%d_%s", base, i+1, stamp)
				created, err := r.store.Create(name, &task.Record{
					Model:        model,
					Workspace:    rec.ResolvedWorkspace(r.settings.Defaults),
					OriginalTask: rec.ID,
					TaskType:     task.TypeNextStep,
					StepNumber:   i + 1,
					Body:         []byte(step),
				})
				if err != nil {
					errs = append(errs, err)
					continue
				}
				result.Created = append(result.Created, created.ID)
			}
		}
	}

	created, err := r.store.Create(base+"_"+stamp, &task.Record{
		Model:        model,
		Workspace:    r.settings.Workspace,
		OriginalTask: rec.ID,
		TaskType:     task.TypeEvaluation,
		Body:         []byte(reply),
	})
	if err != nil {
		errs = append(errs, err)
	} else {
		result.Created = append(result.Created, created.ID)
	}

	if len(result.Created) > 0 {
		logger.Info("follow-up tasks queued",
			logging.Any("tasks", result.Created),
			logging.String(logging.FieldEventType, "review_followups"),
		)
	}
	return result, errors.Join(errs...)
}

func (r *Reviewer) submit(ctx context.Context, req llm.Request) (string, error) {
	if r.settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.settings.Timeout)
		defer cancel()
	}
	return r.dispatcher.Submit(ctx, req)
}
