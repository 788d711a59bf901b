package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"orchestra/internal/config"
	"orchestra/internal/logging"
	"orchestra/internal/notifications"
	"orchestra/internal/queue"
	"orchestra/internal/services/llm"
	"orchestra/internal/task"
)

// Dispatcher submits one prompt and returns the reply text.
type Dispatcher interface {
	Submit(ctx context.Context, req llm.Request) (string, error)
}

// Store is the subset of queue.Store the engine needs.
type Store interface {
	ListPending() ([]queue.Entry, error)
	Persist(rec *task.Record) error
	Relocate(rec *task.Record, class task.Class) error
	RelocatePath(path string, class task.Class) (string, error)
}

// Reviewer runs after a task is persisted as complete and before it is
// relocated. Errors are logged; they never change the task's outcome.
type Reviewer interface {
	Review(ctx context.Context, rec *task.Record) error
}

// Settings are the engine's policies, built once at startup.
type Settings struct {
	Defaults         task.Defaults
	RequestTimeout   time.Duration
	RecoveryPolicy   string
	ParseErrorPolicy string
	// MaxAttempts caps dispatches per task; 0 means unlimited.
	MaxAttempts int
}

// SettingsFromConfig extracts engine settings from a validated config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Defaults: task.Defaults{
			Model:     cfg.Defaults.Model,
			Workspace: cfg.Defaults.Workspace,
		},
		RequestTimeout:   cfg.RequestTimeout(),
		RecoveryPolicy:   cfg.Workflow.RecoveryPolicy,
		ParseErrorPolicy: cfg.Workflow.ParseErrorPolicy,
		MaxAttempts:      cfg.Workflow.MaxAttempts,
	}
}

// Engine drives tasks through their lifecycle.
type Engine struct {
	settings   Settings
	store      Store
	dispatcher Dispatcher
	reviewer   Reviewer
	notifier   notifications.Service
	logger     *slog.Logger
	newRunID   func() string
	now        func() time.Time
}

// Option configures optional Engine behavior.
type Option func(*Engine)

// WithReviewer attaches evaluator follow-ups to completed tasks.
func WithReviewer(r Reviewer) Option {
	return func(e *Engine) {
		e.reviewer = r
	}
}

// WithNotifier publishes task outcomes and pass summaries.
func WithNotifier(n notifications.Service) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

// WithRunIDs overrides the run ID generator (used in tests).
func WithRunIDs(gen func() string) Option {
	return func(e *Engine) {
		if gen != nil {
			e.newRunID = gen
		}
	}
}

// WithClock overrides the clock used for outcome durations.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine constructs an engine. settings should come from a validated
// config; empty policies fall back to the config defaults.
func NewEngine(settings Settings, store Store, dispatcher Dispatcher, logger *slog.Logger, opts ...Option) *Engine {
	if settings.RecoveryPolicy == "" {
		settings.RecoveryPolicy = config.RecoveryFail
	}
	if settings.ParseErrorPolicy == "" {
		settings.ParseErrorPolicy = config.ParseErrorSkip
	}
	e := &Engine{
		settings:   settings,
		store:      store,
		dispatcher: dispatcher,
		notifier:   notifications.Nop(),
		logger:     logging.NewComponentLogger(logger, "workflow"),
		newRunID:   uuid.NewString,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Settings returns the engine's effective settings.
func (e *Engine) Settings() Settings {
	return e.settings
}
