package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"orchestra/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config rooted in a fresh temp directory. The queued
// directory is created; completed and failed are left for the store to make.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.TasksDir = filepath.Join(base, "tasks")
	cfgVal.Paths.QueuedDir = filepath.Join(cfgVal.Paths.TasksDir, "queued")
	cfgVal.Paths.CompletedDir = filepath.Join(cfgVal.Paths.TasksDir, "completed")
	cfgVal.Paths.FailedDir = filepath.Join(cfgVal.Paths.TasksDir, "failed")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.API.URL = "http://127.0.0.1:0/v1/chat/completions"
	cfgVal.Workflow.PollInterval = 1
	cfgVal.Workflow.Watch = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}

	if err := os.MkdirAll(builder.cfg.Paths.QueuedDir, 0o755); err != nil {
		t.Fatalf("mkdir queued: %v", err)
	}
	if err := builder.cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return builder.cfg
}

// WithAPIURL points the config at a test server.
func WithAPIURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.URL = url
	}
}

// WithRecoveryPolicy sets workflow.recovery_policy.
func WithRecoveryPolicy(policy string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.RecoveryPolicy = policy
	}
}

// WithParseErrorPolicy sets workflow.parse_error_policy.
func WithParseErrorPolicy(policy string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.ParseErrorPolicy = policy
	}
}

// WithMaxAttempts sets workflow.max_attempts.
func WithMaxAttempts(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.MaxAttempts = n
	}
}

// WithReview enables evaluator follow-ups.
func WithReview() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Review.Enabled = true
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
