package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeDefaults()
	c.normalizeWorkflow()
	c.normalizeReview()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.TasksDir) == "" {
		c.Paths.TasksDir = defaultTasksDir
	}
	if c.Paths.TasksDir, err = expandPath(strings.TrimSpace(c.Paths.TasksDir)); err != nil {
		return fmt.Errorf("paths.tasks_dir: %w", err)
	}
	dirs := []struct {
		key   string
		value *string
		leaf  string
	}{
		{"paths.queued_dir", &c.Paths.QueuedDir, "queued"},
		{"paths.completed_dir", &c.Paths.CompletedDir, "completed"},
		{"paths.failed_dir", &c.Paths.FailedDir, "failed"},
	}
	for _, dir := range dirs {
		value := strings.TrimSpace(*dir.value)
		if value == "" {
			value = filepath.Join(c.Paths.TasksDir, dir.leaf)
		}
		if *dir.value, err = expandPath(value); err != nil {
			return fmt.Errorf("%s: %w", dir.key, err)
		}
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(strings.TrimSpace(c.Paths.StateDir)); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.URL = strings.TrimSpace(c.API.URL)
	c.API.Key = strings.TrimSpace(c.API.Key)
	if c.API.RetryAttempts == 0 {
		c.API.RetryAttempts = defaultRetryAttempts
	}
}

func (c *Config) normalizeDefaults() {
	c.Defaults.Model = strings.TrimSpace(c.Defaults.Model)
	if c.Defaults.Model == "" {
		c.Defaults.Model = defaultModel
	}
	c.Defaults.Workspace = strings.TrimSpace(c.Defaults.Workspace)
}

func (c *Config) normalizeWorkflow() {
	c.Workflow.RecoveryPolicy = strings.ToLower(strings.TrimSpace(c.Workflow.RecoveryPolicy))
	if c.Workflow.RecoveryPolicy == "" {
		c.Workflow.RecoveryPolicy = defaultRecoveryPolicy
	}
	c.Workflow.ParseErrorPolicy = strings.ToLower(strings.TrimSpace(c.Workflow.ParseErrorPolicy))
	if c.Workflow.ParseErrorPolicy == "" {
		c.Workflow.ParseErrorPolicy = defaultParseErrorPolicy
	}
}

func (c *Config) normalizeReview() {
	c.Review.Workspace = strings.TrimSpace(c.Review.Workspace)
	if c.Review.Workspace == "" {
		c.Review.Workspace = defaultReviewWorkspace
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout == 0 {
		c.Notifications.RequestTimeout = defaultNtfyTimeout
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "console", "text":
		c.Logging.Format = "console"
	default:
		c.Logging.Format = format
	}
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}
