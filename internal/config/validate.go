package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout < 0 {
		return errors.New("notifications.request_timeout must be positive (seconds)")
	}
	if c.Notifications.NtfyTopic == "" {
		return nil
	}
	parsed, err := url.Parse(c.Notifications.NtfyTopic)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("notifications.ntfy_topic must be a full topic URL, got %q", c.Notifications.NtfyTopic)
	}
	return nil
}

func (c *Config) validatePaths() error {
	seen := map[string]string{}
	for key, dir := range map[string]string{
		"paths.queued_dir":    c.Paths.QueuedDir,
		"paths.completed_dir": c.Paths.CompletedDir,
		"paths.failed_dir":    c.Paths.FailedDir,
	} {
		if strings.TrimSpace(dir) == "" {
			return fmt.Errorf("%s must be set", key)
		}
		cleaned := filepath.Clean(dir)
		if other, ok := seen[cleaned]; ok {
			keys := []string{key, other}
			sort.Strings(keys)
			return fmt.Errorf("%s and %s must be different directories", keys[0], keys[1])
		}
		seen[cleaned] = key
	}
	return nil
}

func (c *Config) validateAPI() error {
	if c.API.URL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("api.url is required. Set ORCHESTRA_API_URL or edit %s (create with 'orchestra config init')", defaultPath)
	}
	parsed, err := url.Parse(c.API.URL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("api.url must be an http(s) URL, got %q", c.API.URL)
	}
	if err := ensurePositiveMap(map[string]int{
		"api.timeout_seconds": c.API.TimeoutSeconds,
		"api.retry_attempts":  c.API.RetryAttempts,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.PollInterval <= 0 {
		return errors.New("workflow.poll_interval must be positive (seconds)")
	}
	if c.Workflow.MaxAttempts < 0 {
		return errors.New("workflow.max_attempts must be zero (unlimited) or positive")
	}
	switch c.Workflow.RecoveryPolicy {
	case RecoveryFail, RecoveryRequeue:
	default:
		return fmt.Errorf("workflow.recovery_policy must be %q or %q, got %q", RecoveryFail, RecoveryRequeue, c.Workflow.RecoveryPolicy)
	}
	switch c.Workflow.ParseErrorPolicy {
	case ParseErrorSkip, ParseErrorFail:
	default:
		return fmt.Errorf("workflow.parse_error_policy must be %q or %q, got %q", ParseErrorSkip, ParseErrorFail, c.Workflow.ParseErrorPolicy)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
