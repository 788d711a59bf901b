package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"orchestra/internal/config"
	"orchestra/internal/logging"
	"orchestra/internal/notifications"
	"orchestra/internal/queue"
	"orchestra/internal/review"
	"orchestra/internal/services/llm"
	"orchestra/internal/workflow"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configSeen bool
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = fmt.Errorf("load config: %w", err)
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configSeen = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) openStore(opts ...queue.Option) (*queue.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return queue.Open(queue.DirsFromConfig(cfg), opts...)
}

// withStore opens the task store and hands it to fn.
func (c *commandContext) withStore(fn func(*config.Config, *queue.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := c.openStore()
	if err != nil {
		return err
	}
	return fn(cfg, store)
}

func (c *commandContext) logger(withFile bool) (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg, withFile)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

// buildEngine wires the store, dispatch client, and optional reviewer.
func (c *commandContext) buildEngine(logger *slog.Logger) (*workflow.Engine, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := c.openStore(queue.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	client := llm.NewClient(llm.Config{
		URL:     cfg.API.URL,
		APIKey:  cfg.API.Key,
		Timeout: cfg.RequestTimeout(),
	}, llm.WithRetryMaxAttempts(cfg.API.RetryAttempts))

	opts := []workflow.Option{workflow.WithNotifier(notifications.NewService(cfg))}
	if cfg.Review.Enabled {
		opts = append(opts, workflow.WithReviewer(review.New(review.SettingsFromConfig(cfg), store, client, logger)))
	}
	return workflow.NewEngine(workflow.SettingsFromConfig(cfg), store, client, logger, opts...), nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
