package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "ORCHESTRA"

// envOverlay mirrors the settings operators commonly inject through the
// environment. Pointer fields distinguish "unset" from zero values so the
// overlay only replaces what is actually exported.
type envOverlay struct {
	APIURL           *string `envconfig:"API_URL"`
	APIKey           *string `envconfig:"API_KEY"`
	RequestTimeout   *int    `envconfig:"REQUEST_TIMEOUT"`
	DefaultModel     *string `envconfig:"DEFAULT_MODEL"`
	DefaultWorkspace *string `envconfig:"DEFAULT_WORKSPACE"`
	TasksDir         *string `envconfig:"TASKS_DIR"`
	StateDir         *string `envconfig:"STATE_DIR"`
	LogFormat        *string `envconfig:"LOG_FORMAT"`
	LogLevel         *string `envconfig:"LOG_LEVEL"`
	NtfyTopic        *string `envconfig:"NTFY_TOPIC"`
}

func (c *Config) applyEnv() error {
	var env envOverlay
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	setString(&c.API.URL, env.APIURL)
	setString(&c.API.Key, env.APIKey)
	if env.RequestTimeout != nil {
		c.API.TimeoutSeconds = *env.RequestTimeout
	}
	setString(&c.Defaults.Model, env.DefaultModel)
	setString(&c.Defaults.Workspace, env.DefaultWorkspace)
	setString(&c.Paths.TasksDir, env.TasksDir)
	setString(&c.Paths.StateDir, env.StateDir)
	setString(&c.Logging.Format, env.LogFormat)
	setString(&c.Logging.Level, env.LogLevel)
	setString(&c.Notifications.NtfyTopic, env.NtfyTopic)
	return nil
}

func setString(dst *string, value *string) {
	if value != nil {
		*dst = *value
	}
}
