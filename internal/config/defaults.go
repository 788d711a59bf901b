package config

const (
	defaultConfigPath       = "~/.config/orchestra/config.toml"
	defaultTasksDir         = "./tasks"
	defaultStateDir         = "~/.local/share/orchestra"
	defaultAPIURL           = "http://localhost:8080/api/v1/chat/completions"
	defaultTimeoutSeconds   = 300
	defaultRetryAttempts    = 1
	defaultModel            = "llama3"
	defaultWorkspace        = "default"
	defaultPollInterval     = 300
	defaultMaxAttempts      = 5
	defaultRecoveryPolicy   = RecoveryFail
	defaultParseErrorPolicy = ParseErrorSkip
	defaultReviewWorkspace  = "evaluator"
	defaultNtfyTimeout      = 10
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
)

// Recovery policies for tasks found in the running state at scan time.
const (
	RecoveryFail    = "fail"
	RecoveryRequeue = "requeue"
)

// Policies for task files whose header cannot be parsed.
const (
	ParseErrorSkip = "skip"
	ParseErrorFail = "fail"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			TasksDir: defaultTasksDir,
			StateDir: defaultStateDir,
		},
		API: API{
			URL:            defaultAPIURL,
			TimeoutSeconds: defaultTimeoutSeconds,
			RetryAttempts:  defaultRetryAttempts,
		},
		Defaults: Defaults{
			Model:     defaultModel,
			Workspace: defaultWorkspace,
		},
		Workflow: Workflow{
			PollInterval:     defaultPollInterval,
			MaxAttempts:      defaultMaxAttempts,
			RecoveryPolicy:   defaultRecoveryPolicy,
			ParseErrorPolicy: defaultParseErrorPolicy,
			Watch:            true,
		},
		Review: Review{
			Workspace: defaultReviewWorkspace,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
			OnFailure:      true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
