package preflight

import (
	"context"

	"orchestra/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// Directories checks every task directory plus the state directory.
func Directories(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	return []Result{
		CheckDirectoryAccess("Queued directory", cfg.Paths.QueuedDir),
		CheckDirectoryAccess("Completed directory", cfg.Paths.CompletedDir),
		CheckDirectoryAccess("Failed directory", cfg.Paths.FailedDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}
}

// RunAll executes the directory checks and, when withEndpoint is set, the
// endpoint check.
func RunAll(ctx context.Context, cfg *config.Config, withEndpoint bool) []Result {
	results := Directories(cfg)
	if cfg != nil && withEndpoint {
		results = append(results, CheckEndpoint(ctx, "Inference endpoint", cfg))
	}
	return results
}
