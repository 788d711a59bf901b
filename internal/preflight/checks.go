package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"orchestra/internal/config"
	"orchestra/internal/fileutil"
	"orchestra/internal/services"
	"orchestra/internal/services/llm"
)

const endpointCheckTimeout = 30 * time.Second

// CheckEndpoint sends a trivial prompt with the default model and expects
// any non-empty reply. It makes a single attempt.
func CheckEndpoint(ctx context.Context, name string, cfg *config.Config) Result {
	checkCtx, cancel := context.WithTimeout(ctx, endpointCheckTimeout)
	defer cancel()

	client := llm.NewClient(llm.Config{
		URL:     cfg.API.URL,
		APIKey:  cfg.API.Key,
		Timeout: min(cfg.RequestTimeout(), endpointCheckTimeout),
	}, llm.WithRetryMaxAttempts(1))

	if err := client.HealthCheck(checkCtx, cfg.Defaults.Model); err != nil {
		return Result{Name: name, Detail: summarizeEndpointError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (model %s answered)", cfg.API.URL, cfg.Defaults.Model)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := fileutil.CheckDirAccess(path); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

func summarizeEndpointError(err error) string {
	switch {
	case errors.Is(err, services.ErrTimeout):
		return "health check timed out (endpoint unresponsive)"
	case errors.Is(err, services.ErrConnection):
		return fmt.Sprintf("endpoint unreachable (%v)", err)
	case errors.Is(err, services.ErrServer):
		return fmt.Sprintf("endpoint refused the request (%v)", err)
	case errors.Is(err, services.ErrInvalidResponse):
		return "endpoint returned no usable text"
	default:
		return err.Error()
	}
}
