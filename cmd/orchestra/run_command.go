package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"orchestra/internal/daemon"
	"orchestra/internal/preflight"
	"orchestra/internal/workflow"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process the queued directory once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if failed := preflight.Failed(preflight.Directories(cfg)); len(failed) > 0 {
				return preflightError(failed)
			}
			lock, err := daemon.AcquireLock(cfg.LockPath())
			if errors.Is(err, daemon.ErrAlreadyRunning) {
				return fmt.Errorf("another orchestra process holds %s; stop it or wait for its pass", cfg.LockPath())
			}
			if err != nil {
				return err
			}
			defer func() { _ = lock.Unlock() }()

			logger, err := ctx.logger(false)
			if err != nil {
				return err
			}
			engine, err := ctx.buildEngine(logger)
			if err != nil {
				return err
			}

			summary, runErr := engine.RunPass(cmd.Context())
			if asJSON {
				if err := writeJSON(cmd, summary); err != nil {
					return err
				}
				return runErr
			}
			fmt.Fprint(cmd.OutOrStdout(), renderSummary(summary))
			return runErr
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the pass summary as JSON")
	return cmd
}

func renderSummary(summary workflow.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scanned %d, dispatched %d: %d completed, %d incomplete, %d failed",
		summary.Scanned, summary.Dispatched, summary.Completed, summary.Incomplete, summary.Failed)
	if summary.Skipped > 0 {
		fmt.Fprintf(&b, ", %d skipped", summary.Skipped)
	}
	if summary.Reconciled > 0 {
		fmt.Fprintf(&b, ", %d reconciled", summary.Reconciled)
	}
	if summary.Errors > 0 {
		fmt.Fprintf(&b, ", %d errors", summary.Errors)
	}
	b.WriteString("\n")
	if len(summary.Outcomes) == 0 {
		return b.String()
	}

	rows := make([][]string, 0, len(summary.Outcomes))
	for _, o := range summary.Outcomes {
		rows = append(rows, []string{
			o.TaskID,
			string(o.Action),
			statusLabel(o.Status),
			formatDuration(o.Duration),
			truncate(o.Error, 60),
		})
	}
	b.WriteString(renderTable(
		[]string{"Task", "Action", "Status", "Took", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
	return b.String()
}

func preflightError(failed []preflight.Result) error {
	parts := make([]string, 0, len(failed))
	for _, r := range failed {
		parts = append(parts, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}
	return errors.New("preflight failed: " + strings.Join(parts, "; "))
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return strconv.FormatInt(d.Milliseconds(), 10) + "ms"
	}
	return d.Round(100 * time.Millisecond).String()
}

func truncate(value string, limit int) string {
	runes := []rune(strings.TrimSpace(value))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit-1]) + "…"
}
