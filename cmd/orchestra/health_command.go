package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"orchestra/internal/preflight"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	var (
		asJSON     bool
		skipRemote bool
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check task directories and the inference endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg, !skipRemote)
			failed := preflight.Failed(results)

			if asJSON {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderSectionHeader("Health", colorize) {
					fmt.Fprintln(out, line)
				}
				for _, r := range results {
					kind := statusOK
					if !r.Passed {
						kind = statusError
					}
					fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
				}
				if ctx.configSeen {
					fmt.Fprintln(out, renderStatusLine("Config", statusInfo, ctx.configPath, colorize))
				} else {
					fmt.Fprintln(out, renderStatusLine("Config", statusWarn, "no file found, using defaults", colorize))
				}
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d of %d health checks failed", len(failed), len(results))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	cmd.Flags().BoolVar(&skipRemote, "offline", false, "Skip the endpoint check")
	return cmd
}
