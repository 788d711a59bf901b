package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"orchestra/internal/daemon"
	"orchestra/internal/logging"
	"orchestra/internal/preflight"
)

func newStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run as a daemon, processing the queue until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if failed := preflight.Failed(preflight.Directories(cfg)); len(failed) > 0 {
				return preflightError(failed)
			}
			logger, err := ctx.logger(true)
			if err != nil {
				return err
			}
			engine, err := ctx.buildEngine(logger)
			if err != nil {
				return err
			}
			d, err := daemon.New(cfg, engine, logger)
			if err != nil {
				return err
			}

			logger.Info("orchestra daemon starting",
				logging.String("queued_dir", cfg.Paths.QueuedDir),
				logging.String("api_url", cfg.API.URL),
				logging.Bool("watch", cfg.Workflow.Watch),
				logging.Duration("poll_interval", cfg.PollInterval()),
			)
			err = d.Run(cmd.Context())
			if errors.Is(err, daemon.ErrAlreadyRunning) {
				return fmt.Errorf("another orchestra daemon holds %s", cfg.LockPath())
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
