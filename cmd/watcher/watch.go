package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ahrav/quantum-beacon/internal/domain/execution"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "watch JOB_ID [JOB_ID...]",
		Short: "Attach to already-submitted jobs and wait for their terminal status",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := buildApp(ctx, *opts)
			if err != nil {
				return err
			}
			defer app.shutdown(ctx)

			jobs := make([]*execution.Job, 0, len(args))
			for _, id := range args {
				status, err := app.client.JobStatus(ctx, id)
				if err != nil {
					return fmt.Errorf("looking up job %s: %w", id, err)
				}
				jobs = append(jobs, execution.NewJob(id, "", status))
			}

			if timeout <= 0 {
				timeout = app.cfg.Tracking.WaitTimeout.Std()
			}

			outcomes := app.tracker.WaitForAll(ctx, jobs, timeout)
			return reportOutcomes(cmd.OutOrStdout(), outcomes)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Per-job wait timeout (default: from config)")

	return cmd
}
