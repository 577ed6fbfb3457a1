package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newCancelCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel JOB_ID [JOB_ID...]",
		Short: "Request cancellation of running jobs",
		Long:  "Asks the backend to cancel each job. Cancellation is asynchronous: the job keeps its current status until CANCELLED flows through the status channel.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := buildApp(ctx, *opts)
			if err != nil {
				return err
			}
			defer app.shutdown(ctx)

			var errs []error
			for _, id := range args {
				if err := app.client.CancelJob(ctx, id); err != nil {
					errs = append(errs, fmt.Errorf("cancelling job %s: %w", id, err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for %s\n", id)
			}
			return errors.Join(errs...)
		},
	}
}
