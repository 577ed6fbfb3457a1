package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newDevicesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the backend's devices and their queue depth",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			app, err := buildApp(ctx, *opts)
			if err != nil {
				return err
			}
			defer app.shutdown(ctx)

			devices, err := app.client.Devices(ctx)
			if err != nil {
				return fmt.Errorf("listing devices: %w", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tONLINE\tSIMULATOR\tPENDING")
			for _, d := range devices {
				fmt.Fprintf(tw, "%s\t%t\t%t\t%d\n", d.Name, d.Online, d.Simulator, d.PendingJobs)
			}
			return tw.Flush()
		},
	}
}
