// Package main is the entry point for the qbeacon watcher CLI. It
// submits quantum programs to the execution service and tracks each job
// to its terminal status over the push stream, falling back to polling
// when the stream is unavailable.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var build = "develop"

func main() {
	os.Exit(execute())
}

func execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath      string
	credentialsPath string
	verbose         bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "qbeacon",
		Short:         "Track quantum program executions to completion",
		Long:          "qbeacon submits programs to a quantum execution service and follows each job's status over a websocket stream, with transparent fallback to polling.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a YAML config file (default: ~/.qbeacon/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.credentialsPath, "credentials", "", "Path to the saved credentials file (default: ~/.qbeacon/credentials)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newWatchCmd(opts))
	rootCmd.AddCommand(newCancelCmd(opts))
	rootCmd.AddCommand(newDevicesCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the watcher version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), build)
		},
	}
}
