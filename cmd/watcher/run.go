package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ahrav/quantum-beacon/internal/app/tracking"
	"github.com/ahrav/quantum-beacon/internal/domain/execution"
	"github.com/ahrav/quantum-beacon/internal/infra/transport/rest"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		device      string
		programs    []string
		shots       int
		timeout     time.Duration
		showResults bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Submit programs and wait for their terminal status",
		Long:  "Submits one program per --program flag, then tracks every job concurrently until it reaches DONE, ERROR, or CANCELLED.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			app, err := buildApp(ctx, *opts)
			if err != nil {
				return err
			}
			defer app.shutdown(ctx)

			sources, err := loadPrograms(programs)
			if err != nil {
				return err
			}

			if device == "" {
				device = app.cfg.API.Device
			}
			if device == "" {
				best, err := app.client.LeastBusy(ctx)
				if err != nil {
					return fmt.Errorf("picking a device: %w", err)
				}
				device = best.Name
				fmt.Fprintf(out, "Selected least busy device %s\n", device)
			}

			jobs := make([]*execution.Job, 0, len(sources))
			for _, program := range sources {
				job, err := app.client.SubmitJob(ctx, rest.SubmitRequest{
					Device:  device,
					Program: program,
					Shots:   shots,
				})
				if err != nil {
					return fmt.Errorf("submitting program: %w", err)
				}
				fmt.Fprintf(out, "Submitted job %s to %s\n", job.ID(), device)
				jobs = append(jobs, job)
			}

			if timeout <= 0 {
				timeout = app.cfg.Tracking.WaitTimeout.Std()
			}

			outcomes := app.tracker.WaitForAll(ctx, jobs, timeout)
			if err := reportOutcomes(out, outcomes); err != nil {
				return err
			}

			if showResults {
				return printResults(ctx, cmd, app, outcomes)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&device, "device", "d", "", "Target device (default: config, then least busy)")
	cmd.Flags().StringArrayVarP(&programs, "program", "p", nil, "Program JSON, or @path to a file (repeatable)")
	cmd.Flags().IntVar(&shots, "shots", 1024, "Shots per program")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Per-job wait timeout (default: from config)")
	cmd.Flags().BoolVar(&showResults, "results", false, "Fetch measurement counts for completed jobs")
	_ = cmd.MarkFlagRequired("program")

	return cmd
}

// loadPrograms expands each --program value: @path reads the file,
// anything else is taken inline. Every program must be valid JSON.
func loadPrograms(values []string) ([]string, error) {
	programs := make([]string, 0, len(values))
	for _, v := range values {
		program := v
		if strings.HasPrefix(v, "@") {
			data, err := os.ReadFile(strings.TrimPrefix(v, "@"))
			if err != nil {
				return nil, fmt.Errorf("reading program file: %w", err)
			}
			program = string(data)
		}
		if !json.Valid([]byte(program)) {
			return nil, fmt.Errorf("program %q is not valid JSON", truncate(v, 40))
		}
		programs = append(programs, program)
	}
	return programs, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// reportOutcomes prints one row per job and returns an error when any
// job failed to reach DONE, so the process exits non-zero.
func reportOutcomes(w io.Writer, outcomes []tracking.Outcome) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tDEVICE\tSTATUS\tELAPSED\tERROR")

	failures := 0
	for _, outcome := range outcomes {
		job := outcome.Job

		elapsed := ""
		if completed, ok := job.CompletedAt(); ok {
			elapsed = completed.Sub(job.SubmittedAt()).Round(time.Millisecond).String()
		}
		errText := ""
		if outcome.Err != nil {
			errText = outcome.Err.Error()
		}
		if outcome.Failed() || job.Status() != execution.JobStatusDone {
			failures++
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			job.ID(), job.Device(), job.Status(), elapsed, errText)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d jobs did not complete successfully", failures, len(outcomes))
	}
	return nil
}

func printResults(ctx context.Context, cmd *cobra.Command, app *app, outcomes []tracking.Outcome) error {
	out := cmd.OutOrStdout()
	for _, outcome := range outcomes {
		if outcome.Job.Status() != execution.JobStatusDone {
			continue
		}
		result, err := app.client.JobResult(ctx, outcome.Job.ID())
		if err != nil {
			return fmt.Errorf("fetching result for job %s: %w", outcome.Job.ID(), err)
		}
		counts, err := json.Marshal(result.Counts)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Job %s counts: %s\n", result.JobID, counts)
	}
	return nil
}
