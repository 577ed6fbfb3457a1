// Package tracking implements the status resolution pipeline for
// asynchronously executed jobs. A Resolver drives one wait call to its
// terminal status over two transport channels (websocket push with HTTP
// polling fallback); a Tracker fans wait calls out over a batch of jobs.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/quantum-beacon/internal/domain/execution"
	"github.com/ahrav/quantum-beacon/pkg/common/logger"
	"github.com/ahrav/quantum-beacon/pkg/common/timeutil"
)

const (
	defaultInitialPollInterval = 2 * time.Second
	defaultMaxPollInterval     = 30 * time.Second
	defaultMaxPollFailures     = 5
)

// ResolverConfig tunes the polling fallback of a wait call.
type ResolverConfig struct {
	// InitialPollInterval is the floor of the poll pacing interval. Must be
	// positive; the resolver never busy-loops. Defaults to 2s.
	InitialPollInterval time.Duration

	// MaxPollInterval is the ceiling of the poll pacing interval.
	// Defaults to 30s.
	MaxPollInterval time.Duration

	// MaxPollFailures is the number of consecutive poll failures tolerated
	// before the wait call fails. Defaults to 5.
	MaxPollFailures int
}

// Resolver drives a single wait call to completion. It attempts the push
// channel exactly once, applies every received status through the job's
// idempotent apply rule, and falls back to bounded-backoff HTTP polling for
// the remainder of the deadline when the push channel fails anywhere.
type Resolver struct {
	streamer execution.StatusStreamer
	poller   execution.StatusPoller

	initialPollInterval time.Duration
	maxPollInterval     time.Duration
	maxPollFailures     int

	timeProvider timeutil.Provider
	logger       *logger.Logger
	tracer       trace.Tracer
	metrics      TrackerMetrics
}

// NewResolver creates a Resolver using the given transport channels.
func NewResolver(
	streamer execution.StatusStreamer,
	poller execution.StatusPoller,
	cfg ResolverConfig,
	log *logger.Logger,
	metrics TrackerMetrics,
	tracer trace.Tracer,
) *Resolver {
	floor := cfg.InitialPollInterval
	if floor <= 0 {
		floor = defaultInitialPollInterval
	}
	ceiling := cfg.MaxPollInterval
	if ceiling <= 0 {
		ceiling = defaultMaxPollInterval
	}
	if ceiling < floor {
		ceiling = floor
	}
	maxFailures := cfg.MaxPollFailures
	if maxFailures <= 0 {
		maxFailures = defaultMaxPollFailures
	}

	return &Resolver{
		streamer:            streamer,
		poller:              poller,
		initialPollInterval: floor,
		maxPollInterval:     ceiling,
		maxPollFailures:     maxFailures,
		timeProvider:        timeutil.Default(),
		logger:              log.With("component", "status_resolver"),
		tracer:              tracer,
		metrics:             metrics,
	}
}

// WaitForCompletion blocks until the job reaches a terminal status, the
// timeout elapses, or a fatal backend error occurs. A job that is already
// terminal returns immediately. The timeout is a wall-clock deadline over
// the whole call, both channels included; when it elapses the call returns
// ErrWaitTimeout and the job's last known status stays visible via
// Job.Status. Exactly one goroutine may wait on a given job at a time.
func (r *Resolver) WaitForCompletion(ctx context.Context, job *execution.Job, timeout time.Duration) error {
	ctx, span := r.tracer.Start(ctx, "resolver.wait_for_completion",
		trace.WithAttributes(
			attribute.String("job_id", job.ID()),
			attribute.String("initial_status", job.Status().String()),
			attribute.String("timeout", timeout.String()),
		))
	defer span.End()

	if job.Done() {
		return nil
	}

	start := r.timeProvider.Now()
	deadline := start.Add(timeout)
	if r.metrics != nil {
		defer func() {
			r.metrics.ObserveWaitDuration(ctx, r.timeProvider.Now().Sub(start))
		}()
	}

	if !start.Before(deadline) {
		return r.timedOut(ctx, span, job)
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	completed, err := r.consumeStream(waitCtx, span, job)
	if err != nil {
		return err
	}
	if completed {
		return nil
	}

	return r.pollRemainder(waitCtx, span, job, deadline)
}

// consumeStream makes the wait call's single push-channel attempt. It
// returns (true, nil) when the stream delivered a terminal status, and
// (false, nil) when the caller should fall back to polling. Only
// caller-initiated cancellation is fatal here; every channel failure mode
// degrades to the fallback.
func (r *Resolver) consumeStream(ctx context.Context, span trace.Span, job *execution.Job) (bool, error) {
	stream, err := r.streamer.StreamStatus(ctx, job.ID())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return false, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return false, nil
		}
		r.fellBack(ctx, span, job, fallbackReason(err), err)
		return false, nil
	}
	// The session is owned by this wait call and closed on every exit path.
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			r.logger.Warn(ctx, "Closing status stream", "job_id", job.ID(), "error", cerr)
		}
	}()
	span.AddEvent("stream_established")

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return false, ctx.Err()
			}
			// Deadline: the poll loop's top-of-iteration check reports it.
			return false, nil

		case update, ok := <-stream.Updates():
			if !ok {
				reason := "clean_close"
				if serr := stream.Err(); serr != nil {
					reason = fallbackReason(serr)
					r.fellBack(ctx, span, job, reason, serr)
				} else {
					r.fellBack(ctx, span, job, reason, nil)
				}
				return false, nil
			}

			if update.JobID != "" && update.JobID != job.ID() {
				r.logger.Warn(ctx, "Ignoring status update for different job",
					"job_id", job.ID(), "update_job_id", update.JobID)
				continue
			}

			r.applyUpdate(ctx, job, update.Status, "websocket")
			if job.Done() {
				r.finishWait(ctx, span, job, "websocket")
				return true, nil
			}
		}
	}
}

// pollRemainder polls the status endpoint until terminal status, deadline,
// or exhausted failure budget. The deadline is re-checked at the top of
// every iteration.
func (r *Resolver) pollRemainder(ctx context.Context, span trace.Span, job *execution.Job, deadline time.Time) error {
	span.AddEvent("polling_started")
	retry := newRetryState(r.initialPollInterval, r.maxPollInterval)

	for {
		if !r.timeProvider.Now().Before(deadline) {
			return r.timedOut(ctx, span, job)
		}

		status, err := r.poller.JobStatus(ctx, job.ID())
		switch {
		case err == nil:
			retry.RecordSuccess()
			r.applyUpdate(ctx, job, status, "poll")
			if job.Done() {
				r.finishWait(ctx, span, job, "poll")
				return nil
			}

		case errors.Is(err, execution.ErrJobNotFound):
			span.RecordError(err)
			span.SetStatus(codes.Error, "job not found")
			return err

		case errors.Is(err, context.Canceled):
			return err

		case errors.Is(err, context.DeadlineExceeded):
			return r.timedOut(ctx, span, job)

		default:
			failures := retry.RecordFailure()
			r.logger.Warn(ctx, "Status poll failed",
				"job_id", job.ID(), "error", err, "consecutive_failures", failures)
			if failures >= r.maxPollFailures {
				span.RecordError(err)
				span.SetStatus(codes.Error, "poll retries exhausted")
				return fmt.Errorf("polling job status: %w", err)
			}
		}

		if err := r.pause(ctx, retry.NextInterval()); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			// Deadline fired mid-pause; the top-of-loop check reports it.
		}
	}
}

// pause sleeps between polls, honoring cancellation.
func (r *Resolver) pause(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *Resolver) applyUpdate(ctx context.Context, job *execution.Job, status execution.JobStatus, channel string) {
	if accepted := job.ApplyStatus(status); !accepted {
		r.logger.Debug(ctx, "Status update ignored, job already terminal",
			"job_id", job.ID(), "incoming", status)
		return
	}
	if r.metrics != nil {
		r.metrics.IncStatusUpdate(ctx, channel, status.String())
	}
	r.logger.Debug(ctx, "Job status updated",
		"job_id", job.ID(), "status", status, "channel", channel)
}

func (r *Resolver) fellBack(ctx context.Context, span trace.Span, job *execution.Job, reason string, err error) {
	if err != nil {
		r.logger.Warn(ctx, "Push channel failed, falling back to polling",
			"job_id", job.ID(), "reason", reason, "error", err)
	} else {
		r.logger.Debug(ctx, "Push channel closed without terminal status, falling back to polling",
			"job_id", job.ID())
	}
	span.AddEvent("channel_fallback", trace.WithAttributes(attribute.String("reason", reason)))
	if r.metrics != nil {
		r.metrics.IncChannelFallback(ctx, reason)
	}
}

func (r *Resolver) finishWait(ctx context.Context, span trace.Span, job *execution.Job, channel string) {
	span.AddEvent("terminal_status", trace.WithAttributes(
		attribute.String("status", job.Status().String()),
		attribute.String("channel", channel),
	))
	if r.metrics != nil {
		r.metrics.IncWaitOutcome(ctx, channel, job.Status().String())
	}
	r.logger.Info(ctx, "Job reached terminal status",
		"job_id", job.ID(), "status", job.Status(), "channel", channel)
}

func (r *Resolver) timedOut(ctx context.Context, span trace.Span, job *execution.Job) error {
	span.AddEvent("wait_timeout", trace.WithAttributes(
		attribute.String("last_status", job.Status().String())))
	if r.metrics != nil {
		r.metrics.IncWaitOutcome(ctx, "none", "timeout")
	}
	r.logger.Warn(ctx, "Timed out waiting for job completion",
		"job_id", job.ID(), "last_status", job.Status())
	return fmt.Errorf("%w: job %s last status %s", execution.ErrWaitTimeout, job.ID(), job.Status())
}

// fallbackReason maps a channel failure to its metric label.
func fallbackReason(err error) string {
	switch {
	case errors.Is(err, execution.ErrAuthFailure):
		return "auth_failure"
	case errors.Is(err, execution.ErrConnectionClosed):
		return "connection_closed"
	case errors.Is(err, execution.ErrChannelUnavailable):
		return "unavailable"
	default:
		return "unknown"
	}
}
