package tracking

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/quantum-beacon/internal/domain/execution"
	"github.com/ahrav/quantum-beacon/pkg/common/logger"
)

// CompletionWaiter blocks until a single job reaches a terminal status.
type CompletionWaiter interface {
	WaitForCompletion(ctx context.Context, job *execution.Job, timeout time.Duration) error
}

var _ CompletionWaiter = (*Resolver)(nil)

// Outcome is the per-job verdict of a tracking run.
type Outcome struct {
	Job *execution.Job
	Err error
}

// Failed reports whether the wait ended without a terminal status.
func (o Outcome) Failed() bool { return o.Err != nil }

// Tracker fans wait calls out over a batch of jobs. Each job's wait owns
// its session and retry state; the only shared piece is the outcome slot it
// writes, so jobs need no cross-coordination and one slow or failing job
// never affects its siblings.
type Tracker struct {
	waiter        CompletionWaiter
	maxConcurrent int

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics TrackerMetrics
}

// NewTracker creates a Tracker. maxConcurrent bounds the number of
// simultaneous wait calls; zero means unbounded.
func NewTracker(waiter CompletionWaiter, maxConcurrent int, log *logger.Logger, metrics TrackerMetrics, tracer trace.Tracer) *Tracker {
	return &Tracker{
		waiter:        waiter,
		maxConcurrent: maxConcurrent,
		logger:        log.With("component", "tracker"),
		tracer:        tracer,
		metrics:       metrics,
	}
}

// WaitForAll tracks every job until terminal status, error, or timeout and
// returns one outcome per job in input order. Individual failures never
// cancel sibling waits; the caller decides what a partial failure means.
func (t *Tracker) WaitForAll(ctx context.Context, jobs []*execution.Job, timeout time.Duration) []Outcome {
	ctx, span := t.tracer.Start(ctx, "tracker.wait_for_all",
		trace.WithAttributes(
			attribute.Int("job_count", len(jobs)),
			attribute.String("timeout", timeout.String()),
		))
	defer span.End()

	if t.metrics != nil {
		t.metrics.IncJobsTracked(ctx, len(jobs))
	}

	outcomes := make([]Outcome, len(jobs))
	g := new(errgroup.Group)
	if t.maxConcurrent > 0 {
		g.SetLimit(t.maxConcurrent)
	}

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			if t.metrics != nil {
				t.metrics.IncActiveWaits(ctx)
				defer t.metrics.DecActiveWaits(ctx)
			}
			outcomes[i] = Outcome{Job: job, Err: t.waiter.WaitForCompletion(ctx, job, timeout)}
			return nil
		})
	}
	_ = g.Wait()

	var failed int
	for _, outcome := range outcomes {
		if outcome.Failed() {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("failed", failed))
	t.logger.Info(ctx, "Tracking run complete", "jobs", len(jobs), "failed", failed)
	return outcomes
}
