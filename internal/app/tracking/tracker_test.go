package tracking

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/quantum-beacon/internal/domain/execution"
	"github.com/ahrav/quantum-beacon/pkg/common/logger"
)

// fakeWaiter resolves jobs from a per-job script and records how many waits
// ran at once.
type fakeWaiter struct {
	mu         sync.Mutex
	delay      time.Duration
	failJobs   map[string]error
	inFlight   int
	maxInFlight int
}

func (w *fakeWaiter) WaitForCompletion(_ context.Context, job *execution.Job, _ time.Duration) error {
	w.mu.Lock()
	w.inFlight++
	if w.inFlight > w.maxInFlight {
		w.maxInFlight = w.inFlight
	}
	w.mu.Unlock()

	if w.delay > 0 {
		time.Sleep(w.delay)
	}

	w.mu.Lock()
	w.inFlight--
	w.mu.Unlock()

	if err, ok := w.failJobs[job.ID()]; ok {
		return err
	}
	job.ApplyStatus(execution.JobStatusDone)
	return nil
}

func (w *fakeWaiter) maxConcurrent() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.maxInFlight
}

func newJobs(n int) []*execution.Job {
	jobs := make([]*execution.Job, n)
	for i := range jobs {
		jobs[i] = execution.NewJob(fmt.Sprintf("job-%d", i), "sim-5q", execution.JobStatusQueued)
	}
	return jobs
}

func newTestTracker(waiter CompletionWaiter, maxConcurrent int, metrics TrackerMetrics) *Tracker {
	return NewTracker(waiter, maxConcurrent, logger.Noop(), metrics, noop.NewTracerProvider().Tracer("test"))
}

func TestTrackerOutcomesMatchInputOrder(t *testing.T) {
	waiter := &fakeWaiter{failJobs: map[string]error{
		"job-1": fmt.Errorf("%w: job job-1 last status QUEUED", execution.ErrWaitTimeout),
	}}
	jobs := newJobs(3)

	tracker := newTestTracker(waiter, 0, nil)
	outcomes := tracker.WaitForAll(context.Background(), jobs, time.Second)

	require.Len(t, outcomes, 3)
	for i, outcome := range outcomes {
		assert.Same(t, jobs[i], outcome.Job, "outcome %d out of order", i)
	}

	assert.False(t, outcomes[0].Failed())
	assert.True(t, outcomes[1].Failed())
	assert.ErrorIs(t, outcomes[1].Err, execution.ErrWaitTimeout)
	assert.False(t, outcomes[2].Failed())

	assert.Equal(t, execution.JobStatusDone, outcomes[0].Job.Status())
	assert.Equal(t, execution.JobStatusQueued, outcomes[1].Job.Status())
}

func TestTrackerOneFailureDoesNotCancelSiblings(t *testing.T) {
	waiter := &fakeWaiter{failJobs: map[string]error{
		"job-0": fmt.Errorf("polling job status: backend returned 503"),
	}}
	jobs := newJobs(5)

	tracker := newTestTracker(waiter, 0, nil)
	outcomes := tracker.WaitForAll(context.Background(), jobs, time.Second)

	var failed int
	for _, outcome := range outcomes {
		if outcome.Failed() {
			failed++
		}
	}
	assert.Equal(t, 1, failed)

	for _, outcome := range outcomes[1:] {
		assert.Equal(t, execution.JobStatusDone, outcome.Job.Status())
	}
}

func TestTrackerRunsWaitsConcurrently(t *testing.T) {
	waiter := &fakeWaiter{delay: 40 * time.Millisecond}
	jobs := newJobs(4)

	tracker := newTestTracker(waiter, 0, nil)

	started := time.Now()
	outcomes := tracker.WaitForAll(context.Background(), jobs, time.Second)
	elapsed := time.Since(started)

	require.Len(t, outcomes, 4)
	assert.Less(t, elapsed, 120*time.Millisecond, "waits must overlap, not run serially")
	assert.Equal(t, 4, waiter.maxConcurrent())
}

func TestTrackerHonorsConcurrencyLimit(t *testing.T) {
	waiter := &fakeWaiter{delay: 5 * time.Millisecond}
	jobs := newJobs(6)

	tracker := newTestTracker(waiter, 2, nil)
	outcomes := tracker.WaitForAll(context.Background(), jobs, time.Second)

	require.Len(t, outcomes, 6)
	assert.LessOrEqual(t, waiter.maxConcurrent(), 2)
}

func TestTrackerNoJobs(t *testing.T) {
	tracker := newTestTracker(&fakeWaiter{}, 0, nil)
	outcomes := tracker.WaitForAll(context.Background(), nil, time.Second)
	assert.Empty(t, outcomes)
}

func TestTrackerActiveWaitGaugeBalances(t *testing.T) {
	metrics := &trackerMetricsRecorder{}
	waiter := &fakeWaiter{delay: time.Millisecond}
	jobs := newJobs(3)

	tracker := newTestTracker(waiter, 0, metrics)
	tracker.WaitForAll(context.Background(), jobs, time.Second)

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Zero(t, metrics.active, "every wait must decrement the gauge it incremented")
}
