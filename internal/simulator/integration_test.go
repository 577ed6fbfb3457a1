package simulator

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/quantum-beacon/internal/app/tracking"
	"github.com/ahrav/quantum-beacon/internal/domain/execution"
	"github.com/ahrav/quantum-beacon/internal/infra/transport/rest"
	"github.com/ahrav/quantum-beacon/internal/infra/transport/websocket"
	"github.com/ahrav/quantum-beacon/pkg/common/logger"
)

// These tests run the production client stack against the simulator, so
// both sides of the wire contract are covered by the same assertions.

func noopTracer() trace.Tracer { return noop.NewTracerProvider().Tracer("test") }

func newClientStack(t *testing.T, ts *httptest.Server) (*rest.Client, *tracking.Resolver) {
	t.Helper()

	client := rest.NewClient(&rest.Config{
		BaseURL:           ts.URL + "/v1",
		Token:             testToken,
		RequestTimeout:    2 * time.Second,
		RetryMaxElapsed:   time.Second,
		RequestsPerSecond: 200,
		Burst:             200,
	}, logger.Noop(), nil, noopTracer())

	streamer := websocket.NewStreamer(&websocket.Config{
		URL:              "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1",
		Token:            testToken,
		HandshakeTimeout: 2 * time.Second,
		AuthTimeout:      2 * time.Second,
	}, logger.Noop(), nil, noopTracer())

	resolver := tracking.NewResolver(streamer, client, tracking.ResolverConfig{
		InitialPollInterval: 10 * time.Millisecond,
		MaxPollInterval:     50 * time.Millisecond,
	}, logger.Noop(), nil, noopTracer())

	return client, resolver
}

func submitViaClient(t *testing.T, client *rest.Client, program string) *execution.Job {
	t.Helper()

	job, err := client.SubmitJob(context.Background(), rest.SubmitRequest{
		Device:  "sim-5q",
		Program: program,
		Shots:   64,
	})
	require.NoError(t, err)
	require.False(t, job.Done())
	return job
}

func TestClientTracksJobToDoneOverStream(t *testing.T) {
	_, ts := newTestServer(t, Config{StepDelay: 10 * time.Millisecond})
	client, resolver := newClientStack(t, ts)

	job := submitViaClient(t, client, `{"name":"bell"}`)

	require.NoError(t, resolver.WaitForCompletion(context.Background(), job, 5*time.Second))
	assert.Equal(t, execution.JobStatusDone, job.Status())

	result, err := client.JobResult(context.Background(), job.ID())
	require.NoError(t, err)
	assert.Equal(t, job.ID(), result.JobID)
	assert.Equal(t, 64, result.Shots)
}

func TestClientFallsBackToPollingWhenStreamDisabled(t *testing.T) {
	_, ts := newTestServer(t, Config{
		StepDelay: 10 * time.Millisecond,
		Faults:    Faults{DisableStream: true},
	})
	client, resolver := newClientStack(t, ts)

	job := submitViaClient(t, client, `{"name":"bell"}`)

	require.NoError(t, resolver.WaitForCompletion(context.Background(), job, 5*time.Second))
	assert.Equal(t, execution.JobStatusDone, job.Status())
}

func TestClientFallsBackWhenStreamAuthRejected(t *testing.T) {
	_, ts := newTestServer(t, Config{
		StepDelay: 10 * time.Millisecond,
		Faults:    Faults{RejectAuth: true},
	})
	client, resolver := newClientStack(t, ts)

	job := submitViaClient(t, client, `{"name":"bell"}`)

	require.NoError(t, resolver.WaitForCompletion(context.Background(), job, 5*time.Second))
	assert.Equal(t, execution.JobStatusDone, job.Status())
}

func TestClientRecoversFromMidStreamDrop(t *testing.T) {
	_, ts := newTestServer(t, Config{
		StepDelay: 10 * time.Millisecond,
		Faults:    Faults{DropAfterFrames: 1},
	})
	client, resolver := newClientStack(t, ts)

	job := submitViaClient(t, client, `{"name":"bell"}`)

	require.NoError(t, resolver.WaitForCompletion(context.Background(), job, 5*time.Second))
	assert.Equal(t, execution.JobStatusDone, job.Status())
}

func TestClientIgnoresMalformedFrames(t *testing.T) {
	_, ts := newTestServer(t, Config{
		StepDelay: 10 * time.Millisecond,
		Faults:    Faults{MalformedFrames: true},
	})
	client, resolver := newClientStack(t, ts)

	job := submitViaClient(t, client, `{"name":"bell"}`)

	require.NoError(t, resolver.WaitForCompletion(context.Background(), job, 5*time.Second))
	assert.Equal(t, execution.JobStatusDone, job.Status())
}

func TestClientObservesBackendCancellation(t *testing.T) {
	_, ts := newTestServer(t, Config{StepDelay: 40 * time.Millisecond})
	client, resolver := newClientStack(t, ts)

	job := submitViaClient(t, client, `{"name":"bell"}`)

	cancelErr := make(chan error, 1)
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancelErr <- client.CancelJob(context.Background(), job.ID())
	}()

	require.NoError(t, resolver.WaitForCompletion(context.Background(), job, 5*time.Second))
	require.NoError(t, <-cancelErr)
	assert.Equal(t, execution.JobStatusCancelled, job.Status())
}

func TestClientSeesScriptedFailure(t *testing.T) {
	_, ts := newTestServer(t, Config{StepDelay: 10 * time.Millisecond})
	client, resolver := newClientStack(t, ts)

	job := submitViaClient(t, client, `{"name":"bell","fail":true}`)

	require.NoError(t, resolver.WaitForCompletion(context.Background(), job, 5*time.Second))
	assert.Equal(t, execution.JobStatusError, job.Status())

	_, err := client.JobResult(context.Background(), job.ID())
	assert.ErrorIs(t, err, execution.ErrResultNotReady)
}

func TestWaitTimesOutOnStalledJob(t *testing.T) {
	_, ts := newTestServer(t, Config{StepDelay: 10 * time.Second})
	client, resolver := newClientStack(t, ts)

	job := submitViaClient(t, client, `{"name":"bell"}`)

	err := resolver.WaitForCompletion(context.Background(), job, 200*time.Millisecond)
	require.ErrorIs(t, err, execution.ErrWaitTimeout)
	assert.False(t, job.Done())
}

func TestClientPicksLeastBusyDevice(t *testing.T) {
	_, ts := newTestServer(t, Config{StepDelay: time.Second})
	client, _ := newClientStack(t, ts)

	first, err := client.LeastBusy(context.Background())
	require.NoError(t, err)
	assert.True(t, first.Online)
	assert.Zero(t, first.PendingJobs)

	submitViaClient(t, client, `{"name":"bell"}`)
	submitViaClient(t, client, `{"name":"ghz"}`)

	// sim-5q now carries two pending jobs, so the pick moves elsewhere.
	next, err := client.LeastBusy(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, "sim-5q", next.Name)
	assert.Zero(t, next.PendingJobs)
}

func TestTrackerWaitsForFleet(t *testing.T) {
	_, ts := newTestServer(t, Config{StepDelay: 10 * time.Millisecond})
	client, resolver := newClientStack(t, ts)

	jobs := []*execution.Job{
		submitViaClient(t, client, `{"name":"bell"}`),
		submitViaClient(t, client, `{"name":"ghz"}`),
		submitViaClient(t, client, `{"name":"qft"}`),
		submitViaClient(t, client, `{"name":"doomed","fail":true}`),
		submitViaClient(t, client, `{"name":"teleport"}`),
	}

	tracker := tracking.NewTracker(resolver, 3, logger.Noop(), nil, noopTracer())
	outcomes := tracker.WaitForAll(context.Background(), jobs, 5*time.Second)

	require.Len(t, outcomes, len(jobs))
	for i, outcome := range outcomes {
		require.NoError(t, outcome.Err, "job %d", i)
		require.Same(t, jobs[i], outcome.Job)
		assert.True(t, outcome.Job.Done())
	}
	assert.Equal(t, execution.JobStatusError, outcomes[3].Job.Status(),
		"the doomed program must finish in ERROR")
}
