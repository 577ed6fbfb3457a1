package simulator

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/quantum-beacon/internal/domain/execution"
)

func dialStream(t *testing.T, baseURL, jobID string) (*gws.Conn, *http.Response, error) {
	t.Helper()

	wsURL := fmt.Sprintf("%s/v1/jobs/%s/status/stream",
		"ws"+strings.TrimPrefix(baseURL, "http"), jobID)
	conn, resp, err := gws.DefaultDialer.Dial(wsURL, nil)
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

func authenticate(t *testing.T, conn *gws.Conn, token string) frame {
	t.Helper()

	require.NoError(t, conn.WriteJSON(frame{Type: frameTypeAuth, Data: token}))

	var ack frame
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, frameTypeAuth, ack.Type)
	return ack
}

// statusRank orders statuses along the scripted lifecycle so tests can
// assert streams never move backwards.
func statusRank(t *testing.T, status string) int {
	t.Helper()
	switch status {
	case execution.JobStatusInitializing.String():
		return 0
	case execution.JobStatusQueued.String():
		return 1
	case execution.JobStatusRunning.String():
		return 2
	case execution.JobStatusCancelled.String(), execution.JobStatusError.String(), execution.JobStatusDone.String():
		return 3
	default:
		t.Fatalf("unexpected status %q", status)
		return -1
	}
}

func TestStreamPushesLifecycleThenCloses(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	job := submitJob(t, ts.URL, "sim-5q", `{"name":"bell"}`)

	conn, _, err := dialStream(t, ts.URL, job.ID)
	require.NoError(t, err)

	ack := authenticate(t, conn, testToken)
	require.Equal(t, authOK, ack.Data)

	var statuses []string
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == frameTypeClose {
			break
		}
		require.Equal(t, frameTypeStatus, f.Type)
		assert.Equal(t, job.ID, f.JobID)

		status, ok := f.Data.(string)
		require.True(t, ok, "status frame data must be a string, got %T", f.Data)
		statuses = append(statuses, status)
	}

	require.NotEmpty(t, statuses)
	assert.Equal(t, execution.JobStatusDone.String(), statuses[len(statuses)-1])
	for i := 1; i < len(statuses); i++ {
		assert.Less(t, statusRank(t, statuses[i-1]), statusRank(t, statuses[i]),
			"stream must never move backwards: %v", statuses)
	}

	// After the close frame the server completes the close handshake.
	_, _, err = conn.ReadMessage()
	assert.True(t, gws.IsCloseError(err, gws.CloseNormalClosure), "want normal closure, got %v", err)
}

func TestStreamSendsCurrentStatusToLateSubscriber(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	job := submitJob(t, ts.URL, "sim-5q", `{"name":"bell"}`)
	waitForStatus(t, ts.URL, job.ID, execution.JobStatusDone.String())

	conn, _, err := dialStream(t, ts.URL, job.ID)
	require.NoError(t, err)
	authenticate(t, conn, testToken)

	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, frameTypeStatus, f.Type)
	assert.Equal(t, execution.JobStatusDone.String(), f.Data)

	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, frameTypeClose, f.Type)
}

func TestStreamRejectsWrongToken(t *testing.T) {
	_, ts := newTestServer(t, Config{StepDelay: time.Second})
	job := submitJob(t, ts.URL, "sim-5q", `{"name":"bell"}`)

	conn, _, err := dialStream(t, ts.URL, job.ID)
	require.NoError(t, err)

	ack := authenticate(t, conn, "wrong-token")
	assert.Equal(t, "invalid token", ack.Data)
}

func TestStreamRejectAuthFault(t *testing.T) {
	_, ts := newTestServer(t, Config{StepDelay: time.Second, Faults: Faults{RejectAuth: true}})
	job := submitJob(t, ts.URL, "sim-5q", `{"name":"bell"}`)

	conn, _, err := dialStream(t, ts.URL, job.ID)
	require.NoError(t, err)

	ack := authenticate(t, conn, testToken)
	assert.Equal(t, "invalid token", ack.Data)
}

func TestStreamFirstFrameMustAuthenticate(t *testing.T) {
	_, ts := newTestServer(t, Config{StepDelay: time.Second})
	job := submitJob(t, ts.URL, "sim-5q", `{"name":"bell"}`)

	conn, _, err := dialStream(t, ts.URL, job.ID)
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(frame{Type: frameTypeStatus, Data: "QUEUED"}))

	var ack frame
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, frameTypeAuth, ack.Type)
	assert.Equal(t, "invalid token", ack.Data)
}

func TestStreamMalformedFrameFault(t *testing.T) {
	_, ts := newTestServer(t, Config{Faults: Faults{MalformedFrames: true}})
	job := submitJob(t, ts.URL, "sim-5q", `{"name":"bell"}`)

	conn, _, err := dialStream(t, ts.URL, job.ID)
	require.NoError(t, err)
	authenticate(t, conn, testToken)

	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "{malformed", string(payload))

	// Real frames still follow the junk one.
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, frameTypeStatus, f.Type)
}

func TestStreamDropAfterFramesFault(t *testing.T) {
	_, ts := newTestServer(t, Config{
		StepDelay: 20 * time.Millisecond,
		Faults:    Faults{DropAfterFrames: 2},
	})
	job := submitJob(t, ts.URL, "sim-5q", `{"name":"bell"}`)

	conn, _, err := dialStream(t, ts.URL, job.ID)
	require.NoError(t, err)
	authenticate(t, conn, testToken)

	for i := 0; i < 2; i++ {
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		require.Equal(t, frameTypeStatus, f.Type)
	}

	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.False(t, gws.IsCloseError(err, gws.CloseNormalClosure),
		"dropped stream must not end with a clean close, got %v", err)
}

func TestStreamDisabledRefusesUpgrade(t *testing.T) {
	_, ts := newTestServer(t, Config{Faults: Faults{DisableStream: true}})
	job := submitJob(t, ts.URL, "sim-5q", `{"name":"bell"}`)

	_, resp, err := dialStream(t, ts.URL, job.ID)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStreamUnknownJobRefusesUpgrade(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	_, resp, err := dialStream(t, ts.URL, "no-such-job")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
