package execution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTimeProvider struct {
	now time.Time
}

func (m *mockTimeProvider) Now() time.Time { return m.now }

func TestJobApplyStatus_ForwardSequence(t *testing.T) {
	job := NewJob("5f1a2b3c", "sim-24q", JobStatusInitializing)

	sequence := []JobStatus{JobStatusQueued, JobStatusRunning, JobStatusDone}
	for _, s := range sequence {
		assert.True(t, job.ApplyStatus(s), "expected %s to be accepted", s)
	}

	assert.Equal(t, JobStatusDone, job.Status())
	assert.True(t, job.Done())

	_, ok := job.CompletedAt()
	assert.True(t, ok, "terminal job should expose a completion time")
}

func TestJobApplyStatus_DuplicateTerminalIsNoOp(t *testing.T) {
	job := NewJob("5f1a2b3c", "sim-24q", JobStatusRunning)

	require.True(t, job.ApplyStatus(JobStatusDone))
	completedAt, ok := job.CompletedAt()
	require.True(t, ok)

	assert.False(t, job.ApplyStatus(JobStatusDone), "duplicate terminal report should be rejected")
	assert.Equal(t, JobStatusDone, job.Status())

	again, ok := job.CompletedAt()
	require.True(t, ok)
	assert.Equal(t, completedAt, again, "completion time should not move on duplicates")
}

func TestJobApplyStatus_NoRegressionFromTerminal(t *testing.T) {
	tests := []struct {
		name     string
		terminal JobStatus
		incoming JobStatus
	}{
		{name: "Done ignores Running", terminal: JobStatusDone, incoming: JobStatusRunning},
		{name: "Cancelled ignores Queued", terminal: JobStatusCancelled, incoming: JobStatusQueued},
		{name: "Error ignores Done", terminal: JobStatusError, incoming: JobStatusDone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewJob("0d9e8f7a", "lattice-5q", JobStatusRunning)
			require.True(t, job.ApplyStatus(tt.terminal))

			assert.False(t, job.ApplyStatus(tt.incoming))
			assert.Equal(t, tt.terminal, job.Status(), "terminal status must never regress")
		})
	}
}

func TestJobCompletedAt_NonTerminal(t *testing.T) {
	job := NewJob("0d9e8f7a", "lattice-5q", JobStatusQueued)

	_, ok := job.CompletedAt()
	assert.False(t, ok, "non-terminal job has no completion time")
}

func TestReconstructJob(t *testing.T) {
	baseTime := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	timeline := NewTimeline(&mockTimeProvider{now: baseTime})

	job := ReconstructJob("7a6b5c4d", "sim-24q", JobStatusRunning, timeline)

	assert.Equal(t, "7a6b5c4d", job.ID())
	assert.Equal(t, "sim-24q", job.Device())
	assert.Equal(t, JobStatusRunning, job.Status())
	assert.Equal(t, baseTime, job.SubmittedAt())
}
