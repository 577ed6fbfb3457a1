package execution

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApply_NonTerminalAcceptsIncoming(t *testing.T) {
	tests := []struct {
		name     string
		current  JobStatus
		incoming JobStatus
	}{
		{
			name:     "Initializing to Queued is accepted",
			current:  JobStatusInitializing,
			incoming: JobStatusQueued,
		},
		{
			name:     "Queued to Running is accepted",
			current:  JobStatusQueued,
			incoming: JobStatusRunning,
		},
		{
			name:     "Running to Done is accepted",
			current:  JobStatusRunning,
			incoming: JobStatusDone,
		},
		{
			name:     "Running to Cancelled is accepted",
			current:  JobStatusRunning,
			incoming: JobStatusCancelled,
		},
		{
			name:     "Running to Error is accepted",
			current:  JobStatusRunning,
			incoming: JobStatusError,
		},
		{
			name:     "Queued to Done is accepted without intermediate states",
			current:  JobStatusQueued,
			incoming: JobStatusDone,
		},
		{
			name:     "Running back to Queued is accepted since the backend is authoritative",
			current:  JobStatusRunning,
			incoming: JobStatusQueued,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, accepted := tt.current.Apply(tt.incoming)
			assert.True(t, accepted, "expected %s to accept %s", tt.current, tt.incoming)
			assert.Equal(t, tt.incoming, got, "expected incoming status to win")
		})
	}
}

func TestApply_TerminalRejectsEverything(t *testing.T) {
	tests := []struct {
		name     string
		current  JobStatus
		incoming JobStatus
	}{
		{
			name:     "Done rejects Running",
			current:  JobStatusDone,
			incoming: JobStatusRunning,
		},
		{
			name:     "Done rejects duplicate Done",
			current:  JobStatusDone,
			incoming: JobStatusDone,
		},
		{
			name:     "Cancelled rejects Done",
			current:  JobStatusCancelled,
			incoming: JobStatusDone,
		},
		{
			name:     "Error rejects Queued",
			current:  JobStatusError,
			incoming: JobStatusQueued,
		},
		{
			name:     "Error rejects Cancelled",
			current:  JobStatusError,
			incoming: JobStatusCancelled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, accepted := tt.current.Apply(tt.incoming)
			assert.False(t, accepted, "expected terminal %s to reject %s", tt.current, tt.incoming)
			assert.Equal(t, tt.current, got, "expected terminal status to be unchanged")
		})
	}
}

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		status   JobStatus
		terminal bool
	}{
		{JobStatusInitializing, false},
		{JobStatusQueued, false},
		{JobStatusRunning, false},
		{JobStatusCancelled, true},
		{JobStatusError, true},
		{JobStatusDone, true},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
}

func TestParseJobStatus(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    JobStatus
		wantErr bool
	}{
		{name: "canonical upper case", input: "RUNNING", want: JobStatusRunning},
		{name: "lower case variant", input: "queued", want: JobStatusQueued},
		{name: "legacy COMPLETED maps to Done", input: "COMPLETED", want: JobStatusDone},
		{name: "legacy VALIDATING maps to Initializing", input: "VALIDATING", want: JobStatusInitializing},
		{name: "single l spelling of cancelled", input: "CANCELED", want: JobStatusCancelled},
		{name: "unknown status errors", input: "EXPLODED", wantErr: true},
		{name: "empty status errors", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJobStatus(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrJobStatusUnknown)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
