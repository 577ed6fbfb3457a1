package execution

import (
	"errors"
	"fmt"
)

// JobStatus represents the lifecycle state of a remote program execution as
// reported by the backend. The client treats the backend as the source of
// truth for forward progress and only enforces that terminal states are
// final.
type JobStatus string

// ErrJobStatusUnknown is returned when a reported status does not map to a
// known lifecycle state.
var ErrJobStatusUnknown = errors.New("job status unknown")

const (
	// JobStatusInitializing indicates the backend is validating and preparing
	// the submitted program.
	JobStatusInitializing JobStatus = "INITIALIZING"

	// JobStatusQueued indicates the job is waiting for device time.
	JobStatusQueued JobStatus = "QUEUED"

	// JobStatusRunning indicates the job is executing on the device.
	JobStatusRunning JobStatus = "RUNNING"

	// JobStatusCancelled indicates the job was cancelled before it could
	// complete. Terminal.
	JobStatusCancelled JobStatus = "CANCELLED"

	// JobStatusError indicates the execution failed. Terminal.
	JobStatusError JobStatus = "ERROR"

	// JobStatusDone indicates the execution completed successfully. Terminal.
	JobStatusDone JobStatus = "DONE"
)

// String returns the string representation of the JobStatus.
func (s JobStatus) String() string { return string(s) }

// IsTerminal reports whether the status is final. Once a job reaches a
// terminal status no further transitions are accepted.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCancelled, JobStatusError, JobStatusDone:
		return true
	default:
		return false
	}
}

// Apply resolves an incoming status report against the current status. The
// report is accepted iff the current status is non-terminal; when accepted,
// the incoming status wins unconditionally since the backend is authoritative
// for forward progress. Duplicate or late reports against an already-terminal
// status are rejected without error, which makes convergence idempotent
// regardless of which channel delivered the report or in what order.
func (s JobStatus) Apply(incoming JobStatus) (JobStatus, bool) {
	if s.IsTerminal() {
		return s, false
	}
	return incoming, true
}

// ParseJobStatus converts a status string as found on the wire to a
// JobStatus. It accepts the canonical upper-case form plus the lower-case and
// legacy variants older backend versions emit.
func ParseJobStatus(v string) (JobStatus, error) {
	switch v {
	case "INITIALIZING", "initializing", "CREATING", "VALIDATING":
		return JobStatusInitializing, nil
	case "QUEUED", "queued", "PENDING_IN_QUEUE":
		return JobStatusQueued, nil
	case "RUNNING", "running":
		return JobStatusRunning, nil
	case "CANCELLED", "cancelled", "CANCELED":
		return JobStatusCancelled, nil
	case "ERROR", "error", "FAILED":
		return JobStatusError, nil
	case "DONE", "done", "COMPLETED":
		return JobStatusDone, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrJobStatusUnknown, v)
	}
}
