package execution

import (
	"time"
)

// Job tracks a single remote program execution from submission to terminal
// status. The identifier is assigned by the backend at submission, is never
// reused, and is immutable to the client. The status only moves forward and
// never regresses out of a terminal state.
//
// A Job is owned by a single wait call at a time. Running two wait calls for
// the same Job concurrently is unsupported (single writer per job, by
// contract rather than locking); wait calls for different Jobs need no
// coordination at all.
type Job struct {
	id       string
	device   string
	status   JobStatus
	timeline *Timeline
}

// NewJob creates a Job from the identifier and initial status the backend
// returned at submission.
func NewJob(id, device string, status JobStatus) *Job {
	return &Job{
		id:       id,
		device:   device,
		status:   status,
		timeline: NewTimeline(new(realTimeProvider)),
	}
}

// ReconstructJob recreates a Job from stored fields, bypassing creation
// invariants. This should only be used when rehydrating a job tracked in a
// prior session.
func ReconstructJob(id, device string, status JobStatus, timeline *Timeline) *Job {
	return &Job{
		id:       id,
		device:   device,
		status:   status,
		timeline: timeline,
	}
}

// ID returns the backend-assigned identifier for this execution.
func (j *Job) ID() string { return j.id }

// Device returns the name of the device the job was submitted to.
func (j *Job) Device() string { return j.device }

// Status returns the last status applied to the job. After a wait call ends
// in ErrWaitTimeout this is the last observed non-terminal status.
func (j *Job) Status() JobStatus { return j.status }

// Done reports whether the job has reached a terminal status.
func (j *Job) Done() bool { return j.status.IsTerminal() }

// SubmittedAt returns when the job was submitted.
func (j *Job) SubmittedAt() time.Time { return j.timeline.SubmittedAt() }

// CompletedAt returns when the job reached a terminal status.
// A job only has a completion time once it is terminal.
func (j *Job) CompletedAt() (time.Time, bool) {
	if j.status.IsTerminal() {
		return j.timeline.CompletedAt(), true
	}
	return time.Time{}, false
}

// LastUpdateTime returns when a status report was last applied.
func (j *Job) LastUpdateTime() time.Time { return j.timeline.LastUpdate() }

// ApplyStatus resolves an incoming status report against the job and reports
// whether it was accepted. Reports arriving after the job is terminal are
// ignored, so duplicate terminal notifications are harmless no-ops.
func (j *Job) ApplyStatus(incoming JobStatus) bool {
	next, accepted := j.status.Apply(incoming)
	if !accepted {
		return false
	}

	j.status = next
	if next.IsTerminal() {
		j.timeline.MarkCompleted()
	} else {
		j.timeline.UpdateLastUpdate()
	}
	return true
}
