package execution

import "time"

// TimeProvider is an interface that provides a Now method to get the current time.
type TimeProvider interface {
	Now() time.Time
}

// Real implementation for production.
type realTimeProvider struct{}

func (r *realTimeProvider) Now() time.Time { return time.Now() }

// Timeline tracks temporal aspects of a tracked execution.
type Timeline struct {
	submittedAt  time.Time
	completedAt  time.Time
	lastUpdate   time.Time
	timeProvider TimeProvider
}

// NewTimeline creates a new Timeline instance anchored at the provider's
// current time.
func NewTimeline(timeProvider TimeProvider) *Timeline {
	now := timeProvider.Now()
	return &Timeline{
		submittedAt:  now,
		lastUpdate:   now,
		timeProvider: timeProvider,
	}
}

// SubmittedAt returns the time the job was submitted.
func (t *Timeline) SubmittedAt() time.Time { return t.submittedAt }

// CompletedAt returns the time the job reached a terminal status.
func (t *Timeline) CompletedAt() time.Time { return t.completedAt }

// LastUpdate returns the time a status report was last applied.
func (t *Timeline) LastUpdate() time.Time { return t.lastUpdate }

// MarkCompleted records the completion time.
func (t *Timeline) MarkCompleted() {
	t.completedAt = t.timeProvider.Now()
	t.UpdateLastUpdate()
}

// UpdateLastUpdate updates the last update timestamp.
func (t *Timeline) UpdateLastUpdate() {
	t.lastUpdate = t.timeProvider.Now()
}

// IsCompleted checks if the timeline has been marked as completed.
func (t *Timeline) IsCompleted() bool { return !t.completedAt.IsZero() }
