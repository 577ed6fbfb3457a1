package execution

import "context"

// StatusUpdate is one status report delivered by either channel.
type StatusUpdate struct {
	JobID  string
	Status JobStatus
}

// StatusStream is an open push-channel stream of status updates for a single
// job. A stream is owned by exactly one wait call and is never shared.
type StatusStream interface {
	// Updates returns the stream of decoded status reports in server-send
	// order. The channel is closed when the stream ends for any reason.
	Updates() <-chan StatusUpdate

	// Err returns the error that ended the stream once Updates is closed.
	// It returns nil after a clean server close.
	Err() error

	// Close tears down the stream and releases the underlying connection.
	// It is idempotent and always safe to call.
	Close() error
}

// StatusStreamer opens push-channel streams. Each call produces an
// independent stream instance; the caller owns its lifecycle.
type StatusStreamer interface {
	StreamStatus(ctx context.Context, jobID string) (StatusStream, error)
}

// StatusPoller fetches a point-in-time status over the polling path. It must
// be safe to call repeatedly for the same job.
type StatusPoller interface {
	JobStatus(ctx context.Context, jobID string) (JobStatus, error)
}

// JobCanceller requests backend cancellation of a job. Cancellation is an
// asynchronous request: the resulting CANCELLED status arrives through the
// normal status channels rather than being applied locally.
type JobCanceller interface {
	CancelJob(ctx context.Context, jobID string) error
}
