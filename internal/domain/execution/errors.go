package execution

import "errors"

// Status resolution failures fall into a small fixed taxonomy. Transport
// layers wrap these sentinels with call-site detail, the resolver classifies
// them with errors.Is to pick the fallback path, and callers only ever
// observe ErrWaitTimeout or a fatal backend error.
var (
	// ErrChannelUnavailable indicates the push channel could not be
	// established at all: DNS failure, refused connection, or a failed
	// websocket handshake.
	ErrChannelUnavailable = errors.New("status channel unavailable")

	// ErrAuthFailure indicates the backend rejected the channel
	// authentication handshake.
	ErrAuthFailure = errors.New("channel authentication failed")

	// ErrConnectionClosed indicates an established stream dropped before a
	// terminal status was delivered.
	ErrConnectionClosed = errors.New("connection closed mid-stream")

	// ErrWaitTimeout indicates the wait deadline elapsed before the job
	// reached a terminal status.
	ErrWaitTimeout = errors.New("timed out waiting for job completion")

	// ErrMalformedMessage indicates a frame that could not be decoded. Such
	// frames are logged and discarded, never fatal to a wait call.
	ErrMalformedMessage = errors.New("malformed status message")

	// ErrJobNotFound indicates the backend has no job with the given
	// identifier. Not retryable.
	ErrJobNotFound = errors.New("job not found")

	// ErrResultNotReady indicates a result was requested for a job that has
	// not reached DONE yet.
	ErrResultNotReady = errors.New("job result not ready")

	// ErrNoDevices indicates the backend reported no online devices.
	ErrNoDevices = errors.New("no online devices available")
)
