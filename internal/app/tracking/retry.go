package tracking

import (
	"time"

	"github.com/cenkalti/backoff"
)

// RetryState carries the polling cadence of a single wait call: an
// exponential interval between the configured floor and ceiling, plus the
// consecutive failure count that turns repeated poll errors fatal. Each wait
// call owns its own RetryState; nothing here is shared across jobs.
type RetryState struct {
	interval            *backoff.ExponentialBackOff
	consecutiveFailures int
}

func newRetryState(floor, ceiling time.Duration) *RetryState {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = floor
	expBackoff.MaxInterval = ceiling
	// The wait deadline bounds the loop, not elapsed retry time.
	expBackoff.MaxElapsedTime = 0
	expBackoff.Reset()

	return &RetryState{interval: expBackoff}
}

// NextInterval returns the pause before the next poll. Intervals grow
// toward the ceiling and never shrink within one wait call.
func (r *RetryState) NextInterval() time.Duration { return r.interval.NextBackOff() }

// RecordFailure counts one failed poll and returns the consecutive total.
func (r *RetryState) RecordFailure() int {
	r.consecutiveFailures++
	return r.consecutiveFailures
}

// RecordSuccess resets the consecutive failure count. The pacing interval
// keeps growing; only the failure budget resets.
func (r *RetryState) RecordSuccess() { r.consecutiveFailures = 0 }
