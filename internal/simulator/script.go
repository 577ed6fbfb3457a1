package simulator

import (
	"context"
	"time"

	"github.com/ahrav/quantum-beacon/internal/domain/execution"
)

// runLifecycle walks a job through the scripted status sequence. A
// cancellation request observed at a step boundary wins over the
// scripted terminal status, which models the asynchronous cancel of the
// real service: the caller keeps seeing the old status until CANCELLED
// flows through.
func (s *Server) runLifecycle(j *job) {
	for _, next := range []execution.JobStatus{
		execution.JobStatusQueued,
		execution.JobStatusRunning,
	} {
		if !s.pause() {
			return
		}
		if j.cancelPending() {
			s.finish(j, execution.JobStatusCancelled)
			return
		}
		j.setStatus(next)
	}

	if !s.pause() {
		return
	}

	switch {
	case j.cancelPending():
		s.finish(j, execution.JobStatusCancelled)
	case j.fail:
		s.finish(j, execution.JobStatusError)
	default:
		s.finish(j, execution.JobStatusDone)
	}
}

func (s *Server) finish(j *job, terminal execution.JobStatus) {
	if j.setStatus(terminal) {
		s.logger.Debug(context.Background(), "Job reached terminal status",
			"job_id", j.id, "status", terminal)
	}
}

// pause waits one step delay. Returns false when the server is shutting
// down so lifecycles unwind promptly.
func (s *Server) pause() bool {
	t := time.NewTimer(s.cfg.stepDelay())
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-s.done:
		return false
	}
}
