package websocket

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/quantum-beacon/internal/domain/execution"
	"github.com/ahrav/quantum-beacon/pkg/common/logger"
)

var _ execution.StatusStreamer = (*Streamer)(nil)

// Streamer opens status stream sessions on demand. Each StreamStatus call
// produces an independent session, so concurrent wait calls never share a
// connection or any mutable state.
type Streamer struct {
	cfg     *Config
	logger  *logger.Logger
	tracer  trace.Tracer
	metrics SessionMetrics
}

// NewStreamer creates a Streamer for the given endpoint configuration.
func NewStreamer(cfg *Config, log *logger.Logger, metrics SessionMetrics, tracer trace.Tracer) *Streamer {
	return &Streamer{
		cfg:     cfg,
		logger:  log,
		tracer:  tracer,
		metrics: metrics,
	}
}

// StreamStatus dials and authenticates a new session for the job. On
// success the returned stream is live and the caller owns Close; on failure
// the session has already been torn down.
func (s *Streamer) StreamStatus(ctx context.Context, jobID string) (execution.StatusStream, error) {
	sess := NewSession(s.cfg, jobID, s.logger, s.metrics, s.tracer)
	if err := sess.Open(ctx); err != nil {
		_ = sess.Close()
		return nil, err
	}
	return sess, nil
}
