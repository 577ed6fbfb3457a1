// Package websocket implements the push channel for job status resolution.
// A Session owns one websocket connection streaming status updates for a
// single job: it dials, performs the in-band authentication handshake, and
// feeds decoded updates to the wait call that owns it. Sessions are
// single-use: once a session ends, for any reason, the next attempt needs a
// fresh one.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/quantum-beacon/internal/domain/execution"
	"github.com/ahrav/quantum-beacon/pkg/common/logger"
	"github.com/ahrav/quantum-beacon/pkg/common/timeutil"
)

var _ execution.StatusStream = (*Session)(nil)

// SessionMetrics defines the metrics recorded by status stream sessions.
type SessionMetrics interface {
	// IncFrameSent increments the counter for frames sent of a specific type.
	IncFrameSent(ctx context.Context, frameType string)

	// IncFrameReceived increments the counter for frames received of a specific type.
	IncFrameReceived(ctx context.Context, frameType string)

	// IncFrameDiscarded increments the counter for frames dropped without
	// being applied, keyed by the discard reason.
	IncFrameDiscarded(ctx context.Context, reason string)

	// IncSessionError increments the counter for sessions ending in a given
	// error kind.
	IncSessionError(ctx context.Context, kind string)
}

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultAuthTimeout      = 10 * time.Second

	// closeGraceWait bounds the best-effort close handshake on teardown.
	closeGraceWait = time.Second

	// statusBuffer absorbs short bursts of server pushes so the read loop
	// is not lockstepped with the consumer.
	statusBuffer = 16
)

// Config holds the dial parameters for status stream sessions.
type Config struct {
	// URL is the websocket endpoint base, e.g. wss://api.example.com/v1.
	URL string

	// Token authenticates the stream via the in-band handshake.
	Token string

	// HandshakeTimeout bounds the websocket dial. Defaults to 10s.
	HandshakeTimeout time.Duration

	// AuthTimeout bounds the wait for the server's handshake response.
	// Defaults to 10s.
	AuthTimeout time.Duration
}

// Session is one single-use websocket connection streaming status updates
// for a single job. It is owned by exactly one wait call; nothing about a
// Session is shared across jobs or across attempts.
type Session struct {
	cfg   *Config
	jobID string

	dialer *gws.Dialer

	connMu sync.Mutex
	conn   *gws.Conn

	stateMu       sync.RWMutex
	state         SessionState
	readerStarted bool

	updates    chan execution.StatusUpdate
	readerDone chan struct{}

	// closeSignal unblocks the read loop's channel sends once teardown
	// begins, so Close never deadlocks against a consumer that stopped
	// reading.
	closeSignal chan struct{}
	closed      bool
	closedLock  sync.Mutex

	errMu     sync.Mutex
	streamErr error

	timeProvider timeutil.Provider
	logger       *logger.Logger
	tracer       trace.Tracer
	metrics      SessionMetrics
}

// NewSession creates a disconnected session for the given job. Open performs
// the actual dial and handshake.
func NewSession(cfg *Config, jobID string, log *logger.Logger, metrics SessionMetrics, tracer trace.Tracer) *Session {
	handshake := cfg.HandshakeTimeout
	if handshake <= 0 {
		handshake = defaultHandshakeTimeout
	}

	return &Session{
		cfg:          cfg,
		jobID:        jobID,
		dialer:       &gws.Dialer{HandshakeTimeout: handshake},
		state:        SessionStateDisconnected,
		updates:      make(chan execution.StatusUpdate, statusBuffer),
		readerDone:   make(chan struct{}),
		closeSignal:  make(chan struct{}),
		timeProvider: timeutil.Default(),
		logger:       log.With("component", "websocket_session", "job_id", jobID),
		tracer:       tracer,
		metrics:      metrics,
	}
}

// Open dials the stream endpoint and runs the authentication handshake. On
// success the session is STREAMING and Updates carries status reports until
// the stream ends. Failures are classified into the channel error taxonomy:
// ErrChannelUnavailable when no connection could be established,
// ErrAuthFailure when the backend rejected the handshake. A context deadline
// expiring mid-open surfaces as the context's error so the caller can
// enforce its own wait budget.
func (s *Session) Open(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "websocket_session.open",
		trace.WithAttributes(
			attribute.String("job_id", s.jobID),
			attribute.String("endpoint", s.cfg.URL),
		))
	defer span.End()

	if err := s.transition(ctx, SessionStateConnecting); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session not reusable")
		return fmt.Errorf("%w: %v", execution.ErrChannelUnavailable, err)
	}

	endpoint, err := streamURL(s.cfg.URL, s.jobID)
	if err != nil {
		s.fail(ctx, span, "unavailable", err)
		return fmt.Errorf("%w: %v", execution.ErrChannelUnavailable, err)
	}

	conn, _, err := s.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		s.fail(ctx, span, "unavailable", err)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: dialing %s: %v", execution.ErrChannelUnavailable, endpoint, err)
	}
	s.setConn(conn)
	span.AddEvent("connected")

	if err := s.transition(ctx, SessionStateAuthenticating); err != nil {
		s.teardownConn()
		return fmt.Errorf("%w: %v", execution.ErrChannelUnavailable, err)
	}

	if err := s.authenticate(ctx); err != nil {
		s.fail(ctx, span, errorKind(err), err)
		s.teardownConn()
		return err
	}
	span.AddEvent("authenticated")

	if err := s.transition(ctx, SessionStateStreaming); err != nil {
		s.teardownConn()
		return fmt.Errorf("%w: %v", execution.ErrChannelUnavailable, err)
	}

	s.stateMu.Lock()
	s.readerStarted = true
	s.stateMu.Unlock()
	go s.receiveLoop()

	s.logger.Debug(ctx, "Status stream established")
	return nil
}

// authenticate sends the single authentication frame and waits for the
// backend's response. Frames arriving before the handshake completes are
// discarded with a warning.
func (s *Session) authenticate(ctx context.Context) error {
	frame, err := newAuthFrame(s.cfg.Token)
	if err != nil {
		return fmt.Errorf("%w: %v", execution.ErrChannelUnavailable, err)
	}

	conn := s.connection()
	if err := conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("%w: sending authentication: %v", execution.ErrChannelUnavailable, err)
	}
	if s.metrics != nil {
		s.metrics.IncFrameSent(ctx, FrameTypeAuthentication)
	}

	authTimeout := s.cfg.AuthTimeout
	if authTimeout <= 0 {
		authTimeout = defaultAuthTimeout
	}
	deadline := s.timeProvider.Now().Add(authTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %v", execution.ErrChannelUnavailable, err)
	}
	// Streaming reads block indefinitely; only the handshake is bounded.
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: awaiting authentication response: %v", execution.ErrChannelUnavailable, err)
		}

		resp, ok := s.decodeFrame(ctx, data)
		if !ok {
			continue
		}

		if resp.Type != FrameTypeAuthentication {
			s.logger.Warn(ctx, "Discarding frame received before authentication completed",
				"frame_type", resp.Type)
			if s.metrics != nil {
				s.metrics.IncFrameDiscarded(ctx, "pre_auth")
			}
			continue
		}

		ack, err := resp.text()
		if err != nil {
			return fmt.Errorf("%w: unreadable authentication response", execution.ErrAuthFailure)
		}
		if ack != authAccepted {
			return fmt.Errorf("%w: %s", execution.ErrAuthFailure, ack)
		}
		return nil
	}
}

// receiveLoop reads frames until the stream ends, feeding decoded status
// updates to the owning wait call. It runs on its own goroutine; its exit
// closes Updates.
func (s *Session) receiveLoop() {
	ctx := context.Background()
	// Updates closes before readerDone so anyone unblocked by Close observes
	// a closed stream.
	defer close(s.readerDone)
	defer close(s.updates)

	for {
		_, data, err := s.connection().ReadMessage()
		if err != nil {
			s.finish(ctx, err)
			return
		}

		frame, ok := s.decodeFrame(ctx, data)
		if !ok {
			continue
		}

		switch frame.Type {
		case FrameTypeStatus:
			s.handleStatus(ctx, frame)

		case FrameTypeClose:
			s.logger.Debug(ctx, "Server announced stream close")
			s.settle()
			return

		case FrameTypeError:
			text, terr := frame.text()
			if terr != nil {
				text = "unreadable error payload"
			}
			s.setErr(fmt.Errorf("%w: server reported: %s", execution.ErrConnectionClosed, text))
			s.toClosedError(ctx, "connection_closed")
			return

		default:
			s.logger.Warn(ctx, "Discarding unexpected frame", "frame_type", frame.Type)
			if s.metrics != nil {
				s.metrics.IncFrameDiscarded(ctx, "unexpected_type")
			}
		}
	}
}

// handleStatus validates and forwards one status frame. Frames for a
// different job or with undecodable payloads are dropped rather than failing
// the stream.
func (s *Session) handleStatus(ctx context.Context, frame Frame) {
	if frame.JobID != "" && frame.JobID != s.jobID {
		s.logger.Warn(ctx, "Discarding status frame for different job",
			"frame_job_id", frame.JobID)
		if s.metrics != nil {
			s.metrics.IncFrameDiscarded(ctx, "job_mismatch")
		}
		return
	}

	status, err := frame.status()
	if err != nil {
		s.logger.Warn(ctx, "Discarding malformed status frame", "error", err)
		if s.metrics != nil {
			s.metrics.IncFrameDiscarded(ctx, "malformed")
		}
		return
	}

	select {
	case s.updates <- execution.StatusUpdate{JobID: s.jobID, Status: status}:
	case <-s.closeSignal:
	}
}

func (s *Session) decodeFrame(ctx context.Context, data []byte) (Frame, bool) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		s.logger.Warn(ctx, "Discarding undecodable frame",
			"error", fmt.Errorf("%w: %v", execution.ErrMalformedMessage, err))
		if s.metrics != nil {
			s.metrics.IncFrameDiscarded(ctx, "malformed")
		}
		return Frame{}, false
	}
	if s.metrics != nil {
		s.metrics.IncFrameReceived(ctx, f.Type)
	}
	return f, true
}

// finish classifies the read error that ended the stream. A teardown we
// initiated ourselves and a clean server close both end with a nil stream
// error; an unexpected drop is classified as ErrConnectionClosed.
func (s *Session) finish(ctx context.Context, err error) {
	if s.isClosed() {
		s.settle()
		return
	}

	if gws.IsCloseError(err, gws.CloseNormalClosure, gws.CloseGoingAway) {
		s.logger.Debug(ctx, "Stream closed cleanly by server")
		s.settle()
		return
	}

	s.setErr(fmt.Errorf("%w: %v", execution.ErrConnectionClosed, err))
	s.toClosedError(ctx, "connection_closed")
}

// Updates returns the stream of decoded status reports in server-send
// order. The channel is closed when the stream ends for any reason.
func (s *Session) Updates() <-chan execution.StatusUpdate { return s.updates }

// Err returns the error that ended the stream, or nil after a clean close.
// Only meaningful once Updates has been closed.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.streamErr
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Close tears down the session: it signals the read loop, runs a
// best-effort close handshake, releases the connection, and waits for the
// reader to drain. Always safe to call, from any goroutine, repeatedly.
func (s *Session) Close() error {
	s.closedLock.Lock()
	if s.closed {
		s.closedLock.Unlock()
		return nil
	}
	s.closed = true
	close(s.closeSignal)
	s.closedLock.Unlock()

	conn := s.connection()
	if conn == nil {
		s.settle()
		return nil
	}

	deadline := s.timeProvider.Now().Add(closeGraceWait)
	_ = conn.WriteControl(gws.CloseMessage, gws.FormatCloseMessage(gws.CloseNormalClosure, ""), deadline)
	_ = conn.Close()

	s.stateMu.RLock()
	started := s.readerStarted
	s.stateMu.RUnlock()
	if started {
		<-s.readerDone
	}

	s.settle()
	return nil
}

func (s *Session) isClosed() bool {
	s.closedLock.Lock()
	defer s.closedLock.Unlock()
	return s.closed
}

func (s *Session) setConn(conn *gws.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.conn = conn
}

func (s *Session) connection() *gws.Conn {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn
}

// teardownConn releases the connection on Open's error paths without
// marking the session closed, so Close stays safe to call afterwards.
func (s *Session) teardownConn() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

func (s *Session) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	s.streamErr = err
}

func (s *Session) transition(ctx context.Context, target SessionState) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if err := s.state.ValidateTransition(target); err != nil {
		return err
	}
	s.logger.Debug(ctx, "Session state transition", "from", s.state, "to", target)
	s.state = target
	return nil
}

// toClosedError moves the session to CLOSED_ERROR and records the error kind.
func (s *Session) toClosedError(ctx context.Context, kind string) {
	s.stateMu.Lock()
	if s.state.IsValidTransition(SessionStateClosedError) {
		s.state = SessionStateClosedError
	}
	s.stateMu.Unlock()

	if s.metrics != nil {
		s.metrics.IncSessionError(ctx, kind)
	}
}

// settle lands the session in DISCONNECTED unless it already ended in
// CLOSED_ERROR.
func (s *Session) settle() {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	switch s.state {
	case SessionStateDisconnected, SessionStateClosedError:
	default:
		s.state = SessionStateDisconnected
	}
}

// fail records an Open failure on the span and moves the session to
// CLOSED_ERROR.
func (s *Session) fail(ctx context.Context, span trace.Span, kind string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, kind)
	s.toClosedError(ctx, kind)
}

// errorKind maps a classified channel error to its metric label.
func errorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, execution.ErrAuthFailure):
		return "auth_failure"
	case errors.Is(err, execution.ErrConnectionClosed):
		return "connection_closed"
	default:
		return "unavailable"
	}
}

func streamURL(base, jobID string) (string, error) {
	endpoint, err := url.JoinPath(base, "jobs", jobID, "status", "stream")
	if err != nil {
		return "", fmt.Errorf("building stream url: %w", err)
	}
	return endpoint, nil
}
