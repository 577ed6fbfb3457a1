package simulator

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	gws "github.com/gorilla/websocket"

	"github.com/ahrav/quantum-beacon/internal/domain/execution"
)

// frame is the server-side view of the stream protocol. The client keeps
// its own decoder; the integration tests hold the two in agreement.
type frame struct {
	Type  string `json:"type"`
	JobID string `json:"job_id,omitempty"`
	Data  any    `json:"data,omitempty"`
}

const (
	frameTypeAuth   = "authentication"
	frameTypeStatus = "status"
	frameTypeError  = "error"
	frameTypeClose  = "close"

	authOK = "ok"
)

// handleStatusStream upgrades to a websocket, authenticates the first
// frame, then pushes the job's current status and every subsequent
// transition until a terminal status closes the stream.
func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	if s.cfg.Faults.DisableStream {
		s.respondError(w, r, http.StatusServiceUnavailable, "streaming disabled")
		return
	}

	j, ok := s.store.Get(jobID)
	if !ok {
		s.respondError(w, r, http.StatusNotFound, "job not found")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn(r.Context(), "Websocket upgrade failed", "job_id", jobID, "error", err)
		return
	}
	defer conn.Close()

	if !s.authenticateStream(r, conn) {
		return
	}
	s.streamJob(conn, j)
}

func (s *Server) authenticateStream(r *http.Request, conn *gws.Conn) bool {
	_ = conn.SetReadDeadline(time.Now().Add(defaultReadTimeout))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	var f frame
	if err := conn.ReadJSON(&f); err != nil {
		s.logger.Warn(r.Context(), "Stream auth read failed", "error", err)
		return false
	}

	token, _ := f.Data.(string)
	if f.Type != frameTypeAuth || s.rejectToken(token) {
		_ = conn.WriteJSON(frame{Type: frameTypeAuth, Data: "invalid token"})
		_ = conn.WriteControl(gws.CloseMessage,
			gws.FormatCloseMessage(gws.ClosePolicyViolation, "authentication failed"),
			time.Now().Add(time.Second))
		return false
	}

	return conn.WriteJSON(frame{Type: frameTypeAuth, Data: authOK}) == nil
}

func (s *Server) rejectToken(token string) bool {
	if s.cfg.Faults.RejectAuth {
		return true
	}
	return s.cfg.Token != "" && token != s.cfg.Token
}

func (s *Server) streamJob(conn *gws.Conn, j *job) {
	current, transitions, unsubscribe := j.subscribe()
	defer unsubscribe()

	// Absorb incoming messages so close control frames are processed,
	// and spot the client hanging up.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	sent := 0
	send := func(status execution.JobStatus) bool {
		if s.cfg.Faults.MalformedFrames && sent == 0 {
			_ = conn.WriteMessage(gws.TextMessage, []byte("{malformed"))
		}
		if err := conn.WriteJSON(frame{Type: frameTypeStatus, JobID: j.id, Data: status.String()}); err != nil {
			return false
		}
		sent++
		if s.cfg.Faults.DropAfterFrames > 0 && sent >= s.cfg.Faults.DropAfterFrames {
			// Sever without a close handshake.
			_ = conn.Close()
			return false
		}
		return true
	}

	if !send(current) {
		return
	}
	if current.IsTerminal() {
		s.closeStream(conn)
		return
	}

	for {
		select {
		case status := <-transitions:
			if !send(status) {
				return
			}
			if status.IsTerminal() {
				s.closeStream(conn)
				return
			}
		case <-clientGone:
			return
		case <-s.done:
			s.closeStream(conn)
			return
		}
	}
}

func (s *Server) closeStream(conn *gws.Conn) {
	_ = conn.WriteJSON(frame{Type: frameTypeClose, Data: "stream complete"})
	_ = conn.WriteControl(gws.CloseMessage,
		gws.FormatCloseMessage(gws.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}
