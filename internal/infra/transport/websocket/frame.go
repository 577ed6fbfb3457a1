package websocket

import (
	"encoding/json"
	"fmt"

	"github.com/ahrav/quantum-beacon/internal/domain/execution"
)

// Frame type tags exchanged on the status stream.
const (
	// FrameTypeAuthentication carries the client token on send and the
	// server's ack or rejection on receive.
	FrameTypeAuthentication = "authentication"

	// FrameTypeStatus carries one status value pushed by the server.
	FrameTypeStatus = "status"

	// FrameTypeError carries a server-reported stream error description.
	FrameTypeError = "error"

	// FrameTypeClose announces the server is about to close the stream.
	FrameTypeClose = "close"
)

// authAccepted is the payload the server acks a successful handshake with.
// Anything else in an authentication response is a rejection reason.
const authAccepted = "ok"

// Frame is one tagged unit on the websocket. The payload shape depends on
// the tag: a token or ack for authentication, a status value for updates, an
// error description for errors. Frames are decoded on receipt and consumed
// immediately, never retained.
type Frame struct {
	Type  string          `json:"type"`
	JobID string          `json:"job_id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// newAuthFrame builds the single authentication frame a session sends after
// connecting.
func newAuthFrame(token string) (Frame, error) {
	data, err := json.Marshal(token)
	if err != nil {
		return Frame{}, fmt.Errorf("marshaling auth token: %w", err)
	}
	return Frame{Type: FrameTypeAuthentication, Data: data}, nil
}

// text decodes the frame payload as a plain string.
func (f Frame) text() (string, error) {
	var s string
	if err := json.Unmarshal(f.Data, &s); err != nil {
		return "", fmt.Errorf("%w: non-string %s payload", execution.ErrMalformedMessage, f.Type)
	}
	return s, nil
}

// status decodes the frame payload as a job status.
func (f Frame) status() (execution.JobStatus, error) {
	raw, err := f.text()
	if err != nil {
		return "", err
	}
	status, err := execution.ParseJobStatus(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", execution.ErrMalformedMessage, err)
	}
	return status, nil
}
