package websocket

import "fmt"

// SessionState represents the connection state of a status stream session.
type SessionState string

const (
	// SessionStateDisconnected is the initial state, and the final state
	// after a clean close.
	SessionStateDisconnected SessionState = "DISCONNECTED"

	// SessionStateConnecting indicates the websocket dial is in flight.
	SessionStateConnecting SessionState = "CONNECTING"

	// SessionStateAuthenticating indicates the connection is established and
	// the authentication handshake is in flight.
	SessionStateAuthenticating SessionState = "AUTHENTICATING"

	// SessionStateStreaming indicates the handshake was acknowledged and the
	// server is pushing status frames.
	SessionStateStreaming SessionState = "STREAMING"

	// SessionStateClosedError indicates the session ended abnormally. No
	// further transitions are possible.
	SessionStateClosedError SessionState = "CLOSED_ERROR"
)

// String returns the string representation of the SessionState.
func (s SessionState) String() string { return string(s) }

// ValidateTransition validates whether a transition from this state to the
// target state is valid.
func (s SessionState) ValidateTransition(target SessionState) error {
	if !s.IsValidTransition(target) {
		return fmt.Errorf("invalid session state transition from %s to %s", s, target)
	}
	return nil
}

// IsValidTransition checks if a transition from this state to the target
// state is valid. The session only moves forward through the handshake;
// every live state may fall to CLOSED_ERROR, and every live state may return
// to DISCONNECTED when the session is torn down cleanly.
func (s SessionState) IsValidTransition(target SessionState) bool {
	switch s {
	case SessionStateDisconnected:
		return target == SessionStateConnecting
	case SessionStateConnecting:
		return target == SessionStateAuthenticating ||
			target == SessionStateClosedError ||
			target == SessionStateDisconnected
	case SessionStateAuthenticating:
		return target == SessionStateStreaming ||
			target == SessionStateClosedError ||
			target == SessionStateDisconnected
	case SessionStateStreaming:
		return target == SessionStateDisconnected ||
			target == SessionStateClosedError
	case SessionStateClosedError:
		// Abnormal end state. A new wait attempt gets a new session.
		return false
	default:
		return false
	}
}
