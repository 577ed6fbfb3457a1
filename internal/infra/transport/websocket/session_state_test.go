package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionStateTransitions(t *testing.T) {
	tests := []struct {
		name  string
		from  SessionState
		to    SessionState
		valid bool
	}{
		{"disconnected to connecting", SessionStateDisconnected, SessionStateConnecting, true},
		{"disconnected cannot skip to streaming", SessionStateDisconnected, SessionStateStreaming, false},
		{"disconnected cannot fail without connecting", SessionStateDisconnected, SessionStateClosedError, false},
		{"connecting to authenticating", SessionStateConnecting, SessionStateAuthenticating, true},
		{"connecting to closed error", SessionStateConnecting, SessionStateClosedError, true},
		{"connecting torn down", SessionStateConnecting, SessionStateDisconnected, true},
		{"connecting cannot skip auth", SessionStateConnecting, SessionStateStreaming, false},
		{"authenticating to streaming", SessionStateAuthenticating, SessionStateStreaming, true},
		{"authenticating to closed error", SessionStateAuthenticating, SessionStateClosedError, true},
		{"authenticating torn down", SessionStateAuthenticating, SessionStateDisconnected, true},
		{"streaming to disconnected", SessionStateStreaming, SessionStateDisconnected, true},
		{"streaming to closed error", SessionStateStreaming, SessionStateClosedError, true},
		{"streaming cannot reconnect in place", SessionStateStreaming, SessionStateConnecting, false},
		{"closed error is terminal", SessionStateClosedError, SessionStateConnecting, false},
		{"closed error cannot recover to disconnected", SessionStateClosedError, SessionStateDisconnected, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.from.IsValidTransition(tt.to))

			err := tt.from.ValidateTransition(tt.to)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), "invalid session state transition")
			}
		})
	}
}

func TestSessionStateString(t *testing.T) {
	assert.Equal(t, "STREAMING", SessionStateStreaming.String())
	assert.Equal(t, "CLOSED_ERROR", SessionStateClosedError.String())
}
