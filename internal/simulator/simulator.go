// Package simulator provides an in-process execution backend that speaks
// the same REST and websocket contract as the real quantum service. It
// backs integration tests and local runs of the watcher: submitted jobs
// walk a scripted lifecycle (INITIALIZING, QUEUED, RUNNING, then a
// terminal status) with every transition pushed to stream subscribers.
package simulator

import (
	"time"

	"github.com/ahrav/quantum-beacon/internal/domain/execution"
)

const (
	defaultStepDelay    = 250 * time.Millisecond
	defaultShots        = 1024
	defaultReadTimeout  = 10 * time.Second
	shutdownGracePeriod = 30 * time.Second
)

// Faults are switchable misbehaviors for exercising client fallback and
// discard paths. The zero value is a well-behaved backend.
type Faults struct {
	// RejectAuth makes the websocket handshake refuse every token.
	RejectAuth bool

	// DropAfterFrames abruptly severs the websocket after this many
	// status frames, without a close handshake. Zero never drops.
	DropAfterFrames int

	// MalformedFrames injects a non-JSON frame ahead of the first
	// status frame on every stream.
	MalformedFrames bool

	// DisableStream refuses websocket upgrades so clients must poll.
	DisableStream bool
}

// Config holds the simulator's listen address, auth token, pacing, and
// fault switches.
type Config struct {
	Host string
	Port string

	// Token is required from REST callers (bearer) and websocket
	// subscribers (first frame). Empty disables auth checks.
	Token string

	// StepDelay paces the scripted lifecycle transitions.
	StepDelay time.Duration

	// Devices is the advertised catalog. Pending job counts are
	// computed live from the store.
	Devices []execution.Device

	Faults Faults
}

// DefaultDevices returns the stock device catalog.
func DefaultDevices() []execution.Device {
	return []execution.Device{
		{Name: "sim-5q", Online: true, Simulator: true},
		{Name: "sim-20q", Online: true, Simulator: true},
		{Name: "falcon-r5", Online: true, Simulator: false},
		{Name: "eagle-r1", Online: false, Simulator: false},
	}
}

func (c Config) stepDelay() time.Duration {
	if c.StepDelay <= 0 {
		return defaultStepDelay
	}
	return c.StepDelay
}

func (c Config) devices() []execution.Device {
	if len(c.Devices) == 0 {
		return DefaultDevices()
	}
	return c.Devices
}
