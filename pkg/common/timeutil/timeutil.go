// Package timeutil abstracts the clock so components that schedule, stamp,
// or sleep can be tested with a controlled time source.
package timeutil

import "time"

// Provider supplies the current time and blocking sleeps. Components take a
// Provider instead of calling the time package directly so tests can
// substitute a deterministic implementation.
type Provider interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep pauses the calling goroutine for at least the duration d.
	Sleep(d time.Duration)
}

type realProvider struct{}

func (realProvider) Now() time.Time        { return time.Now() }
func (realProvider) Sleep(d time.Duration) { time.Sleep(d) }

// Default returns a Provider backed by the system clock.
func Default() Provider { return realProvider{} }
