// Package clock re-exports the clock abstraction used to stamp dentry
// timestamps, so that every package in this module depends on a single
// import path rather than reaching for time.Now directly.
package clock

import "github.com/jacobsa/timeutil"

// Clock is the timeutil.Clock interface, aliased locally for discoverability.
type Clock = timeutil.Clock

// New returns the real wall clock used by production mounts.
func New() Clock {
	return timeutil.RealClock()
}

// NewSimulated returns a simulated clock usable by tests.
func NewSimulated() *timeutil.SimulatedClock {
	return timeutil.NewSimulatedClock()
}
