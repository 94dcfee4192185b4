package utils

import "time"

// Clock source of "now" for components whose behavior depends on wall time
// (alert thresholds, cache expiry, run timestamps). Tests inject a fixed clock.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock
type RealClock struct{}

// Now returns time.Now in UTC
func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// ClockFunc adapts a function to Clock
type ClockFunc func() time.Time

// Now calls f
func (f ClockFunc) Now() time.Time {
	return f()
}
