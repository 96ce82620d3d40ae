// Package system provides the wall clock used by the monitor loop.
package system

import "time"

// Clock satisfies monitor.Clock with UTC wall time.
type Clock struct{}

// New returns the wall clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
