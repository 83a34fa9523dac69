// Package system is the wall clock used for project creation times and activity timestamps.
package system

import "time"

// Clock reads time.Now in UTC.
type Clock struct{}

// New returns a Clock.
func New() Clock { return Clock{} }

// Now returns the current UTC time.
func (Clock) Now() time.Time { return time.Now().UTC() }
