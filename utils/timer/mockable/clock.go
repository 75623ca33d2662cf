// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mockable

import "time"

// Clock acts as a thin wrapper around global time that allows for easy
// testing.
type Clock struct {
	faked bool
	time  time.Time
}

// Set the time on the clock.
func (c *Clock) Set(time time.Time) {
	c.faked = true
	c.time = time
}

// Sync this clock with global time.
func (c *Clock) Sync() {
	c.faked = false
}

// Time returns the time on this clock.
func (c *Clock) Time() time.Time {
	if c.faked {
		return c.time
	}
	return time.Now()
}

// UnixTime returns the time of this clock, truncated to the nearest second.
func (c *Clock) UnixTime() time.Time {
	return c.Time().Truncate(time.Second)
}

// Unix returns the unix time on this clock.
func (c *Clock) Unix() uint64 {
	unix := c.Time().Unix()
	if unix < 0 {
		unix = 0
	}
	return uint64(unix)
}
