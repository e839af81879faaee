package sim

import "time"

// Clock is the virtual time source for a run. Simulated time only moves when
// the driver advances it, never from the host wall clock, so latency deltas
// computed from it are identical across hosts and across repeated runs.
type Clock struct {
	now int64 // nanoseconds since run start
}

// NewClock returns a clock positioned at simulated t=0.
func NewClock() *Clock {
	return &Clock{}
}

// Now returns the current simulated time in nanoseconds since run start.
func (c *Clock) Now() int64 {
	return c.now
}

// Advance moves simulated time forward by d nanoseconds. Negative advances
// are ignored; the clock is monotonic.
func (c *Clock) Advance(d int64) {
	if d > 0 {
		c.now += d
	}
}

// AdvanceTo jumps simulated time forward to t. A target at or before the
// current time is a no-op.
func (c *Clock) AdvanceTo(t int64) {
	if t > c.now {
		c.now = t
	}
}

// Elapsed returns the simulated time since run start as a Duration.
func (c *Clock) Elapsed() time.Duration {
	return time.Duration(c.now)
}
