package monitor

import (
	"sync/atomic"
)

// COUNTER_MAX is the last value the cycle counter holds before rolling over.
const COUNTER_MAX = uint16(0xFFFF)

// Counter counts completed bus cycles since the last reset or rollover.
// Only the sampler writes it (under the monitor lock) but anyone may read it
// at any time. A read is a snapshot which may already be stale.
type Counter struct {
	value    atomic.Uint32
	rollover atomic.Bool
}

// Value returns the current count.
func (c *Counter) Value() uint16 {
	return uint16(c.value.Load())
}

// Advance adds one completed cycle. At COUNTER_MAX it wraps to 0 instead and
// returns true, leaving a rollover for TakeRollover to report.
func (c *Counter) Advance() bool {
	v := c.Value()
	if v == COUNTER_MAX {
		c.value.Store(0)
		c.rollover.Store(true)
		return true
	}
	c.value.Store(uint32(v + 1))
	return false
}

// Reset sets the count back to 0 and forgets any unreported rollover.
func (c *Counter) Reset() {
	c.value.Store(0)
	c.rollover.Store(false)
}

// TakeRollover returns true exactly once per rollover.
func (c *Counter) TakeRollover() bool {
	return c.rollover.Swap(false)
}
