package line

import (
	"sync/atomic"
	"time"
)

// Tick is a point on a free-running microsecond counter. It wraps around
// every ~71 minutes; always compare ticks with Sub, never with < or >.
type Tick uint32

// Sub returns the ticks elapsed from earlier to t, correct across one wraparound.
func (t Tick) Sub(earlier Tick) Tick {
	return t - earlier
}

// Duration converts a tick count to a time.Duration.
func (t Tick) Duration() time.Duration {
	return time.Duration(t) * time.Microsecond
}

// TicksOf converts d to ticks, rounding down.
func TicksOf(d time.Duration) Tick {
	return Tick(d / time.Microsecond) //nolint:gosec // callers pass protocol-scale durations
}

// Clock is the monotonic tick source.
type Clock interface {
	Now() Tick
}

// SystemClock ticks with the process monotonic clock.
type SystemClock struct {
	start time.Time
}

var _ Clock = (*SystemClock)(nil)

// NewSystemClock returns a clock starting at tick 0.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) Now() Tick {
	return Tick(time.Since(c.start) / time.Microsecond) //nolint:gosec // wraparound intended
}

// ManualClock only moves when told to. Simulations and tests use it to step
// every node of a line through exactly the same time base.
type ManualClock struct {
	now atomic.Uint32
}

var _ Clock = (*ManualClock)(nil)

// NewManualClock returns a clock reading start.
func NewManualClock(start Tick) *ManualClock {
	c := &ManualClock{}
	c.now.Store(uint32(start))

	return c
}

func (c *ManualClock) Now() Tick {
	return Tick(c.now.Load())
}

// Advance moves the clock forward by d ticks.
func (c *ManualClock) Advance(d Tick) {
	c.now.Add(uint32(d))
}
