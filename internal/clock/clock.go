// Package clock implements the actor's discrete cycle time and the
// per-kind calendar buckets the kernel and policy schedule work
// against (§4.1).
package clock

import "time"

// Clock maps wall time to integer cycles of fixed length (CycleMillis)
// offset from a configured epoch. All scheduling decisions in the
// kernel and policy quantize to cycles.
type Clock struct {
	cycleMillis int64
	epoch       time.Time
}

// New builds a Clock. cycleMillis must be positive.
func New(cycleMillis int64, epoch time.Time) *Clock {
	if cycleMillis <= 0 {
		cycleMillis = 1000
	}
	return &Clock{cycleMillis: cycleMillis, epoch: epoch}
}

// CycleMillis returns the configured cycle length.
func (c *Clock) CycleMillis() int64 { return c.cycleMillis }

// Cycle quantizes a wall-clock instant to a cycle number.
func (c *Clock) Cycle(t time.Time) int64 {
	delta := t.Sub(c.epoch).Milliseconds()
	if delta < 0 {
		return 0
	}
	return delta / c.cycleMillis
}

// Now returns the current cycle.
func (c *Clock) Now() int64 { return c.Cycle(time.Now()) }

// Date converts a cycle number back to the wall-clock instant at which
// it begins, mainly for logging and the management plane.
func (c *Clock) Date(cycle int64) time.Time {
	return c.epoch.Add(time.Duration(cycle*c.cycleMillis) * time.Millisecond)
}

// Millis returns the duration, in milliseconds, of a single cycle — used
// by the kernel's ticker to schedule the next Tick event.
func (c *Clock) Millis() time.Duration {
	return time.Duration(c.cycleMillis) * time.Millisecond
}
