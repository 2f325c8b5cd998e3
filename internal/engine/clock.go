package engine

import "sync/atomic"

// Clock is the logical tick counter.
//
// Ticks are stamped from this clock rather than wall time so a replayed or
// restored run produces the same tick numbers. Safe for concurrent use,
// although only the container's sequential phase advances it.
type Clock struct {
	tick atomic.Int64
}

// NewClock creates a clock at tick 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock positioned at start, used when resuming from
// a snapshot.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.tick.Store(start)
	return c
}

// Next advances the clock and returns the new tick.
func (c *Clock) Next() int64 {
	return c.tick.Add(1)
}

// Current returns the current tick without advancing.
func (c *Clock) Current() int64 {
	return c.tick.Load()
}
