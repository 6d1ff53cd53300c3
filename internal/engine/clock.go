package engine

import "sync/atomic"

// Clock is the monotonic version source for dirty transitions.
//
// Every time a node enters Dirty it is stamped with Clock.Next(). A worker
// captures the stamp at dispatch and the result is committed only if the
// node still carries the same stamp, so a single global counter is enough to
// detect staleness across removals and re-adds.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Uint64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next version and increments the clock.
func (c *Clock) Next() uint64 {
	return c.seq.Add(1)
}

// Current returns the last issued version without incrementing.
func (c *Clock) Current() uint64 {
	return c.seq.Load()
}
