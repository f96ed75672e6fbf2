package entity

import "sync/atomic"

// Clock is a monotonic logical clock for insertion sequencing.
//
// Every created record is stamped with a strictly increasing seq, which
// is the only ordering List guarantees. The clock is seeded from the
// store's max seq on startup so sequences never regress across restarts.
//
// Thread-safety: atomic operations, though the single-writer design
// means only one goroutine typically calls Next().
type Clock struct {
	seq atomic.Int64
}

// NewClockAt creates a clock resuming from a specific sequence number.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
