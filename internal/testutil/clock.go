// Package testutil provides deterministic fixtures shared by the
// package tests: a controllable wall clock and a fully wired entity
// store over the production engagement schema.
package testutil

import (
	"sync"
	"time"
)

// WallClock is a controllable wall clock for tests. Its Now method
// satisfies the WithNow options across the codebase.
//
// Thread-safety: all methods take the internal mutex.
type WallClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewWallClock creates a clock frozen at start.
func NewWallClock(start time.Time) *WallClock {
	return &WallClock{now: start}
}

// Now returns the current frozen time.
func (c *WallClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *WallClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to an absolute time.
func (c *WallClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
