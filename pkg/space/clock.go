package space

import (
	"math"
	"sync"
	"time"
)

// Forever is the LiveUntil value of a tuple that never expires.
const Forever int64 = math.MaxInt64

// Clock is the single source of "now" for the space. Substituting it lets a
// skew-adjusted cluster time drive lease expiry without touching core logic.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the local wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// SkewedClock offsets a base clock by a fixed amount, typically the skew
// measured against an elected master.
type SkewedClock struct {
	Base   Clock
	Offset time.Duration
}

// Now returns the base time shifted by Offset.
func (c SkewedClock) Now() time.Time {
	base := c.Base
	if base == nil {
		base = SystemClock{}
	}
	return base.Now().Add(c.Offset)
}

// ManualClock is a Clock that only moves when told to. Safe for concurrent use.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock returns a ManualClock starting at t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

// Now returns the current manual time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// nowMillis reads the clock as epoch milliseconds.
func nowMillis(c Clock) int64 {
	return c.Now().UnixMilli()
}

// expiryFrom computes an absolute expiry, saturating at Forever.
func expiryFrom(nowMs int64, lease time.Duration) int64 {
	leaseMs := lease.Milliseconds()
	if leaseMs <= 0 && lease > 0 {
		leaseMs = 1
	}
	if leaseMs > Forever-nowMs {
		return Forever
	}
	return nowMs + leaseMs
}
