package finance

import "time"

// =============================================================================
// CLOCK - Injectable time source
// =============================================================================

// Clock abstracts "now" so overdue calculation and delinquency sweeps can be
// tested against arbitrary dates. Production code uses SystemClock; tests use
// FixedClock and advance it explicitly.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock returns a preset time until advanced. Not safe for concurrent
// mutation; tests drive it from a single goroutine.
type FixedClock struct {
	Current time.Time
}

func NewFixedClock(t time.Time) *FixedClock { return &FixedClock{Current: t} }

func (c *FixedClock) Now() time.Time { return c.Current }

func (c *FixedClock) Advance(d time.Duration) { c.Current = c.Current.Add(d) }

func (c *FixedClock) AdvanceDays(n int) { c.Current = c.Current.AddDate(0, 0, n) }

func (c *FixedClock) Set(t time.Time) { c.Current = t }
