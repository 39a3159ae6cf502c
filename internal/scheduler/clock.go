package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Clock supplies the run loop's notion of time. The loop only ever waits at
// timer boundaries, so a clock either sleeps until the wake time or jumps to it.
type Clock interface {
	// Now returns the current time on this clock.
	Now() time.Time

	// WaitUntil blocks until t has been reached or ctx is done.
	WaitUntil(ctx context.Context, t time.Time) error
}

// RealClock follows the wall clock and sleeps the run loop between timers.
type RealClock struct{}

// Now returns time.Now().
func (RealClock) Now() time.Time {
	return time.Now()
}

// WaitUntil sleeps until t or until ctx is cancelled.
func (RealClock) WaitUntil(ctx context.Context, t time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d := time.Until(t)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Forker is a clock with mutable state. Scheduler.Run forks it so every run
// gets a timeline of its own.
type Forker interface {
	Fork() Clock
}

// VirtualClock is a logical clock that jumps straight to the next wake time.
// Runs on a virtual clock finish instantly and are fully deterministic.
//
// Each run works on a fork that starts at the parent's reading. A fork moves
// the parent forward as it advances but never sees other forks' jumps, so
// concurrent runs keep independent elapsed times while the parent reports the
// latest time any run reached.
type VirtualClock struct {
	mu     sync.Mutex
	now    time.Time
	parent *VirtualClock
}

// NewVirtualClock creates a virtual clock reading start.
func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{now: start}
}

// Now returns the logical time.
func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// WaitUntil advances the clock to t without blocking. The clock never moves
// backwards.
func (c *VirtualClock) WaitUntil(ctx context.Context, t time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.advance(t)
	if c.parent != nil {
		c.parent.advance(t)
	}
	return nil
}

// Fork returns a child clock reading c's current time.
func (c *VirtualClock) Fork() Clock {
	return &VirtualClock{now: c.Now(), parent: c}
}

func (c *VirtualClock) advance(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.now) {
		c.now = t
	}
}

// Clock modes accepted by ClockFor.
const (
	ClockReal    = "real"
	ClockVirtual = "virtual"
)

// ClockFor returns the clock for a configured mode name.
func ClockFor(mode string) (Clock, error) {
	switch strings.ToLower(mode) {
	case "", ClockReal:
		return RealClock{}, nil
	case ClockVirtual:
		return NewVirtualClock(time.Unix(0, 0).UTC()), nil
	default:
		return nil, fmt.Errorf("unknown clock mode %q (want %s or %s)", mode, ClockReal, ClockVirtual)
	}
}
