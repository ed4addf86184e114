// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package ticker

import (
	"sync"
	"time"
)

var _ Clock = (*VirtualClock)(nil)

// VirtualClock is a Clock for tests. Time stands still until Advance is
// called; timers and tickers whose deadlines fall inside the advanced
// window fire in deadline order.
type VirtualClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*virtualWaiter
}

type virtualWaiter struct {
	clock    *VirtualClock
	ch       chan time.Time
	deadline time.Time
	period   time.Duration
	stopped  bool
}

// NewVirtualClock returns a VirtualClock starting at start.
func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{now: start}
}

// Now returns the current virtual time.
func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

// NewTicker returns a ticker firing every d of virtual time.
func (c *VirtualClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("non-positive interval for NewTicker")
	}

	return virtualTicker{c.addWaiter(d, d)}
}

// NewTimer returns a timer firing once after d of virtual time.
func (c *VirtualClock) NewTimer(d time.Duration) Timer {
	return virtualTimer{c.addWaiter(d, 0)}
}

func (c *VirtualClock) addWaiter(d, period time.Duration) *virtualWaiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := &virtualWaiter{
		clock:    c,
		ch:       make(chan time.Time, 1),
		deadline: c.now.Add(d),
		period:   period,
	}
	c.waiters = append(c.waiters, w)

	return w
}

// Advance moves the clock forward by d, firing every timer and ticker
// whose deadline falls within the window. Fires are delivered on
// buffered channels and coalesce when the receiver lags, the same way
// time.Ticker drops ticks.
func (c *VirtualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := c.now.Add(d)
	for {
		w := c.nextDue(target)
		if w == nil {
			break
		}
		if w.deadline.After(c.now) {
			c.now = w.deadline
		}
		select {
		case w.ch <- c.now:
		default:
		}
		if w.period > 0 {
			w.deadline = w.deadline.Add(w.period)
		} else {
			w.stopped = true
		}
	}
	c.now = target
	c.compact()
}

func (c *VirtualClock) nextDue(target time.Time) *virtualWaiter {
	var due *virtualWaiter
	for _, w := range c.waiters {
		if w.stopped || w.deadline.After(target) {
			continue
		}
		if due == nil || w.deadline.Before(due.deadline) {
			due = w
		}
	}

	return due
}

func (c *VirtualClock) compact() {
	kept := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.stopped {
			kept = append(kept, w)
		}
	}
	c.waiters = kept
}

func (w *virtualWaiter) halt() bool {
	w.clock.mu.Lock()
	defer w.clock.mu.Unlock()

	active := !w.stopped
	w.stopped = true

	return active
}

type virtualTicker struct {
	*virtualWaiter
}

func (t virtualTicker) Tick() <-chan time.Time {
	return t.ch
}

func (t virtualTicker) Stop() {
	t.halt()
}

type virtualTimer struct {
	*virtualWaiter
}

func (t virtualTimer) C() <-chan time.Time {
	return t.ch
}

func (t virtualTimer) Stop() bool {
	return t.halt()
}
