// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package ticker provides replaceable time sources so that components
// driven by timers can be tested without waiting on real time.
package ticker

import "time"

// Ticker is an interface that wraps the time.Ticker.
type Ticker interface {
	Tick() <-chan time.Time
	Stop()
}

// Timer is an interface that wraps the time.Timer.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// Clock creates tickers and timers and reports the current time.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
	NewTimer(d time.Duration) Timer
}

type timeTicker struct {
	*time.Ticker
}

// NewTicker returns a Ticker backed by the system clock.
func NewTicker(d time.Duration) Ticker {
	return &timeTicker{time.NewTicker(d)}
}

func (t *timeTicker) Tick() <-chan time.Time {
	return t.C
}

type timeTimer struct {
	*time.Timer
}

// NewTimer returns a Timer backed by the system clock.
func NewTimer(d time.Duration) Timer {
	return &timeTimer{time.NewTimer(d)}
}

func (t *timeTimer) C() <-chan time.Time {
	return t.Timer.C
}

func (t *timeTimer) Stop() bool {
	return t.Timer.Stop()
}

type systemClock struct{}

// NewClock returns a Clock backed by the system time.
func NewClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) NewTicker(d time.Duration) Ticker {
	return NewTicker(d)
}

func (systemClock) NewTimer(d time.Duration) Timer {
	return NewTimer(d)
}
