// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package smpp

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/absmach/smppgate/pkg/errors"
	"github.com/absmach/smppgate/pkg/ticker"
)

// Latch transition lines. Levels differ by gate: the response-driven
// gate warns, the rate gate is routine and stays at info.
const (
	msgThrottling     = "Throttling outbound messages."
	msgStopThrottling = "No longer throttling outbound messages."
)

// tpsWindow is the wall-clock accounting window of the rate gate.
const tpsWindow = time.Second

// SubmitFunc performs one wire submission of an outbound message. The
// Throttler calls it for everything that passes the gate, first
// attempts and retries alike.
type SubmitFunc func(ctx context.Context, msg OutboundMessage) error

// Connector pauses and resumes the outbound consumer. Pausing leaves
// records queued on the broker rather than in this process.
type Connector interface {
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Paused() bool
}

// Throttler is a single latch fed by two gates. The response-driven
// gate trips on congestion statuses from the SMSC and probes its way
// back with one queued message per throttle_delay; the rate gate trips
// when submissions exceed mt_tps in one wall-clock second and lifts on
// the next window. While either gate holds, the connector is paused.
type Throttler struct {
	delay     time.Duration
	tps       int
	submit    SubmitFunc
	connector Connector
	stash     MessageStash
	clock     ticker.Clock
	logger    *slog.Logger

	mu         sync.Mutex
	ctx        context.Context
	respHeld   bool
	tpsHeld    bool
	retryq     []string
	heldq      []OutboundMessage
	tpsCount   int
	probeArmed bool

	stop   context.CancelFunc
	window ticker.Ticker
}

// NewThrottler builds a throttler from the transport's throttle
// parameters. Start must be called before traffic flows.
func NewThrottler(cfg TransportConfig, submit SubmitFunc, connector Connector, stash MessageStash, clock ticker.Clock, logger *slog.Logger) *Throttler {
	return &Throttler{
		delay:     cfg.ThrottleDelay,
		tps:       cfg.MTTPS,
		submit:    submit,
		connector: connector,
		stash:     stash,
		clock:     clock,
		logger:    logger,
	}
}

// Start arms the rate-gate window. The context bounds every background
// task the throttler runs.
func (t *Throttler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.ctx = ctx
	t.stop = cancel
	t.mu.Unlock()

	if t.tps > 0 {
		t.window = t.clock.NewTicker(tpsWindow)
		go t.windowLoop(ctx)
	}
}

// Stop halts probing and window accounting. Held messages stay on the
// broker side of the connector and are redelivered on the next start.
func (t *Throttler) Stop() {
	t.mu.Lock()
	stop := t.stop
	window := t.window
	t.mu.Unlock()
	if stop != nil {
		stop()
	}
	if window != nil {
		window.Stop()
	}
}

// Throttled reports whether the latch is set.
func (t *Throttler) Throttled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.respHeld || t.tpsHeld
}

// Submit passes one outbound message through the rate gate and on to
// the wire. A message arriving over the configured rate is held in
// memory until the window rolls.
func (t *Throttler) Submit(ctx context.Context, msg OutboundMessage) error {
	if t.tps > 0 {
		t.mu.Lock()
		t.tpsCount++
		if t.tpsCount >= t.tps {
			t.heldq = append(t.heldq, msg)
			t.latchTPSLocked(ctx)
			t.mu.Unlock()
			return nil
		}
		t.mu.Unlock()
	}

	return t.submit(ctx, msg)
}

// MessageThrottled queues a message whose submission the SMSC refused
// for congestion and trips the response-driven gate. Retries run
// oldest first.
func (t *Throttler) MessageThrottled(ctx context.Context, id string) {
	t.mu.Lock()
	t.retryq = append(t.retryq, id)
	transition := !t.respHeld && !t.tpsHeld
	t.respHeld = true
	if transition {
		t.logger.Warn(msgThrottling)
	}
	t.armProbeLocked(t.delay)
	t.mu.Unlock()

	if transition {
		t.pause(ctx)
	}
}

// MessageCleared notes a non-congestion submission response. While the
// response-driven gate holds, a cleared message means the SMSC is
// accepting again, so the next probe runs immediately.
func (t *Throttler) MessageCleared(ctx context.Context) {
	t.mu.Lock()
	if t.respHeld {
		t.armProbeLocked(0)
	}
	t.mu.Unlock()
}

// armProbeLocked schedules the next retry probe unless one is already
// scheduled. Callers hold t.mu.
func (t *Throttler) armProbeLocked(d time.Duration) {
	if t.probeArmed || t.ctx == nil {
		return
	}
	t.probeArmed = true
	timer := t.clock.NewTimer(d)
	go func() {
		defer timer.Stop()
		select {
		case <-timer.C():
			t.probe(t.ctx)
		case <-t.ctx.Done():
		}
	}()
}

// probe retries the oldest queued message. An empty queue lifts the
// latch; the retry's own response schedules any further probing.
func (t *Throttler) probe(ctx context.Context) {
	t.mu.Lock()
	t.probeArmed = false
	if !t.respHeld {
		t.mu.Unlock()
		return
	}
	if len(t.retryq) == 0 {
		t.respHeld = false
		cleared := !t.tpsHeld
		if cleared {
			t.logger.Warn(msgStopThrottling)
		}
		t.mu.Unlock()
		if cleared {
			t.resume(ctx)
		}
		return
	}
	id := t.retryq[0]
	t.retryq = t.retryq[1:]
	t.mu.Unlock()

	msg, err := t.stash.GetCachedMessage(ctx, id)
	if err != nil {
		if errors.Contains(err, ErrStashMiss) {
			// Expired while queued; nothing left to retry for it.
			t.logger.Warn("Could not retrieve throttled message.",
				slog.String("message_id", id),
			)
			t.mu.Lock()
			t.armProbeLocked(0)
			t.mu.Unlock()
			return
		}
		t.logger.Error("Reading throttled message failed.",
			slog.String("message_id", id),
			slog.Any("error", err),
		)
		t.mu.Lock()
		t.armProbeLocked(t.delay)
		t.mu.Unlock()
		return
	}

	if err := t.Submit(ctx, msg); err != nil {
		t.logger.Error("Retrying throttled message failed.",
			slog.String("message_id", id),
			slog.Any("error", err),
		)
		t.mu.Lock()
		t.armProbeLocked(t.delay)
		t.mu.Unlock()
	}
}

// latchTPSLocked trips the rate gate. Callers hold t.mu.
func (t *Throttler) latchTPSLocked(ctx context.Context) {
	transition := !t.respHeld && !t.tpsHeld
	t.tpsHeld = true
	if transition {
		t.logger.Info(msgThrottling)
		go t.pause(ctx)
	}
}

// windowLoop resets the rate counter every window and releases the
// rate gate, re-submitting anything the gate held.
func (t *Throttler) windowLoop(ctx context.Context) {
	for {
		select {
		case <-t.window.Tick():
			t.rollWindow(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (t *Throttler) rollWindow(ctx context.Context) {
	t.mu.Lock()
	t.tpsCount = 0
	held := t.heldq
	t.heldq = nil
	release := t.tpsHeld
	t.tpsHeld = false
	cleared := release && !t.respHeld
	if cleared {
		t.logger.Info(msgStopThrottling)
	}
	t.mu.Unlock()

	if cleared {
		t.resume(ctx)
	}
	// Held messages re-enter the gate and count against the fresh
	// window.
	for _, msg := range held {
		if err := t.Submit(ctx, msg); err != nil {
			t.logger.Error("Submitting rate-held message failed.",
				slog.String("message_id", msg.ID),
				slog.Any("error", err),
			)
		}
	}
}

func (t *Throttler) pause(ctx context.Context) {
	if err := t.connector.Pause(ctx); err != nil {
		t.logger.Error("Pausing outbound consumer failed.", slog.Any("error", err))
	}
}

func (t *Throttler) resume(ctx context.Context) {
	if err := t.connector.Resume(ctx); err != nil {
		t.logger.Error("Resuming outbound consumer failed.", slog.Any("error", err))
	}
}
