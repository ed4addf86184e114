// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package smpp_test

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absmach/smppgate/pkg/ticker"
	"github.com/absmach/smppgate/smpp"
	"github.com/absmach/smppgate/smpp/mocks"
)

const waitTimeout = 5 * time.Second

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

// logged reports whether msg was logged at level. slog's JSON handler
// keeps the time/level/msg field order, so the fragment is stable.
func logged(buf *syncBuffer, level, msg string) bool {
	return strings.Contains(buf.String(), fmt.Sprintf("%q:%q,%q:%q", "level", level, "msg", msg))
}

type throttleFixture struct {
	throttler *smpp.Throttler
	conn      *mocks.Connector
	stash     *mocks.MessageStash
	clock     *ticker.VirtualClock
	buf       *syncBuffer
	submitted chan smpp.OutboundMessage
}

func newThrottleFixture(t *testing.T, mutate func(*smpp.TransportConfig)) *throttleFixture {
	cfg := smpp.DefaultTransportConfig()
	cfg.TransportName = "testtransport"
	if mutate != nil {
		mutate(&cfg)
	}

	f := &throttleFixture{
		conn:      mocks.NewConnector(),
		stash:     mocks.NewMessageStash(),
		clock:     ticker.NewVirtualClock(time.Unix(0, 0)),
		buf:       &syncBuffer{},
		submitted: make(chan smpp.OutboundMessage, 16),
	}
	logger := slog.New(slog.NewJSONHandler(f.buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	submit := func(ctx context.Context, msg smpp.OutboundMessage) error {
		f.submitted <- msg
		return nil
	}
	f.throttler = smpp.NewThrottler(cfg, submit, f.conn, f.stash, f.clock, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	t.Cleanup(f.throttler.Stop)
	f.throttler.Start(ctx)
	require.Nil(t, f.conn.Resume(ctx), "resume connector double")

	return f
}

func (f *throttleFixture) awaitSubmit(t *testing.T) smpp.OutboundMessage {
	select {
	case msg := <-f.submitted:
		return msg
	case <-time.After(waitTimeout):
		require.FailNow(t, "timed out waiting for a submission")
		return smpp.OutboundMessage{}
	}
}

func TestThrottlerResponseGate(t *testing.T) {
	f := newThrottleFixture(t, nil)
	ctx := context.Background()

	msg := smpp.OutboundMessage{ID: "444", To: "+41791234567", From: "9292", Content: "hello world"}
	require.Nil(t, f.stash.CacheMessage(ctx, msg), "cache message")

	f.throttler.MessageThrottled(ctx, msg.ID)
	assert.True(t, f.throttler.Throttled(), "latch must be set after a throttled response")
	assert.True(t, f.conn.Paused(), "connector must pause with the latch")
	assert.True(t, logged(f.buf, "WARN", "Throttling outbound messages."), "latch line missing or at wrong level")

	// One probe per throttle_delay retries the queued message.
	f.clock.Advance(time.Second)
	retried := f.awaitSubmit(t)
	assert.Equal(t, msg, retried, fmt.Sprintf("expected %v got %v\n", msg, retried))

	// Still throttled until a probe finds the queue empty.
	assert.True(t, f.throttler.Throttled(), "latch must hold until an empty probe cycle")

	f.throttler.MessageCleared(ctx)
	f.clock.Advance(0)
	assert.Eventually(t, func() bool {
		return !f.throttler.Throttled() && !f.conn.Paused()
	}, waitTimeout, time.Millisecond, "latch must lift on an empty probe")
	assert.True(t, logged(f.buf, "WARN", "No longer throttling outbound messages."), "release line missing or at wrong level")
}

func TestThrottlerThrottledWhileThrottled(t *testing.T) {
	f := newThrottleFixture(t, nil)
	ctx := context.Background()

	msg1 := smpp.OutboundMessage{ID: "444", To: "+41791234567", From: "9292", Content: "hello world 1"}
	msg2 := smpp.OutboundMessage{ID: "445", To: "+41791234567", From: "9292", Content: "hello world 2"}
	require.Nil(t, f.stash.CacheMessage(ctx, msg1), "cache message")
	require.Nil(t, f.stash.CacheMessage(ctx, msg2), "cache message")

	f.throttler.MessageThrottled(ctx, msg1.ID)
	f.throttler.MessageThrottled(ctx, msg2.ID)

	// Probes run oldest first.
	f.clock.Advance(time.Second)
	retried := f.awaitSubmit(t)
	assert.Equal(t, msg1.ID, retried.ID, fmt.Sprintf("expected %s got %s\n", msg1.ID, retried.ID))

	// The retry came back throttled: it rejoins the queue at the tail.
	f.throttler.MessageThrottled(ctx, msg1.ID)
	f.clock.Advance(time.Second)
	retried = f.awaitSubmit(t)
	assert.Equal(t, msg2.ID, retried.ID, fmt.Sprintf("expected %s got %s\n", msg2.ID, retried.ID))

	// A successful retry drains the next queued message immediately.
	f.throttler.MessageCleared(ctx)
	f.clock.Advance(0)
	retried = f.awaitSubmit(t)
	assert.Equal(t, msg1.ID, retried.ID, fmt.Sprintf("expected %s got %s\n", msg1.ID, retried.ID))
}

func TestThrottlerExpiredRetry(t *testing.T) {
	f := newThrottleFixture(t, nil)
	ctx := context.Background()

	// Nothing cached: the queued id expired while waiting.
	f.throttler.MessageThrottled(ctx, "gone")
	f.clock.Advance(time.Second)
	assert.Eventually(t, func() bool {
		return logged(f.buf, "WARN", "Could not retrieve throttled message.")
	}, waitTimeout, time.Millisecond, "expired retry must be logged")

	// The empty follow-up probe lifts the latch.
	f.clock.Advance(0)
	assert.Eventually(t, func() bool {
		return !f.throttler.Throttled()
	}, waitTimeout, time.Millisecond, "latch must lift once the expired entry is skipped")
}

func TestThrottlerTPSGate(t *testing.T) {
	f := newThrottleFixture(t, func(cfg *smpp.TransportConfig) {
		cfg.MTTPS = 2
	})
	ctx := context.Background()

	msg1 := smpp.OutboundMessage{ID: "444", Content: "hello world 1"}
	msg2 := smpp.OutboundMessage{ID: "445", Content: "hello world 2"}

	require.Nil(t, f.throttler.Submit(ctx, msg1), "submit under the rate")
	sent := f.awaitSubmit(t)
	assert.Equal(t, msg1.ID, sent.ID, fmt.Sprintf("expected %s got %s\n", msg1.ID, sent.ID))

	require.Nil(t, f.throttler.Submit(ctx, msg2), "submit over the rate")
	assert.True(t, f.throttler.Throttled(), "rate gate must latch")
	assert.True(t, logged(f.buf, "INFO", "Throttling outbound messages."), "rate latch line missing or at wrong level")
	select {
	case held := <-f.submitted:
		t.Fatalf("message %s submitted while rate-held", held.ID)
	case <-time.After(50 * time.Millisecond):
	}

	// The window rolls: the gate lifts and the held message goes out.
	f.clock.Advance(time.Second)
	sent = f.awaitSubmit(t)
	assert.Equal(t, msg2.ID, sent.ID, fmt.Sprintf("expected %s got %s\n", msg2.ID, sent.ID))
	assert.Eventually(t, func() bool {
		return !f.throttler.Throttled() && !f.conn.Paused()
	}, waitTimeout, time.Millisecond, "rate gate must lift on the window boundary")
	assert.True(t, logged(f.buf, "INFO", "No longer throttling outbound messages."), "rate release line missing or at wrong level")
}
