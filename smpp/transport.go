// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package smpp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/absmach/smppgate/pkg/errors"
	"github.com/absmach/smppgate/pkg/ticker"
)

// stopWaitTime bounds the unbind handshake during shutdown.
const stopWaitTime = 5 * time.Second

// TransportService supervises the SMPP link of one transport: dial,
// bind, run until the session dies, reconnect under exponential
// backoff. It is run by main next to the HTTP server and satisfies the
// same Start/Stop contract.
type TransportService struct {
	cfg       TransportConfig
	svc       Service
	connector *BrokerConnector
	clock     ticker.Clock
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	session *Session
}

// NewTransportService wires the supervisor. The context and cancel
// pair comes from main, shared with the signal handler.
func NewTransportService(ctx context.Context, cancel context.CancelFunc, cfg TransportConfig, svc Service, connector *BrokerConnector, clock ticker.Clock, logger *slog.Logger) *TransportService {
	return &TransportService{
		cfg:       cfg,
		svc:       svc,
		connector: connector,
		clock:     clock,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start runs the connect loop until Stop or context cancellation. Each
// successful bind resets the backoff schedule.
func (t *TransportService) Start() error {
	t.connector.Open(t.ctx, t.svc)
	t.svc.Start(t.ctx)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0

	for {
		session, err := t.connect(t.ctx)
		if err != nil {
			if t.ctx.Err() != nil {
				return nil
			}
			wait := bo.NextBackOff()
			t.logger.Error("Connecting to SMSC failed.",
				slog.String("address", t.cfg.Addr()),
				slog.Duration("retry_in", wait),
				slog.Any("error", err),
			)
			if !t.sleep(wait) {
				return nil
			}
			continue
		}
		bo.Reset()

		t.setSession(session)
		t.svc.AttachSession(session)
		// The throttle latch outranks the bind: a throttled transport
		// stays paused and drains its retry queue first.
		if !t.svc.Throttled() {
			if err := t.connector.Resume(t.ctx); err != nil {
				t.logger.Error("Resuming outbound consumer failed.", slog.Any("error", err))
			}
		}
		t.logger.Info(fmt.Sprintf("%s transport bound to %s", t.cfg.TransportName, t.cfg.Addr()))

		select {
		case <-session.Done():
		case <-t.ctx.Done():
		}

		t.svc.DetachSession()
		t.setSession(nil)
		if err := t.connector.Pause(t.ctx); err != nil && t.ctx.Err() == nil {
			t.logger.Error("Pausing outbound consumer failed.", slog.Any("error", err))
		}

		if t.ctx.Err() != nil {
			return nil
		}
		t.logger.Warn("Session ended, reconnecting.", slog.Any("error", session.Err()))
	}
}

// Stop unbinds gracefully and halts the connect loop.
func (t *TransportService) Stop() error {
	defer t.cancel()
	t.svc.Stop()

	t.mu.Lock()
	session := t.session
	t.session = nil
	t.mu.Unlock()
	if session != nil {
		ctx, cancel := context.WithTimeout(context.Background(), stopWaitTime)
		defer cancel()
		if err := session.Close(ctx); err != nil && !errors.Contains(err, ErrSessionClosed) {
			return err
		}
	}
	t.logger.Info(fmt.Sprintf("%s transport shutdown at %s", t.cfg.TransportName, t.cfg.Addr()))

	return nil
}

func (t *TransportService) connect(ctx context.Context) (*Session, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.cfg.Addr())
	if err != nil {
		return nil, err
	}

	session := NewSession(conn, t.cfg.SessionConfig(), t.svc, t.clock, t.logger)
	if err := session.Bind(ctx); err != nil {
		return nil, err
	}

	return session, nil
}

func (t *TransportService) setSession(s *Session) {
	t.mu.Lock()
	t.session = s
	t.mu.Unlock()
}

// sleep waits out one backoff interval; false means the service is
// shutting down.
func (t *TransportService) sleep(d time.Duration) bool {
	timer := t.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C():
		return true
	case <-t.ctx.Done():
		return false
	}
}
