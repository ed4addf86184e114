// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package smpp

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/absmach/smppgate/pkg/errors"
	"github.com/absmach/smppgate/pkg/messaging"
)

// ErrConnectorClosed indicates connector use before Open or after the
// gateway shut down.
var ErrConnectorClosed = errors.New("connector not open")

// BrokerConnector feeds the outbound subtopic of one transport into
// the service. It starts paused: nothing is consumed until the first
// Resume, which follows the first successful bind, so records
// published while unbound wait on the broker and drain in bus order.
type BrokerConnector struct {
	id     string
	topic  string
	pubsub messaging.PubSub
	logger *slog.Logger

	mu         sync.Mutex
	ctx        context.Context
	svc        Service
	subscribed bool
	paused     bool
}

var _ Connector = (*BrokerConnector)(nil)

// NewConnector builds the connector of one transport. The consumer id
// derives from the transport name, so instances of the same transport
// share a work queue and restarts keep their stream position.
func NewConnector(cfg TransportConfig, pubsub messaging.PubSub, logger *slog.Logger) *BrokerConnector {
	return &BrokerConnector{
		id:     Protocol + "-gateway." + cfg.TransportName,
		topic:  Subject(cfg.TransportName, SubtopicOutbound),
		pubsub: pubsub,
		logger: logger,
		paused: true,
	}
}

// Open hands the connector its consumption target. The subscription
// itself is deferred to the first Resume.
func (c *BrokerConnector) Open(ctx context.Context, svc Service) {
	c.mu.Lock()
	c.ctx = ctx
	c.svc = svc
	c.mu.Unlock()
}

// Pause stops delivery. Records published while paused stay on the
// stream. Pausing a paused or never-resumed connector is a no-op.
func (c *BrokerConnector) Pause(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.subscribed || c.paused {
		return nil
	}
	if err := c.pubsub.Pause(ctx, c.id, c.topic); err != nil {
		return err
	}
	c.paused = true

	return nil
}

// Resume restarts delivery, subscribing on first use.
func (c *BrokerConnector) Resume(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return nil
	}
	if !c.subscribed {
		if c.svc == nil {
			return ErrConnectorClosed
		}
		cfg := messaging.SubscriberConfig{
			ID:      c.id,
			Topic:   c.topic,
			Handler: &outboundHandler{ctx: c.ctx, svc: c.svc, logger: c.logger},
		}
		if err := c.pubsub.Subscribe(ctx, cfg); err != nil {
			return err
		}
		c.subscribed = true
		c.paused = false

		return nil
	}
	if err := c.pubsub.Resume(ctx, c.id, c.topic); err != nil {
		return err
	}
	c.paused = false

	return nil
}

// Paused reports whether delivery is stopped.
func (c *BrokerConnector) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.paused || !c.subscribed
}

// outboundHandler decodes outbound records and forwards them. A record
// that does not decode is dropped rather than redelivered forever.
type outboundHandler struct {
	ctx    context.Context
	svc    Service
	logger *slog.Logger
}

func (h *outboundHandler) Handle(m *messaging.Message) error {
	var msg OutboundMessage
	if err := json.Unmarshal(m.Payload, &msg); err != nil {
		h.logger.Error("Dropping undecodable outbound record.",
			slog.String("subtopic", m.Subtopic),
			slog.Any("error", err),
		)
		return nil
	}

	return h.svc.Forward(h.ctx, msg)
}

func (h *outboundHandler) Cancel() error {
	return nil
}
