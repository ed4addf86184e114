// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0
package tracing

import (
	"context"

	"github.com/absmach/smppgate/internal/server"
	"github.com/absmach/smppgate/pkg/messaging"
	"github.com/absmach/smppgate/pkg/messaging/tracing"
	"go.opentelemetry.io/otel/trace"
)

// Traced operations.
const (
	subscribeOP = "subscribe"
	processOP   = "process"
)

var _ messaging.PubSub = (*pubsubMiddleware)(nil)

type pubsubMiddleware struct {
	publisherMiddleware
	pubsub messaging.PubSub
}

// NewPubSub creates a new pubsub middleware that traces pubsub operations.
func NewPubSub(config server.Config, tracer trace.Tracer, pubsub messaging.PubSub) messaging.PubSub {
	return &pubsubMiddleware{
		publisherMiddleware: publisherMiddleware{
			publisher: pubsub,
			tracer:    tracer,
			host:      config,
		},
		pubsub: pubsub,
	}
}

// Subscribe traces a subscribe operation and instruments the handler
// so that every received message is traced as well.
func (pm *pubsubMiddleware) Subscribe(ctx context.Context, cfg messaging.SubscriberConfig) error {
	ctx, span := tracing.CreateSpan(ctx, subscribeOP, cfg.ID, cfg.Topic, "", 0, pm.host, trace.SpanKindClient, pm.tracer)
	defer span.End()
	span.SetAttributes(defaultAttributes...)

	cfg.Handler = &traceHandler{
		ctx:     ctx,
		handler: cfg.Handler,
		tracer:  pm.tracer,
		host:    pm.host,
		topic:   cfg.Topic,
	}

	return pm.pubsub.Subscribe(ctx, cfg)
}

// Unsubscribe removes an existing subscription.
func (pm *pubsubMiddleware) Unsubscribe(ctx context.Context, id, topic string) error {
	return pm.pubsub.Unsubscribe(ctx, id, topic)
}

// Pause stops delivery for an existing subscription.
func (pm *pubsubMiddleware) Pause(ctx context.Context, id, topic string) error {
	return pm.pubsub.Pause(ctx, id, topic)
}

// Resume restarts delivery for a paused subscription.
func (pm *pubsubMiddleware) Resume(ctx context.Context, id, topic string) error {
	return pm.pubsub.Resume(ctx, id, topic)
}

type traceHandler struct {
	ctx     context.Context
	handler messaging.MessageHandler
	tracer  trace.Tracer
	host    server.Config
	topic   string
}

// Handle instruments the message handling operation.
func (h *traceHandler) Handle(msg *messaging.Message) error {
	_, span := tracing.CreateSpan(h.ctx, processOP, msg.Publisher, h.topic, msg.Subtopic, len(msg.Payload), h.host, trace.SpanKindConsumer, h.tracer)
	defer span.End()
	span.SetAttributes(defaultAttributes...)

	return h.handler.Handle(msg)
}

// Cancel forwards the cleanup call to the wrapped handler.
func (h *traceHandler) Cancel() error {
	return h.handler.Cancel()
}
