// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/absmach/smppgate/pkg/messaging"
	broker "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const transportPrefix = "transport"

// Publisher and Subscriber errors.
var (
	ErrNotSubscribed = errors.New("not subscribed")
	ErrEmptyTopic    = errors.New("empty topic")
	ErrEmptyID       = errors.New("empty id")

	jsStreamConfig = jetstream.StreamConfig{
		Name:              "transport",
		Description:       "SMPP gateway stream for exchanging messages between transports and applications",
		Subjects:          []string{"transport.>"},
		Retention:         jetstream.LimitsPolicy,
		MaxMsgsPerSubject: 1e6,
		MaxAge:            time.Hour * 24,
		MaxMsgSize:        1024 * 1024,
		Discard:           jetstream.DiscardOld,
		Storage:           jetstream.FileStorage,
	}
)

var _ messaging.PubSub = (*pubsub)(nil)

type subscription struct {
	consumer jetstream.Consumer
	cctx     jetstream.ConsumeContext
	handler  func(m jetstream.Msg)
	paused   bool
}

type pubsub struct {
	publisher
	logger *slog.Logger
	stream jetstream.Stream
	mu     sync.Mutex
	subs   map[string]*subscription
}

// NewPubSub returns NATS message publisher/subscriber backed by a
// JetStream stream, so that messages published while a subscription
// is paused or absent are retained and delivered later.
func NewPubSub(ctx context.Context, url string, logger *slog.Logger, opts ...messaging.Option) (messaging.PubSub, error) {
	conn, err := broker.Connect(url, broker.MaxReconnects(maxReconnects))
	if err != nil {
		return nil, err
	}
	js, err := jetstream.New(conn)
	if err != nil {
		return nil, err
	}
	stream, err := js.CreateStream(ctx, jsStreamConfig)
	if err != nil {
		return nil, err
	}

	ret := &pubsub{
		publisher: publisher{
			js:     js,
			conn:   conn,
			prefix: transportPrefix,
		},
		stream: stream,
		logger: logger,
		subs:   make(map[string]*subscription),
	}

	for _, opt := range opts {
		if err := opt(ret); err != nil {
			return nil, err
		}
	}

	return ret, nil
}

func (ps *pubsub) Subscribe(ctx context.Context, cfg messaging.SubscriberConfig) error {
	if cfg.ID == "" {
		return ErrEmptyID
	}
	if cfg.Topic == "" {
		return ErrEmptyTopic
	}

	nh := ps.natsHandler(cfg.Handler)

	consumerConfig := jetstream.ConsumerConfig{
		Name:          formatConsumerName(cfg.Topic, cfg.ID),
		Durable:       formatConsumerName(cfg.Topic, cfg.ID),
		Description:   fmt.Sprintf("SMPP gateway consumer of id %s for topic %s", cfg.ID, cfg.Topic),
		DeliverPolicy: jetstream.DeliverNewPolicy,
		FilterSubject: cfg.Topic,
	}

	switch cfg.DeliveryPolicy {
	case messaging.DeliverNewPolicy:
		consumerConfig.DeliverPolicy = jetstream.DeliverNewPolicy
	case messaging.DeliverAllPolicy:
		consumerConfig.DeliverPolicy = jetstream.DeliverAllPolicy
	}

	consumer, err := ps.stream.CreateOrUpdateConsumer(ctx, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cctx, err := consumer.Consume(nh)
	if err != nil {
		return fmt.Errorf("failed to consume: %w", err)
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.subs[formatConsumerName(cfg.Topic, cfg.ID)] = &subscription{
		consumer: consumer,
		cctx:     cctx,
		handler:  nh,
	}

	return nil
}

func (ps *pubsub) Unsubscribe(ctx context.Context, id, topic string) error {
	if id == "" {
		return ErrEmptyID
	}
	if topic == "" {
		return ErrEmptyTopic
	}

	name := formatConsumerName(topic, id)

	ps.mu.Lock()
	if sub, ok := ps.subs[name]; ok {
		if !sub.paused {
			sub.cctx.Stop()
		}
		delete(ps.subs, name)
	}
	ps.mu.Unlock()

	err := ps.stream.DeleteConsumer(ctx, name)
	switch {
	case errors.Is(err, jetstream.ErrConsumerNotFound):
		return ErrNotSubscribed
	default:
		return err
	}
}

// Pause stops message delivery for the subscription. The durable
// consumer keeps its position, so messages published while paused are
// delivered after Resume.
func (ps *pubsub) Pause(ctx context.Context, id, topic string) error {
	if id == "" {
		return ErrEmptyID
	}
	if topic == "" {
		return ErrEmptyTopic
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	sub, ok := ps.subs[formatConsumerName(topic, id)]
	if !ok {
		return ErrNotSubscribed
	}
	if sub.paused {
		return nil
	}
	sub.cctx.Stop()
	sub.cctx = nil
	sub.paused = true

	return nil
}

func (ps *pubsub) Resume(ctx context.Context, id, topic string) error {
	if id == "" {
		return ErrEmptyID
	}
	if topic == "" {
		return ErrEmptyTopic
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	sub, ok := ps.subs[formatConsumerName(topic, id)]
	if !ok {
		return ErrNotSubscribed
	}
	if !sub.paused {
		return nil
	}
	cctx, err := sub.consumer.Consume(sub.handler)
	if err != nil {
		return fmt.Errorf("failed to consume: %w", err)
	}
	sub.cctx = cctx
	sub.paused = false

	return nil
}

func (ps *pubsub) natsHandler(h messaging.MessageHandler) func(m jetstream.Msg) {
	return func(m jetstream.Msg) {
		var msg messaging.Message
		if err := json.Unmarshal(m.Data(), &msg); err != nil {
			ps.logger.Warn(fmt.Sprintf("Failed to unmarshal received message: %s", err))

			return
		}

		if err := h.Handle(&msg); err != nil {
			ps.logger.Warn(fmt.Sprintf("Failed to handle gateway message: %s", err))
		}
		if err := m.Ack(); err != nil {
			ps.logger.Warn(fmt.Sprintf("Failed to ack message: %s", err))
		}
	}
}

func formatConsumerName(topic, id string) string {
	// A durable name cannot contain whitespace, ., *, >, path separators (forward or backwards slash), and non-printable characters.
	chars := []string{
		" ", "_",
		".", "_",
		"*", "_",
		">", "_",
		"/", "_",
		"\\", "_",
	}
	topic = strings.NewReplacer(chars...).Replace(topic)

	return fmt.Sprintf("%s-%s", topic, id)
}
