// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/absmach/smppgate/pkg/messaging"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	transportPrefix = "transport"
	exchangeName    = "transport"
)

// Publisher and Subscriber errors.
var (
	ErrNotSubscribed = errors.New("not subscribed")
	ErrEmptyTopic    = errors.New("empty topic")
	ErrEmptyID       = errors.New("empty id")
)

var _ messaging.PubSub = (*pubsub)(nil)

type subscription struct {
	queue   string
	tag     string
	handler messaging.MessageHandler
	paused  bool
}

type pubsub struct {
	publisher
	logger *slog.Logger
	mu     sync.Mutex
	subs   map[string]*subscription
}

// NewPubSub returns RabbitMQ message publisher/subscriber. Queues are
// durable, so messages routed while a subscription is paused are
// retained and delivered on Resume.
func NewPubSub(url string, logger *slog.Logger, opts ...messaging.Option) (messaging.PubSub, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	ret := &pubsub{
		publisher: publisher{
			conn:     conn,
			channel:  ch,
			prefix:   transportPrefix,
			exchange: exchangeName,
		},
		logger: logger,
		subs:   make(map[string]*subscription),
	}

	for _, opt := range opts {
		if err := opt(ret); err != nil {
			return nil, err
		}
	}

	if err := ret.channel.ExchangeDeclare(ret.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, err
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

	name := formatSubscriptionName(cfg.Topic, cfg.ID)

	ps.mu.Lock()
	if sub, ok := ps.subs[name]; ok {
		if !sub.paused {
			if err := ps.channel.Cancel(sub.tag, false); err != nil {
				ps.mu.Unlock()
				return err
			}
		}
		delete(ps.subs, name)
	}
	ps.mu.Unlock()

	queue, err := ps.channel.QueueDeclare(name, true, false, false, false, nil)
	if err != nil {
		return err
	}
	if err := ps.channel.QueueBind(queue.Name, formatTopic(cfg.Topic), ps.exchange, false, nil); err != nil {
		return err
	}

	msgs, err := ps.channel.Consume(queue.Name, name, true, false, false, false, nil)
	if err != nil {
		return err
	}
	go ps.handle(msgs, cfg.Handler)

	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.subs[name] = &subscription{
		queue:   queue.Name,
		tag:     name,
		handler: cfg.Handler,
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

	ps.mu.Lock()
	defer ps.mu.Unlock()

	name := formatSubscriptionName(topic, id)
	sub, ok := ps.subs[name]
	if !ok {
		return ErrNotSubscribed
	}
	if !sub.paused {
		if err := ps.channel.Cancel(sub.tag, false); err != nil {
			return err
		}
	}
	delete(ps.subs, name)

	return sub.handler.Cancel()
}

// Pause cancels the consumer while keeping the durable queue bound, so
// routed messages accumulate until Resume.
func (ps *pubsub) Pause(ctx context.Context, id, topic string) error {
	if id == "" {
		return ErrEmptyID
	}
	if topic == "" {
		return ErrEmptyTopic
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	sub, ok := ps.subs[formatSubscriptionName(topic, id)]
	if !ok {
		return ErrNotSubscribed
	}
	if sub.paused {
		return nil
	}
	if err := ps.channel.Cancel(sub.tag, false); err != nil {
		return err
	}
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

	sub, ok := ps.subs[formatSubscriptionName(topic, id)]
	if !ok {
		return ErrNotSubscribed
	}
	if !sub.paused {
		return nil
	}
	msgs, err := ps.channel.Consume(sub.queue, sub.tag, true, false, false, false, nil)
	if err != nil {
		return err
	}
	go ps.handle(msgs, sub.handler)
	sub.paused = false

	return nil
}

func (ps *pubsub) handle(deliveries <-chan amqp.Delivery, h messaging.MessageHandler) {
	for d := range deliveries {
		var msg messaging.Message
		if err := json.Unmarshal(d.Body, &msg); err != nil {
			ps.logger.Warn(fmt.Sprintf("Failed to unmarshal received message: %s", err))

			continue
		}
		if err := h.Handle(&msg); err != nil {
			ps.logger.Warn(fmt.Sprintf("Failed to handle gateway message: %s", err))
		}
	}
}

func formatSubscriptionName(topic, id string) string {
	return fmt.Sprintf("%s-%s", topic, id)
}
