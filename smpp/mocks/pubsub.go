// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/absmach/smppgate/pkg/messaging"
	"github.com/absmach/smppgate/smpp"
)

var _ messaging.PubSub = (*PubSub)(nil)

// Record is one captured publish.
type Record struct {
	Topic   string
	Message *messaging.Message
}

// PubSub is an in-memory broker double. Like the real publishers it
// composes the subject from the transport name and the envelope
// subtopic, so records land on full subjects and subscriptions match
// by exact subject. Publishes are delivered synchronously; paused
// subscriptions accumulate a backlog that Resume drains in order,
// which is exactly the property the connector relies on.
type PubSub struct {
	mu      sync.Mutex
	records []Record
	notify  chan Record
	subs    map[string]*subscription
}

type subscription struct {
	handler messaging.MessageHandler
	paused  bool
	backlog []*messaging.Message
}

// NewPubSub returns an empty broker double.
func NewPubSub() *PubSub {
	return &PubSub{
		notify: make(chan Record, 1024),
		subs:   make(map[string]*subscription),
	}
}

func (ps *PubSub) Publish(ctx context.Context, topic string, msg *messaging.Message) error {
	subject := smpp.SubjectPrefix + "." + topic
	if msg.Subtopic != "" {
		subject = subject + "." + msg.Subtopic
	}

	ps.mu.Lock()
	ps.records = append(ps.records, Record{Topic: subject, Message: msg})
	sub := ps.subs[subject]
	var handler messaging.MessageHandler
	if sub != nil {
		if sub.paused {
			sub.backlog = append(sub.backlog, msg)
		} else {
			handler = sub.handler
		}
	}
	ps.mu.Unlock()

	select {
	case ps.notify <- Record{Topic: subject, Message: msg}:
	default:
	}

	if handler != nil {
		return handler.Handle(msg)
	}

	return nil
}

func (ps *PubSub) Subscribe(ctx context.Context, cfg messaging.SubscriberConfig) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.subs[cfg.Topic] = &subscription{handler: cfg.Handler}

	return nil
}

func (ps *PubSub) Unsubscribe(ctx context.Context, id, topic string) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	delete(ps.subs, topic)

	return nil
}

func (ps *PubSub) Pause(ctx context.Context, id, topic string) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	sub, ok := ps.subs[topic]
	if !ok {
		return fmt.Errorf("no subscription on %s", topic)
	}
	sub.paused = true

	return nil
}

func (ps *PubSub) Resume(ctx context.Context, id, topic string) error {
	ps.mu.Lock()
	sub, ok := ps.subs[topic]
	if !ok {
		ps.mu.Unlock()
		return fmt.Errorf("no subscription on %s", topic)
	}
	sub.paused = false
	backlog := sub.backlog
	sub.backlog = nil
	handler := sub.handler
	ps.mu.Unlock()

	for _, msg := range backlog {
		if err := handler.Handle(msg); err != nil {
			return err
		}
	}

	return nil
}

func (ps *PubSub) Close() error {
	return nil
}

// Records returns the publishes captured on one topic so far.
func (ps *PubSub) Records(topic string) []*messaging.Message {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	var msgs []*messaging.Message
	for _, rec := range ps.records {
		if rec.Topic == topic {
			msgs = append(msgs, rec.Message)
		}
	}

	return msgs
}

// Await blocks until something is published on topic or the timeout
// elapses. Publishes captured before the call are not replayed.
func (ps *PubSub) Await(topic string, timeout time.Duration) (*messaging.Message, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case rec := <-ps.notify:
			if rec.Topic == topic {
				return rec.Message, true
			}
		case <-deadline:
			return nil, false
		}
	}
}

// PausedTopic reports whether the subscription on topic is paused.
func (ps *PubSub) PausedTopic(topic string) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	sub, ok := ps.subs[topic]

	return ok && sub.paused
}
