// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/absmach/smppgate/pkg/messaging"
	amqp "github.com/rabbitmq/amqp091-go"
)

var _ messaging.Publisher = (*publisher)(nil)

type publisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	prefix   string
	exchange string
}

// NewPublisher returns RabbitMQ message Publisher.
func NewPublisher(url string, opts ...messaging.Option) (messaging.Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	ret := &publisher{
		conn:     conn,
		channel:  ch,
		prefix:   transportPrefix,
		exchange: exchangeName,
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

func (pub *publisher) Publish(ctx context.Context, topic string, msg *messaging.Message) error {
	if topic == "" {
		return ErrEmptyTopic
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("%s.%s", pub.prefix, topic)
	if msg.Subtopic != "" {
		subject = fmt.Sprintf("%s.%s", subject, msg.Subtopic)
	}
	subject = formatTopic(subject)

	return pub.channel.PublishWithContext(
		ctx,
		pub.exchange,
		subject,
		false,
		false,
		amqp.Publishing{
			Headers:     amqp.Table{},
			ContentType: "application/json",
			AppId:       "smppgate-publisher",
			Body:        data,
		})
}

func (pub *publisher) Close() error {
	if err := pub.channel.Close(); err != nil {
		return err
	}

	return pub.conn.Close()
}

func formatTopic(topic string) string {
	return strings.ReplaceAll(topic, ">", "#")
}
