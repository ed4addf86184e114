// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/absmach/smppgate"
	"github.com/absmach/smppgate/pkg/errors"
	"github.com/absmach/smppgate/pkg/messaging"
	"github.com/absmach/smppgate/pkg/messaging/brokers"
	"github.com/absmach/smppgate/pkg/ulid"
	"github.com/absmach/smppgate/smpp"
)

var (
	errFailedHealth    = errors.New("failed to fetch service health")
	errUnknownSubtopic = errors.New("unknown subtopic")
)

// Gateway is the CLI's handle on a running gateway deployment: its
// HTTP surface for health checks and its broker for traffic.
type Gateway interface {
	// Health queries the health endpoint of the gateway at url.
	Health(url string) (smppgate.HealthInfo, error)

	// Send publishes one outbound record to a transport's bus queue
	// and returns the assigned message id.
	Send(ctx context.Context, transport string, msg smpp.OutboundMessage) (string, error)

	// Watch follows one subtopic of a transport, handing every record
	// to out until the context ends.
	Watch(ctx context.Context, transport, subtopic string, out func(*messaging.Message) error) error
}

// Keep the gateway handle in a global var, the way the platform CLI
// keeps its SDK.
var gw Gateway

// SetGateway sets the gateway instance commands run against.
func SetGateway(g Gateway) {
	gw = g
}

// GatewayConfig holds the remote endpoints the CLI talks to.
type GatewayConfig struct {
	BrokerURL string
}

type gateway struct {
	conf   GatewayConfig
	client *http.Client
	idp    smppgate.IDProvider
}

// NewGateway returns a gateway handle over HTTP and the configured
// broker. Record ids are ULIDs, so watch output sorts by send time.
func NewGateway(conf GatewayConfig) Gateway {
	return &gateway{
		conf:   conf,
		client: &http.Client{Timeout: 10 * time.Second},
		idp:    ulid.New(),
	}
}

func (g *gateway) Health(url string) (smppgate.HealthInfo, error) {
	resp, err := g.client.Get(strings.TrimSuffix(url, "/") + "/health")
	if err != nil {
		return smppgate.HealthInfo{}, errors.Wrap(errFailedHealth, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return smppgate.HealthInfo{}, errors.Wrap(errFailedHealth, fmt.Errorf("status %s", resp.Status))
	}

	var h smppgate.HealthInfo
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return smppgate.HealthInfo{}, errors.Wrap(errFailedHealth, err)
	}

	return h, nil
}

func (g *gateway) Send(ctx context.Context, transport string, msg smpp.OutboundMessage) (string, error) {
	id, err := g.idp.ID()
	if err != nil {
		return "", err
	}
	msg.ID = id
	msg.Transport = transport
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}

	pub, err := brokers.NewPublisher(ctx, g.conf.BrokerURL)
	if err != nil {
		return "", err
	}
	defer pub.Close()

	m := &messaging.Message{
		Transport: transport,
		Subtopic:  smpp.SubtopicOutbound,
		Protocol:  smpp.Protocol,
		Payload:   payload,
		Created:   time.Now().UnixNano(),
	}
	if err := pub.Publish(ctx, transport, m); err != nil {
		return "", err
	}

	return id, nil
}

func (g *gateway) Watch(ctx context.Context, transport, subtopic string, out func(*messaging.Message) error) error {
	switch subtopic {
	case smpp.SubtopicInbound, smpp.SubtopicOutbound, smpp.SubtopicEvent, smpp.SubtopicFailure:
	default:
		return errors.Wrap(errUnknownSubtopic, errors.New(subtopic))
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	pubsub, err := brokers.NewPubSub(ctx, g.conf.BrokerURL, logger)
	if err != nil {
		return err
	}
	defer pubsub.Close()

	id, err := g.idp.ID()
	if err != nil {
		return err
	}
	cfg := messaging.SubscriberConfig{
		ID:      "smppgate-cli." + id,
		Topic:   smpp.Subject(transport, subtopic),
		Handler: watchHandler(out),
	}
	if err := pubsub.Subscribe(ctx, cfg); err != nil {
		return err
	}
	<-ctx.Done()

	return pubsub.Unsubscribe(context.Background(), cfg.ID, cfg.Topic)
}

type watchHandler func(*messaging.Message) error

func (h watchHandler) Handle(m *messaging.Message) error {
	return h(m)
}

func (h watchHandler) Cancel() error {
	return nil
}
