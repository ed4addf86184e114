// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mocks

import (
	"context"
	"sync"

	"github.com/absmach/smppgate"
	"github.com/absmach/smppgate/cli"
	"github.com/absmach/smppgate/pkg/messaging"
	"github.com/absmach/smppgate/smpp"
)

var _ cli.Gateway = (*Gateway)(nil)

// SendRequest records one Send call.
type SendRequest struct {
	Transport string
	Message   smpp.OutboundMessage
}

// WatchRequest records one Watch call.
type WatchRequest struct {
	Transport string
	Subtopic  string
}

// Gateway is a scripted gateway client. Calls return the configured
// responses and are recorded for inspection.
type Gateway struct {
	mu sync.Mutex

	health     smppgate.HealthInfo
	healthErr  error
	healthURLs []string

	sendID  string
	sendErr error
	sends   []SendRequest

	watchRecords []messaging.Message
	watchErr     error
	watches      []WatchRequest
}

// NewGateway returns a gateway mock with no scripted responses.
func NewGateway() *Gateway {
	return &Gateway{}
}

// SetHealth scripts the response of Health.
func (g *Gateway) SetHealth(h smppgate.HealthInfo, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.health = h
	g.healthErr = err
}

// SetSend scripts the response of Send.
func (g *Gateway) SetSend(id string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.sendID = id
	g.sendErr = err
}

// SetWatch scripts Watch to hand records to the output callback before
// returning err.
func (g *Gateway) SetWatch(records []messaging.Message, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.watchRecords = records
	g.watchErr = err
}

func (g *Gateway) Health(url string) (smppgate.HealthInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.healthURLs = append(g.healthURLs, url)

	return g.health, g.healthErr
}

func (g *Gateway) Send(ctx context.Context, transport string, msg smpp.OutboundMessage) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.sends = append(g.sends, SendRequest{Transport: transport, Message: msg})
	if g.sendErr != nil {
		return "", g.sendErr
	}

	return g.sendID, nil
}

func (g *Gateway) Watch(ctx context.Context, transport, subtopic string, out func(*messaging.Message) error) error {
	g.mu.Lock()
	records := make([]messaging.Message, len(g.watchRecords))
	copy(records, g.watchRecords)
	g.watches = append(g.watches, WatchRequest{Transport: transport, Subtopic: subtopic})
	err := g.watchErr
	g.mu.Unlock()

	if err != nil {
		return err
	}
	for i := range records {
		if err := out(&records[i]); err != nil {
			return err
		}
	}

	return nil
}

// HealthCalls returns the URLs Health was called with.
func (g *Gateway) HealthCalls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]string(nil), g.healthURLs...)
}

// SendCalls returns the recorded Send requests.
func (g *Gateway) SendCalls() []SendRequest {
	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]SendRequest(nil), g.sends...)
}

// WatchCalls returns the recorded Watch requests.
func (g *Gateway) WatchCalls() []WatchRequest {
	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]WatchRequest(nil), g.watches...)
}
