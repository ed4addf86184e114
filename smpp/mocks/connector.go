// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mocks

import (
	"context"
	"sync"

	"github.com/absmach/smppgate/smpp"
)

var _ smpp.Connector = (*Connector)(nil)

// Connector is a connector double tracking its pause state.
type Connector struct {
	mu      sync.Mutex
	paused  bool
	pauses  int
	resumes int
}

// NewConnector returns a paused connector double, matching the real
// connector's initial state.
func NewConnector() *Connector {
	return &Connector{paused: true}
}

func (c *Connector) Pause(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.paused = true
	c.pauses++

	return nil
}

func (c *Connector) Resume(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.paused = false
	c.resumes++

	return nil
}

func (c *Connector) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.paused
}

// Pauses returns how many times Pause ran.
func (c *Connector) Pauses() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.pauses
}

// Resumes returns how many times Resume ran.
func (c *Connector) Resumes() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.resumes
}
