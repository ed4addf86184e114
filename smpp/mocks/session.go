// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/fiorix/go-smpp/smpp/pdu"

	"github.com/absmach/smppgate/smpp"
)

var _ smpp.Submitter = (*Session)(nil)

// Session is a Submitter double: it numbers submissions the way a live
// session's writer would, runs the prepare hook, and keeps the PDUs for
// inspection.
type Session struct {
	mu        sync.Mutex
	seq       uint32
	err       error
	submitted []pdu.Body
	notify    chan pdu.Body
}

// NewSession returns a session double with sequence numbers starting
// at 1.
func NewSession() *Session {
	return &Session{notify: make(chan pdu.Body, 128)}
}

// SetErr makes every following Submit fail with err.
func (s *Session) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.err = err
}

func (s *Session) Submit(ctx context.Context, p pdu.Body, prepare smpp.PrepareFunc) error {
	s.mu.Lock()
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return err
	}
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	p.Header().Seq = seq
	if prepare != nil {
		if err := prepare(ctx, seq); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.submitted = append(s.submitted, p)
	s.mu.Unlock()
	select {
	case s.notify <- p:
	default:
	}

	return nil
}

// Submitted returns every PDU accepted so far, in submission order.
func (s *Session) Submitted() []pdu.Body {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]pdu.Body, len(s.submitted))
	copy(out, s.submitted)

	return out
}

// Await blocks until the next PDU is submitted or the timeout elapses.
func (s *Session) Await(timeout time.Duration) (pdu.Body, bool) {
	select {
	case p := <-s.notify:
		return p, true
	case <-time.After(timeout):
		return nil, false
	}
}
