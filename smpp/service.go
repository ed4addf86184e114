// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package smpp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fiorix/go-smpp/smpp/pdu"
	"github.com/fiorix/go-smpp/smpp/pdu/pdufield"

	"github.com/absmach/smppgate"
	"github.com/absmach/smppgate/pkg/errors"
	"github.com/absmach/smppgate/pkg/messaging"
	"github.com/absmach/smppgate/pkg/ticker"
)

// ErrNotBound indicates a submission attempted while no session is
// attached. The connector is paused while unbound, so hitting it means
// a message was already in flight when the link dropped; the broker
// redelivers it.
var ErrNotBound = errors.New("no bound session")

// Submitter is the session surface submissions go through.
type Submitter interface {
	Submit(ctx context.Context, p pdu.Body, prepare PrepareFunc) error
}

// Service is the core of one transport: it drives outbound messages to
// the wire and turns wire traffic back into bus records. It implements
// the session Handler, so a bound session feeds it directly.
type Service interface {
	// Forward consumes one outbound message from the broker and drives
	// it through the throttle gate to the wire.
	Forward(ctx context.Context, msg OutboundMessage) error

	// HandleDeliverSM routes one mobile-originated PDU through the
	// delivery-report and short-message processors.
	HandleDeliverSM(ctx context.Context, p pdu.Body) error

	// HandleSubmitSMResp resolves one submit_sm response against the
	// stash and the in-flight segment tracking.
	HandleSubmitSMResp(ctx context.Context, p pdu.Body) error

	// AttachSession installs the bound session submissions go through.
	AttachSession(sub Submitter)

	// DetachSession removes the current session. Submissions fail with
	// ErrNotBound until the next attach.
	DetachSession()

	// Throttled reports the throttle latch.
	Throttled() bool

	// Start arms the throttler's background tasks.
	Start(ctx context.Context)

	// Stop halts them.
	Stop()
}

// tracker follows one outbound message across its in-flight segments.
// Remote ids collect newest first, so a multipart ack joins them in
// reverse response-arrival order.
type tracker struct {
	msg         OutboundMessage
	outstanding int
	remoteIDs   []string
	failure     string
}

type service struct {
	cfg        TransportConfig
	instanceID string
	stash      MessageStash
	publisher  messaging.Publisher
	processors ProcessorSet
	throttler  *Throttler
	idp        smppgate.IDProvider
	evp        smppgate.IDProvider
	logger     *slog.Logger

	mu       sync.Mutex
	session  Submitter
	tracking map[string]*tracker
}

// New builds the transport service: it resolves the configured
// processor trio and wires the throttler around its own wire
// submission path. idp stamps inbound message ids, evp event ids.
func New(cfg TransportConfig, stash MessageStash, pub messaging.Publisher, conn Connector, clock ticker.Clock, idp, evp smppgate.IDProvider, instanceID string, logger *slog.Logger) (Service, error) {
	svc := &service{
		cfg:        cfg,
		instanceID: instanceID,
		stash:      stash,
		publisher:  pub,
		idp:        idp,
		evp:        evp,
		logger:     logger,
		tracking:   make(map[string]*tracker),
	}

	set, err := NewProcessorSet(ProcessorDeps{
		Config:     cfg,
		Stash:      stash,
		Dispatcher: svc,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	svc.processors = set
	svc.throttler = NewThrottler(cfg, svc.submitMessage, conn, stash, clock, logger)

	return svc, nil
}

func (s *service) Start(ctx context.Context) {
	s.throttler.Start(ctx)
}

func (s *service) Stop() {
	s.throttler.Stop()
}

func (s *service) AttachSession(sub Submitter) {
	s.mu.Lock()
	s.session = sub
	s.mu.Unlock()
}

func (s *service) DetachSession() {
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
}

func (s *service) Throttled() bool {
	return s.throttler.Throttled()
}

func (s *service) Forward(ctx context.Context, msg OutboundMessage) error {
	return s.throttler.Submit(ctx, msg)
}

// submitMessage is the post-gate submission path: render, cache, track
// and write. The throttler calls it for first attempts and retries
// alike.
func (s *service) submitMessage(ctx context.Context, msg OutboundMessage) error {
	pdus, err := s.processors.SubmitSM.MakeSubmitSM(msg)
	if err != nil {
		if rej, ok := err.(*RejectError); ok {
			return s.nack(ctx, msg.ID, rej.Reason)
		}
		return err
	}

	if err := s.stash.CacheMessage(ctx, msg); err != nil {
		return err
	}

	s.mu.Lock()
	sub := s.session
	s.mu.Unlock()
	if sub == nil {
		return ErrNotBound
	}

	s.track(msg, len(pdus))
	for _, p := range pdus {
		prepare := func(ctx context.Context, seq uint32) error {
			return s.stash.SetSequenceNumberMessageID(ctx, seq, msg.ID)
		}
		if err := sub.Submit(ctx, p, prepare); err != nil {
			s.untrack(msg.ID)
			return err
		}
	}

	return nil
}

func (s *service) HandleDeliverSM(ctx context.Context, p pdu.Body) error {
	consumed, err := s.processors.DeliveryReport.HandleDeliveryReport(ctx, p)
	if err != nil {
		return err
	}
	if consumed {
		return nil
	}

	return s.processors.DeliverSM.HandleShortMessage(ctx, p)
}

func (s *service) HandleSubmitSMResp(ctx context.Context, p pdu.Body) error {
	hdr := p.Header()
	id, err := s.stash.GetSequenceNumberMessageID(ctx, hdr.Seq)
	if err != nil {
		if errors.Contains(err, ErrStashMiss) {
			s.logger.Warn(fmt.Sprintf("Failed to retrieve message id for deliver_sm_resp. ack/nack from %s discarded.", s.cfg.TransportName),
				slog.Uint64("sequence_number", uint64(hdr.Seq)),
			)
			return nil
		}
		return err
	}

	if retryableStatus(hdr.Status) {
		// The whole message goes back through the gate, so any segment
		// state collected so far is void.
		s.untrack(id)
		s.throttler.MessageThrottled(ctx, id)
		return nil
	}
	s.throttler.MessageCleared(ctx)

	remote := fieldString(p.Fields(), pdufield.MessageID)
	if hdr.Status == statusOK && remote != "" {
		if err := s.stash.SetRemoteMessageID(ctx, id, remote); err != nil {
			return err
		}
	}

	s.mu.Lock()
	t, ok := s.tracking[id]
	if !ok {
		s.mu.Unlock()
		s.logger.Debug("Dropping response for untracked message.",
			slog.String("message_id", id),
			slog.Uint64("sequence_number", uint64(hdr.Seq)),
		)
		return nil
	}
	if remote != "" {
		t.remoteIDs = append([]string{remote}, t.remoteIDs...)
	}
	if hdr.Status != statusOK && t.failure == "" {
		t.failure = StatusName(hdr.Status)
	}
	t.outstanding--
	resolved := t.outstanding <= 0
	if resolved {
		delete(s.tracking, id)
	}
	s.mu.Unlock()

	if !resolved {
		return nil
	}

	if err := s.stash.DeleteCachedMessage(ctx, id); err != nil {
		s.logger.Warn("Deleting cached message failed.",
			slog.String("message_id", id),
			slog.Any("error", err),
		)
	}

	if t.failure != "" {
		return s.fail(ctx, t.msg, t.failure)
	}

	return s.ack(ctx, id, strings.Join(t.remoteIDs, ","))
}

func (s *service) track(msg OutboundMessage, segments int) {
	s.mu.Lock()
	s.tracking[msg.ID] = &tracker{msg: msg, outstanding: segments}
	s.mu.Unlock()
}

func (s *service) untrack(id string) {
	s.mu.Lock()
	delete(s.tracking, id)
	s.mu.Unlock()
}

func (s *service) ack(ctx context.Context, userMessageID, sentMessageID string) error {
	return s.PublishEvent(ctx, Event{
		Type:          EventAck,
		UserMessageID: userMessageID,
		SentMessageID: sentMessageID,
	})
}

func (s *service) nack(ctx context.Context, userMessageID, reason string) error {
	return s.PublishEvent(ctx, Event{
		Type:          EventNack,
		UserMessageID: userMessageID,
		NackReason:    reason,
	})
}

// fail emits the nack and the failure record of a terminal SMSC
// refusal.
func (s *service) fail(ctx context.Context, msg OutboundMessage, reason string) error {
	if err := s.nack(ctx, msg.ID, reason); err != nil {
		return err
	}

	return s.PublishFailure(ctx, FailureRecord{Reason: reason, Message: msg})
}

func (s *service) PublishInbound(ctx context.Context, msg InboundMessage) error {
	id, err := s.idp.ID()
	if err != nil {
		return err
	}
	msg.ID = id
	msg.Transport = s.cfg.TransportName
	msg.Timestamp = time.Now().UnixNano()

	return s.publish(ctx, SubtopicInbound, msg)
}

func (s *service) PublishEvent(ctx context.Context, ev Event) error {
	id, err := s.evp.ID()
	if err != nil {
		return err
	}
	ev.ID = id
	ev.Transport = s.cfg.TransportName
	ev.Timestamp = time.Now().UnixNano()

	return s.publish(ctx, SubtopicEvent, ev)
}

func (s *service) PublishFailure(ctx context.Context, rec FailureRecord) error {
	return s.publish(ctx, SubtopicFailure, rec)
}

func (s *service) publish(ctx context.Context, subtopic string, record interface{}) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	msg := &messaging.Message{
		Transport: s.cfg.TransportName,
		Subtopic:  subtopic,
		Publisher: s.instanceID,
		Protocol:  Protocol,
		Payload:   payload,
		Created:   time.Now().UnixNano(),
	}

	return s.publisher.Publish(ctx, s.cfg.TransportName, msg)
}
