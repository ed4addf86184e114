// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package smpp_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/fiorix/go-smpp/smpp/pdu"
	"github.com/fiorix/go-smpp/smpp/pdu/pdufield"
	"github.com/fiorix/go-smpp/smpp/pdu/pdutlv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absmach/smppgate/pkg/errors"
	"github.com/absmach/smppgate/pkg/ticker"
	"github.com/absmach/smppgate/pkg/uuid"
	"github.com/absmach/smppgate/smpp"
	"github.com/absmach/smppgate/smpp/mocks"
)

const (
	testTransport = "testtransport"
	instanceID    = "5de9b29a-feb9-11ed-be56-0242ac120002"
)

type serviceFixture struct {
	svc     smpp.Service
	session *mocks.Session
	stash   *mocks.MessageStash
	pubsub  *mocks.PubSub
	conn    *mocks.Connector
	clock   *ticker.VirtualClock
	buf     *syncBuffer
}

func newServiceFixture(t *testing.T, mutate func(*smpp.TransportConfig)) *serviceFixture {
	t.Helper()

	cfg := smpp.DefaultTransportConfig()
	cfg.TransportName = testTransport
	if mutate != nil {
		mutate(&cfg)
	}

	f := &serviceFixture{
		session: mocks.NewSession(),
		stash:   mocks.NewMessageStash(),
		pubsub:  mocks.NewPubSub(),
		conn:    mocks.NewConnector(),
		clock:   ticker.NewVirtualClock(time.Unix(0, 0)),
		buf:     &syncBuffer{},
	}
	logger := slog.New(slog.NewJSONHandler(f.buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	svc, err := smpp.New(cfg, f.stash, f.pubsub, f.conn, f.clock, uuid.NewMock(), uuid.NewMock(), instanceID, logger)
	require.Nil(t, err, fmt.Sprintf("unexpected error: %s", err))
	f.svc = svc

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		svc.Stop()
		cancel()
	})
	svc.Start(ctx)
	svc.AttachSession(f.session)
	require.Nil(t, f.conn.Resume(ctx), "resume connector double")

	return f
}

func (f *serviceFixture) events(t *testing.T) []smpp.Event {
	t.Helper()

	var evs []smpp.Event
	for _, m := range f.pubsub.Records(smpp.Subject(testTransport, smpp.SubtopicEvent)) {
		var ev smpp.Event
		require.Nil(t, json.Unmarshal(m.Payload, &ev), "decode event record")
		evs = append(evs, ev)
	}

	return evs
}

func (f *serviceFixture) inbound(t *testing.T) []smpp.InboundMessage {
	t.Helper()

	var msgs []smpp.InboundMessage
	for _, m := range f.pubsub.Records(smpp.Subject(testTransport, smpp.SubtopicInbound)) {
		var msg smpp.InboundMessage
		require.Nil(t, json.Unmarshal(m.Payload, &msg), "decode inbound record")
		msgs = append(msgs, msg)
	}

	return msgs
}

func (f *serviceFixture) failures(t *testing.T) []smpp.FailureRecord {
	t.Helper()

	var recs []smpp.FailureRecord
	for _, m := range f.pubsub.Records(smpp.Subject(testTransport, smpp.SubtopicFailure)) {
		var rec smpp.FailureRecord
		require.Nil(t, json.Unmarshal(m.Payload, &rec), "decode failure record")
		recs = append(recs, rec)
	}

	return recs
}

func deliverSM(t *testing.T, from, to string, dataCoding uint8, body []byte) pdu.Body {
	t.Helper()

	p := pdu.NewDeliverSM()
	f := p.Fields()
	require.Nil(t, f.Set(pdufield.SourceAddr, from), "set source_addr")
	require.Nil(t, f.Set(pdufield.DestinationAddr, to), "set destination_addr")
	require.Nil(t, f.Set(pdufield.DataCoding, dataCoding), "set data_coding")
	require.Nil(t, f.Set(pdufield.ShortMessage, body), "set short_message")

	return p
}

// udhBody prepends the 8-bit concatenation header some SMSCs leave on
// the short_message field itself.
func udhBody(ref uint8, total, index int, text string) []byte {
	udh := []byte{0x05, 0x00, 0x03, ref, uint8(total), uint8(index)}

	return append(udh, []byte(text)...)
}

func submitResp(t *testing.T, seq uint32, status pdu.Status, remoteID string) pdu.Body {
	t.Helper()

	p := pdu.NewSubmitSMResp()
	p.Header().Seq = seq
	p.Header().Status = status
	if remoteID != "" {
		require.Nil(t, p.Fields().Set(pdufield.MessageID, remoteID), "set message_id")
	}

	return p
}

func awaitPDU(t *testing.T, session *mocks.Session) pdu.Body {
	t.Helper()

	p, ok := session.Await(waitTimeout)
	require.True(t, ok, "timed out waiting for a wire submission")

	return p
}

func TestHandleDeliverSMPublishesInbound(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	err := f.svc.HandleDeliverSM(ctx, deliverSM(t, "123", "456", 1, []byte("foo")))
	require.Nil(t, err, fmt.Sprintf("unexpected error: %s", err))

	msgs := f.inbound(t)
	require.Equal(t, 1, len(msgs), fmt.Sprintf("expected 1 inbound record got %d\n", len(msgs)))
	want := smpp.InboundMessage{
		ID:            fmt.Sprintf("%s%012d", uuid.Prefix, 1),
		Content:       "foo",
		To:            "456",
		From:          "123",
		TransportType: smpp.TransportTypeSMS,
		Transport:     testTransport,
		Timestamp:     msgs[0].Timestamp,
	}
	assert.Equal(t, want, msgs[0], fmt.Sprintf("expected %v got %v\n", want, msgs[0]))
	assert.NotZero(t, msgs[0].Timestamp, "inbound record must carry a timestamp")

	recs := f.pubsub.Records(smpp.Subject(testTransport, smpp.SubtopicInbound))
	require.Equal(t, 1, len(recs), "expected a single broker envelope")
	assert.Equal(t, smpp.Protocol, recs[0].Protocol, "envelope protocol mismatch")
	assert.Equal(t, instanceID, recs[0].Publisher, "envelope publisher mismatch")
	assert.Equal(t, testTransport, recs[0].Transport, "envelope transport mismatch")
	assert.Equal(t, smpp.SubtopicInbound, recs[0].Subtopic, "envelope subtopic mismatch")
}

func TestHandleDeliverSMMultipartOutOfOrder(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	err := f.svc.HandleDeliverSM(ctx, deliverSM(t, "123", "456", 1, udhBody(0xff, 3, 1, "back ")))
	require.Nil(t, err, fmt.Sprintf("unexpected error: %s", err))
	err = f.svc.HandleDeliverSM(ctx, deliverSM(t, "123", "456", 1, udhBody(0xff, 3, 3, "you")))
	require.Nil(t, err, fmt.Sprintf("unexpected error: %s", err))
	assert.Equal(t, 0, len(f.inbound(t)), "nothing may publish before the last segment lands")

	err = f.svc.HandleDeliverSM(ctx, deliverSM(t, "123", "456", 1, udhBody(0xff, 3, 2, "at ")))
	require.Nil(t, err, fmt.Sprintf("unexpected error: %s", err))

	msgs := f.inbound(t)
	require.Equal(t, 1, len(msgs), fmt.Sprintf("expected 1 inbound record got %d\n", len(msgs)))
	assert.Equal(t, "back at you", msgs[0].Content, fmt.Sprintf("expected %s got %s\n", "back at you", msgs[0].Content))
	assert.Equal(t, "123", msgs[0].From, "from_addr mismatch")
	assert.Equal(t, "456", msgs[0].To, "to_addr mismatch")
	assert.Equal(t, smpp.TransportTypeSMS, msgs[0].TransportType, "transport_type mismatch")
}

func TestForwardAckOnSubmitSMResp(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	msg := smpp.OutboundMessage{ID: "444", To: "+41791234567", From: "9292", Content: "hello world"}
	err := f.svc.Forward(ctx, msg)
	require.Nil(t, err, fmt.Sprintf("unexpected error: %s", err))

	p := awaitPDU(t, f.session)
	assert.Equal(t, pdu.SubmitSMID, p.Header().ID, "expected a submit_sm on the wire")
	fields := p.Fields()
	assert.Equal(t, "9292", fields[pdufield.SourceAddr].String(), "source_addr mismatch")
	assert.Equal(t, "+41791234567", fields[pdufield.DestinationAddr].String(), "destination_addr mismatch")
	assert.Equal(t, "hello world", fields[pdufield.ShortMessage].String(), "short_message mismatch")
	assert.Equal(t, uint8(0x01), fields[pdufield.RegisteredDelivery].Bytes()[0], "registered_delivery mismatch")
	assert.Equal(t, uint8(0x01), fields[pdufield.DataCoding].Bytes()[0], "data_coding mismatch")

	err = f.svc.HandleSubmitSMResp(ctx, submitResp(t, p.Header().Seq, 0, "1His1"))
	require.Nil(t, err, fmt.Sprintf("unexpected error: %s", err))

	evs := f.events(t)
	require.Equal(t, 1, len(evs), fmt.Sprintf("expected 1 event got %d\n", len(evs)))
	assert.Equal(t, smpp.EventAck, evs[0].Type, "event type mismatch")
	assert.Equal(t, "444", evs[0].UserMessageID, "user_message_id mismatch")
	assert.Equal(t, "1His1", evs[0].SentMessageID, "sent_message_id mismatch")
	assert.Equal(t, testTransport, evs[0].Transport, "transport_name mismatch")

	internal, err := f.stash.GetInternalMessageID(ctx, "1His1")
	require.Nil(t, err, fmt.Sprintf("unexpected error: %s", err))
	assert.Equal(t, "444", internal, "remote id must map back to the internal id")

	_, err = f.stash.GetCachedMessage(ctx, "444")
	assert.True(t, errors.Contains(err, smpp.ErrStashMiss), "resolved message must leave the cache")
}

func TestForwardThrottledRetry(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	msg := smpp.OutboundMessage{ID: "444", To: "+41791234567", From: "9292", Content: "so long lads"}
	require.Nil(t, f.svc.Forward(ctx, msg), "forward message")
	first := awaitPDU(t, f.session)

	err := f.svc.HandleSubmitSMResp(ctx, submitResp(t, first.Header().Seq, pdu.Status(0x00000058), ""))
	require.Nil(t, err, fmt.Sprintf("unexpected error: %s", err))
	assert.True(t, f.svc.Throttled(), "throttled response must set the latch")
	assert.Equal(t, 0, len(f.events(t)), "a throttled response is not a refusal")

	// One probe per throttle_delay resubmits the queued message with a
	// fresh sequence number.
	f.clock.Advance(time.Second)
	retry := awaitPDU(t, f.session)
	assert.Greater(t, retry.Header().Seq, first.Header().Seq, "retry must draw a fresh sequence number")
	assert.Equal(t, "so long lads", retry.Fields()[pdufield.ShortMessage].String(), "retry body mismatch")

	err = f.svc.HandleSubmitSMResp(ctx, submitResp(t, retry.Header().Seq, 0, "bar"))
	require.Nil(t, err, fmt.Sprintf("unexpected error: %s", err))

	evs := f.events(t)
	require.Equal(t, 1, len(evs), fmt.Sprintf("expected 1 event got %d\n", len(evs)))
	assert.Equal(t, smpp.EventAck, evs[0].Type, "event type mismatch")
	assert.Equal(t, "444", evs[0].UserMessageID, "user_message_id mismatch")
	assert.Equal(t, "bar", evs[0].SentMessageID, "sent_message_id mismatch")

	f.clock.Advance(0)
	assert.Eventually(t, func() bool {
		return !f.svc.Throttled() && !f.conn.Paused()
	}, waitTimeout, time.Millisecond, "latch must lift after the cleared retry")
}

func TestHandleSubmitSMRespOutOfOrder(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	msg1 := smpp.OutboundMessage{ID: "444", To: "+41791234567", From: "9292", Content: "hello world"}
	msg2 := smpp.OutboundMessage{ID: "445", To: "+41791234568", From: "9292", Content: "it is I"}
	require.Nil(t, f.svc.Forward(ctx, msg1), "forward first message")
	first := awaitPDU(t, f.session)
	require.Nil(t, f.svc.Forward(ctx, msg2), "forward second message")
	second := awaitPDU(t, f.session)

	// Responses land in the reverse of submission order.
	err := f.svc.HandleSubmitSMResp(ctx, submitResp(t, second.Header().Seq, 0, "remote-445"))
	require.Nil(t, err, fmt.Sprintf("unexpected error: %s", err))
	err = f.svc.HandleSubmitSMResp(ctx, submitResp(t, first.Header().Seq, 0, "remote-444"))
	require.Nil(t, err, fmt.Sprintf("unexpected error: %s", err))

	evs := f.events(t)
	require.Equal(t, 2, len(evs), fmt.Sprintf("expected 2 events got %d\n", len(evs)))
	assert.Equal(t, "445", evs[0].UserMessageID, "first ack must pair with the later submission")
	assert.Equal(t, "remote-445", evs[0].SentMessageID, "sent_message_id mismatch")
	assert.Equal(t, "444", evs[1].UserMessageID, "second ack must pair with the earlier submission")
	assert.Equal(t, "remote-444", evs[1].SentMessageID, "sent_message_id mismatch")
}

func TestForwardMultipartAck(t *testing.T) {
	f := newServiceFixture(t, func(cfg *smpp.TransportConfig) {
		cfg.SubmitShortMessageProcessorConfig.SendMultipartUDH = true
	})
	ctx := context.Background()

	content := strings.Repeat("0123456789", 16) + "x"
	msg := smpp.OutboundMessage{ID: "444", To: "+41791234567", From: "9292", Content: content}
	require.Nil(t, f.svc.Forward(ctx, msg), "forward multipart message")

	first := awaitPDU(t, f.session)
	second := awaitPDU(t, f.session)
	b1 := first.Fields()[pdufield.ShortMessage].Bytes()
	b2 := second.Fields()[pdufield.ShortMessage].Bytes()
	require.True(t, len(b1) > 6 && len(b2) > 6, "segments must carry the concatenation header")
	assert.Equal(t, []byte{0x05, 0x00, 0x03}, b1[:3], "first segment UDH mismatch")
	assert.Equal(t, []byte{0x05, 0x00, 0x03}, b2[:3], "second segment UDH mismatch")
	assert.Equal(t, b1[3], b2[3], "segments must share one reference")
	assert.Equal(t, []byte{0x02, 0x01}, b1[4:6], "first segment total/index mismatch")
	assert.Equal(t, []byte{0x02, 0x02}, b2[4:6], "second segment total/index mismatch")
	assert.Equal(t, uint8(0x40), first.Fields()[pdufield.ESMClass].Bytes()[0], "esm_class must announce the UDH")
	assert.Equal(t, content, string(b1[6:])+string(b2[6:]), "segment payloads must concatenate to the content")

	err := f.svc.HandleSubmitSMResp(ctx, submitResp(t, first.Header().Seq, 0, "foo"))
	require.Nil(t, err, fmt.Sprintf("unexpected error: %s", err))
	assert.Equal(t, 0, len(f.events(t)), "no ack before every segment is answered")

	err = f.svc.HandleSubmitSMResp(ctx, submitResp(t, second.Header().Seq, 0, "bar"))
	require.Nil(t, err, fmt.Sprintf("unexpected error: %s", err))

	evs := f.events(t)
	require.Equal(t, 1, len(evs), fmt.Sprintf("expected 1 event got %d\n", len(evs)))
	assert.Equal(t, smpp.EventAck, evs[0].Type, "event type mismatch")
	assert.Equal(t, "bar,foo", evs[0].SentMessageID, fmt.Sprintf("expected %s got %s\n", "bar,foo", evs[0].SentMessageID))
}

func TestForwardMultipartNackFirstFailure(t *testing.T) {
	f := newServiceFixture(t, func(cfg *smpp.TransportConfig) {
		cfg.SubmitShortMessageProcessorConfig.SendMultipartUDH = true
	})
	ctx := context.Background()

	msg := smpp.OutboundMessage{ID: "444", To: "+41791234567", From: "9292", Content: strings.Repeat("x", 161)}
	require.Nil(t, f.svc.Forward(ctx, msg), "forward multipart message")
	first := awaitPDU(t, f.session)
	second := awaitPDU(t, f.session)

	err := f.svc.HandleSubmitSMResp(ctx, submitResp(t, first.Header().Seq, pdu.Status(0x0000000b), ""))
	require.Nil(t, err, fmt.Sprintf("unexpected error: %s", err))
	assert.Equal(t, 0, len(f.events(t)), "no nack before every segment is answered")

	err = f.svc.HandleSubmitSMResp(ctx, submitResp(t, second.Header().Seq, 0, "bar"))
	require.Nil(t, err, fmt.Sprintf("unexpected error: %s", err))

	evs := f.events(t)
	require.Equal(t, 1, len(evs), fmt.Sprintf("expected 1 event got %d\n", len(evs)))
	assert.Equal(t, smpp.EventNack, evs[0].Type, "a failed segment fails the whole message")
	assert.Equal(t, "444", evs[0].UserMessageID, "user_message_id mismatch")
	assert.Equal(t, "ESME_RINVDSTADR", evs[0].NackReason, fmt.Sprintf("expected %s got %s\n", "ESME_RINVDSTADR", evs[0].NackReason))

	recs := f.failures(t)
	require.Equal(t, 1, len(recs), fmt.Sprintf("expected 1 failure record got %d\n", len(recs)))
	assert.Equal(t, "ESME_RINVDSTADR", recs[0].Reason, "failure reason mismatch")
	assert.Equal(t, msg, recs[0].Message, "failure record must carry the original payload")
}

func TestForwardNackUnnameableStatus(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	msg := smpp.OutboundMessage{ID: "444", To: "+41791234567", From: "9292", Content: "hello world"}
	require.Nil(t, f.svc.Forward(ctx, msg), "forward message")
	p := awaitPDU(t, f.session)

	err := f.svc.HandleSubmitSMResp(ctx, submitResp(t, p.Header().Seq, pdu.Status(0x00000500), ""))
	require.Nil(t, err, fmt.Sprintf("unexpected error: %s", err))

	evs := f.events(t)
	require.Equal(t, 1, len(evs), fmt.Sprintf("expected 1 event got %d\n", len(evs)))
	assert.Equal(t, smpp.EventNack, evs[0].Type, "event type mismatch")
	assert.Equal(t, "Unspecified", evs[0].NackReason, fmt.Sprintf("expected %s got %s\n", "Unspecified", evs[0].NackReason))

	recs := f.failures(t)
	require.Equal(t, 1, len(recs), "a terminal refusal must leave a failure record")
	assert.Equal(t, "Unspecified", recs[0].Reason, "failure reason mismatch")
}

func TestForwardRejectsInvalidAddress(t *testing.T) {
	cases := []struct {
		desc   string
		msg    smpp.OutboundMessage
		reason string
	}{
		{
			desc:   "non-ascii destination",
			msg:    smpp.OutboundMessage{ID: "446", To: "+1234é", From: "9292", Content: "hello"},
			reason: "Invalid to_addr: +1234é",
		},
		{
			desc:   "non-ascii source",
			msg:    smpp.OutboundMessage{ID: "447", To: "+41791234567", From: "92é92", Content: "hello"},
			reason: "Invalid from_addr: 92é92",
		},
	}

	for _, tc := range cases {
		f := newServiceFixture(t, nil)
		ctx := context.Background()

		err := f.svc.Forward(ctx, tc.msg)
		require.Nil(t, err, fmt.Sprintf("%s: unexpected error: %s", tc.desc, err))

		evs := f.events(t)
		require.Equal(t, 1, len(evs), fmt.Sprintf("%s: expected 1 event got %d\n", tc.desc, len(evs)))
		assert.Equal(t, smpp.EventNack, evs[0].Type, fmt.Sprintf("%s: event type mismatch", tc.desc))
		assert.Equal(t, tc.reason, evs[0].NackReason, fmt.Sprintf("%s: expected %s got %s\n", tc.desc, tc.reason, evs[0].NackReason))

		assert.Equal(t, 0, len(f.failures(t)), fmt.Sprintf("%s: rejected messages leave no failure record", tc.desc))
		assert.Equal(t, 0, len(f.session.Submitted()), fmt.Sprintf("%s: rejected messages never reach the wire", tc.desc))
		_, err = f.stash.GetCachedMessage(ctx, tc.msg.ID)
		assert.True(t, errors.Contains(err, smpp.ErrStashMiss), fmt.Sprintf("%s: rejected messages are not cached", tc.desc))
	}
}

func TestHandleSubmitSMRespUnknownSequence(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	err := f.svc.HandleSubmitSMResp(ctx, submitResp(t, 9999, 0, "remote"))
	require.Nil(t, err, fmt.Sprintf("unexpected error: %s", err))

	warn := fmt.Sprintf("Failed to retrieve message id for deliver_sm_resp. ack/nack from %s discarded.", testTransport)
	assert.True(t, logged(f.buf, "WARN", warn), "discard line missing or at wrong level")
	assert.Equal(t, 0, len(f.events(t)), "an unmatched response publishes nothing")
}

func TestForwardNotBound(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	f.svc.DetachSession()
	err := f.svc.Forward(ctx, smpp.OutboundMessage{ID: "444", To: "+41791234567", From: "9292", Content: "hello"})
	assert.True(t, errors.Contains(err, smpp.ErrNotBound), fmt.Sprintf("expected %s got %s\n", smpp.ErrNotBound, err))
}

func TestForwardUSSD(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	msg := smpp.OutboundMessage{
		ID:            "444",
		To:            "+41791234567",
		From:          "*167#",
		Content:       "goodbye",
		TransportType: smpp.TransportTypeUSSD,
		SessionEvent:  smpp.SessionClose,
	}
	require.Nil(t, f.svc.Forward(ctx, msg), "forward ussd message")

	p := awaitPDU(t, f.session)
	tlvs := p.TLVFields()
	op, ok := tlvs[pdutlv.TagUssdServiceOp]
	require.True(t, ok, "ussd submissions must carry ussd_service_op")
	assert.Equal(t, []byte{0x02}, op.Bytes(), "ussd_service_op mismatch")
	si, ok := tlvs[pdutlv.TagItsSessionInfo]
	require.True(t, ok, "ussd submissions must carry its_session_info")
	assert.Equal(t, []byte{0x00, 0x01}, si.Bytes(), "session close must set the end-session flag")
}

func TestHandleDeliverSMDeliveryReport(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	require.Nil(t, f.stash.SetRemoteMessageID(ctx, "444", "0123456789"), "seed remote id mapping")

	receipt := "id:0123456789 sub:001 dlvrd:001 submit date:2208191432 done date:2208191435 stat:DELIVRD err:000 text:hi"
	err := f.svc.HandleDeliverSM(ctx, deliverSM(t, "123", "456", 1, []byte(receipt)))
	require.Nil(t, err, fmt.Sprintf("unexpected error: %s", err))

	evs := f.events(t)
	require.Equal(t, 1, len(evs), fmt.Sprintf("expected 1 event got %d\n", len(evs)))
	assert.Equal(t, smpp.EventDeliveryReport, evs[0].Type, "event type mismatch")
	assert.Equal(t, "444", evs[0].UserMessageID, "user_message_id mismatch")
	assert.Equal(t, smpp.DeliveryStatusDelivered, evs[0].DeliveryStatus, "delivery_status mismatch")

	assert.Equal(t, 0, len(f.inbound(t)), "a consumed receipt never reaches the inbound stream")
}

func TestHandleDeliverSMDeliveryReportUnknownRemote(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	receipt := "id:777 sub:001 dlvrd:001 submit date:2208191432 done date:2208191435 stat:DELIVRD err:000 text:hi"
	err := f.svc.HandleDeliverSM(ctx, deliverSM(t, "123", "456", 1, []byte(receipt)))
	require.Nil(t, err, fmt.Sprintf("unexpected error: %s", err))

	warn := fmt.Sprintf("Failed to retrieve message id for delivery report. Delivery report from %s discarded.", testTransport)
	assert.True(t, logged(f.buf, "WARN", warn), "discard line missing or at wrong level")
	assert.Equal(t, 0, len(f.events(t)), "a dangling receipt publishes nothing")
	assert.Equal(t, 0, len(f.inbound(t)), "a dangling receipt never reaches the inbound stream")
}
