// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package smpp

import (
	"context"
	"log/slog"

	"github.com/fiorix/go-smpp/smpp/pdu"
	"github.com/fiorix/go-smpp/smpp/pdu/pdufield"
	"github.com/fiorix/go-smpp/smpp/pdu/pdutlv"
)

type deliverShortMessageProcessor struct {
	transport  string
	charsets   *CharsetRegistry
	reassembly reassembler
	bus        Dispatcher
	logger     *slog.Logger
}

func newDeliverShortMessageProcessor(deps ProcessorDeps) (DeliverShortMessageProcessor, error) {
	charsets, err := NewCharsetRegistry(deps.Config.DeliverShortMessageProcessorConfig.DataCodingOverrides)
	if err != nil {
		return nil, err
	}

	return &deliverShortMessageProcessor{
		transport:  deps.Config.TransportName,
		charsets:   charsets,
		reassembly: reassembler{stash: deps.Stash},
		bus:        deps.Dispatcher,
		logger:     deps.Logger,
	}, nil
}

func (x *deliverShortMessageProcessor) HandleShortMessage(ctx context.Context, p pdu.Body) error {
	f := p.Fields()
	tlvs := p.TLVFields()
	from := fieldString(f, pdufield.SourceAddr)
	to := fieldString(f, pdufield.DestinationAddr)
	dataCoding := int(fieldOctet(f, pdufield.DataCoding))

	codec, err := x.charsets.Codec(dataCoding)
	if err != nil {
		x.logger.Error("Dropping deliver_sm with unsupported data coding.",
			slog.Int("data_coding", dataCoding),
			slog.String("from_addr", from),
		)
		return nil
	}

	if _, ussd := tlvs[pdutlv.TagUssdServiceOp]; ussd {
		return x.handleUSSD(ctx, p, codec, from, to)
	}

	// A message_payload TLV carries the complete message, so it never
	// takes the reassembly path even when segment markers are present.
	if payload, ok := tlvs[pdutlv.TagMessagePayload]; ok {
		return x.publish(ctx, codec, payload.Bytes(), from, to, "")
	}

	if seg, ok := multipartSegmentOf(p); ok {
		return x.handleSegment(ctx, codec, seg)
	}

	return x.publish(ctx, codec, fieldBytes(f, pdufield.ShortMessage), from, to, "")
}

func (x *deliverShortMessageProcessor) handleUSSD(ctx context.Context, p pdu.Body, codec TextCodec, from, to string) error {
	event := SessionResume
	if si, ok := p.TLVFields()[pdutlv.TagItsSessionInfo]; ok {
		if b := si.Bytes(); len(b) > 0 && b[len(b)-1]&0x01 == 0x01 {
			event = SessionClose
		}
	}

	content, err := codec.Decode(pduShortMessage(p))
	if err != nil {
		x.logger.Error(err.Error(), slog.String("from_addr", from))
		return nil
	}

	return x.bus.PublishInbound(ctx, InboundMessage{
		Content:       content,
		To:            to,
		From:          from,
		TransportType: TransportTypeUSSD,
		SessionEvent:  event,
	})
}

func (x *deliverShortMessageProcessor) handleSegment(ctx context.Context, codec TextCodec, seg multipartSegment) error {
	// Segments are decoded before storage so a complete message is a
	// plain concatenation regardless of arrival order.
	text, err := codec.Decode(seg.data)
	if err != nil {
		x.logger.Error(err.Error(), slog.String("from_addr", seg.key.From))
		return nil
	}

	full, done, err := x.reassembly.add(ctx, seg, text)
	if err != nil {
		return err
	}
	if !done {
		return nil
	}

	return x.bus.PublishInbound(ctx, InboundMessage{
		Content:       full,
		To:            seg.key.To,
		From:          seg.key.From,
		TransportType: TransportTypeSMS,
	})
}

// publish decodes body bytes and publishes the inbound record. Decode
// failures are logged and the message dropped; the session still
// answers the SMSC, since a decoding failure is not a protocol failure.
func (x *deliverShortMessageProcessor) publish(ctx context.Context, codec TextCodec, body []byte, from, to, sessionEvent string) error {
	content, err := codec.Decode(body)
	if err != nil {
		x.logger.Error(err.Error(), slog.String("from_addr", from))
		return nil
	}

	return x.bus.PublishInbound(ctx, InboundMessage{
		Content:       content,
		To:            to,
		From:          from,
		TransportType: TransportTypeSMS,
		SessionEvent:  sessionEvent,
	})
}

// pduShortMessage returns the user data of a PDU: the short_message
// field, or the message_payload TLV when the field is empty.
func pduShortMessage(p pdu.Body) []byte {
	if b := fieldBytes(p.Fields(), pdufield.ShortMessage); len(b) > 0 {
		return b
	}
	if payload, ok := p.TLVFields()[pdutlv.TagMessagePayload]; ok {
		return payload.Bytes()
	}

	return nil
}

func fieldString(m pdufield.Map, k pdufield.Name) string {
	f, ok := m[k]
	if !ok {
		return ""
	}

	return f.String()
}

// fieldBytes returns field data without the null terminator the
// serialized form appends to variable fields.
func fieldBytes(m pdufield.Map, k pdufield.Name) []byte {
	f, ok := m[k]
	if !ok {
		return nil
	}
	if b, ok := f.Raw().([]byte); ok {
		return b
	}

	return f.Bytes()
}

func fieldOctet(m pdufield.Map, k pdufield.Name) uint8 {
	f, ok := m[k]
	if !ok {
		return 0
	}
	if v, ok := f.Raw().(uint8); ok {
		return v
	}
	if b := f.Bytes(); len(b) > 0 {
		return b[0]
	}

	return 0
}
