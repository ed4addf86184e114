// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package smpp

import (
	"math/rand"
	"sync"
	"time"

	"github.com/fiorix/go-smpp/smpp/pdu"
	"github.com/fiorix/go-smpp/smpp/pdu/pdufield"
	"github.com/fiorix/go-smpp/smpp/pdu/pdutlv"
)

// Field capacities driving the segmentation strategies. UDH segments
// lose six octets of short_message to the concatenation header.
const (
	maxShortMessageLen = 254
	maxSARSegmentLen   = 140
	maxUDHSegmentLen   = 134
)

// ussdServiceOp is the USSR-request operation stamped on outbound
// USSD submissions.
const ussdServiceOp = 0x02

// RejectError marks an outbound message refused before any wire or
// stash activity. Reason becomes the nack reason on the bus; rejected
// messages carry no failure record.
type RejectError struct {
	Reason string
}

func (e *RejectError) Error() string {
	return e.Reason
}

type submitShortMessageProcessor struct {
	cfg    TransportConfig
	submit SubmitConfig
	codec  TextCodec

	mu   sync.Mutex
	rand *rand.Rand
}

func newSubmitShortMessageProcessor(deps ProcessorDeps) (SubmitShortMessageProcessor, error) {
	codec, err := LookupCodec(deps.Config.SubmitShortMessageProcessorConfig.SubmitSMEncoding)
	if err != nil {
		return nil, err
	}

	return &submitShortMessageProcessor{
		cfg:    deps.Config,
		submit: deps.Config.SubmitShortMessageProcessorConfig,
		codec:  codec,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func (x *submitShortMessageProcessor) MakeSubmitSM(msg OutboundMessage) ([]pdu.Body, error) {
	if !asciiSafe(msg.To) {
		return nil, &RejectError{Reason: "Invalid to_addr: " + msg.To}
	}
	if !asciiSafe(msg.From) {
		return nil, &RejectError{Reason: "Invalid from_addr: " + msg.From}
	}

	encoded, err := x.codec.Encode(msg.Content)
	if err != nil {
		return nil, &RejectError{Reason: err.Error()}
	}

	switch {
	case x.submit.SendMultipartSAR && len(encoded) > maxSARSegmentLen:
		return x.makeSAR(msg, encoded)
	case x.submit.SendMultipartUDH && len(encoded) > maxUDHSegmentLen:
		return x.makeUDH(msg, encoded)
	case len(encoded) > maxShortMessageLen:
		// send_long_messages, or no strategy left that can carry the
		// body in short_message.
		return x.makeSingle(msg, nil, pdutlv.Fields{pdutlv.TagMessagePayload: encoded})
	default:
		return x.makeSingle(msg, encoded, nil)
	}
}

func (x *submitShortMessageProcessor) makeSingle(msg OutboundMessage, body []byte, tlvs pdutlv.Fields) ([]pdu.Body, error) {
	p, err := x.buildPDU(msg, body, 0x00, tlvs)
	if err != nil {
		return nil, err
	}

	return []pdu.Body{p}, nil
}

func (x *submitShortMessageProcessor) makeSAR(msg OutboundMessage, encoded []byte) ([]pdu.Body, error) {
	ref := x.reference(0x10000)
	chunks := splitBytes(encoded, maxSARSegmentLen)
	pdus := make([]pdu.Body, 0, len(chunks))
	for i, chunk := range chunks {
		p, err := x.buildPDU(msg, chunk, 0x00, pdutlv.Fields{
			pdutlv.TagSarMsgRefNum:     []byte{uint8(ref >> 8), uint8(ref)},
			pdutlv.TagSarTotalSegments: len(chunks),
			pdutlv.TagSarSegmentSeqnum: i + 1,
		})
		if err != nil {
			return nil, err
		}
		pdus = append(pdus, p)
	}

	return pdus, nil
}

func (x *submitShortMessageProcessor) makeUDH(msg OutboundMessage, encoded []byte) ([]pdu.Body, error) {
	ref := uint8(x.reference(0x100))
	chunks := splitBytes(encoded, maxUDHSegmentLen)
	pdus := make([]pdu.Body, 0, len(chunks))
	for i, chunk := range chunks {
		udh := []byte{0x05, 0x00, 0x03, ref, uint8(len(chunks)), uint8(i + 1)}
		p, err := x.buildPDU(msg, append(udh, chunk...), 0x40, nil)
		if err != nil {
			return nil, err
		}
		pdus = append(pdus, p)
	}

	return pdus, nil
}

func (x *submitShortMessageProcessor) buildPDU(msg OutboundMessage, shortMessage []byte, esmClass uint8, tlvs pdutlv.Fields) (pdu.Body, error) {
	if msg.TransportType == TransportTypeUSSD {
		if tlvs == nil {
			tlvs = pdutlv.Fields{}
		}
		tlvs[pdutlv.TagUssdServiceOp] = []byte{ussdServiceOp}
		tlvs[pdutlv.TagItsSessionInfo] = itsSessionInfo(msg.SessionEvent)
	}

	var registered uint8
	if x.cfg.RegisteredDelivery {
		registered = 0x01
	}

	p := pdu.NewSubmitSM(tlvs)
	fields := []fieldSetting{
		{pdufield.SourceAddrTON, x.cfg.SourceAddrTON},
		{pdufield.SourceAddrNPI, x.cfg.SourceAddrNPI},
		{pdufield.SourceAddr, msg.From},
		{pdufield.DestAddrTON, x.cfg.DestAddrTON},
		{pdufield.DestAddrNPI, x.cfg.DestAddrNPI},
		{pdufield.DestinationAddr, msg.To},
		{pdufield.ESMClass, esmClass},
		{pdufield.RegisteredDelivery, registered},
		{pdufield.DataCoding, uint8(x.submit.SubmitSMDataCoding)},
	}
	if len(shortMessage) > 0 {
		fields = append(fields, fieldSetting{pdufield.ShortMessage, shortMessage})
	}
	f := p.Fields()
	for _, fd := range fields {
		if err := f.Set(fd.k, fd.v); err != nil {
			return nil, err
		}
	}

	return p, nil
}

type fieldSetting struct {
	k pdufield.Name
	v interface{}
}

// reference draws a fresh concatenation reference below max. One
// reference ties all segments of a message together.
func (x *submitShortMessageProcessor) reference(max int) int {
	x.mu.Lock()
	defer x.mu.Unlock()

	return x.rand.Intn(max)
}

// itsSessionInfo encodes the session event for the its_session_info
// TLV: 0001 ends the session, anything else continues it.
func itsSessionInfo(event string) []byte {
	if event == SessionClose {
		return []byte{0x00, 0x01}
	}

	return []byte{0x00, 0x00}
}

func asciiSafe(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7f {
			return false
		}
	}

	return true
}

func splitBytes(b []byte, size int) [][]byte {
	chunks := make([][]byte, 0, (len(b)+size-1)/size)
	for len(b) > size {
		chunks = append(chunks, b[:size])
		b = b[size:]
	}

	return append(chunks, b)
}
