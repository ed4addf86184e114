// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package smpp

import (
	"context"
	"encoding/binary"
	"sort"
	"strings"

	"github.com/fiorix/go-smpp/smpp/pdu"
	"github.com/fiorix/go-smpp/smpp/pdu/pdufield"
	"github.com/fiorix/go-smpp/smpp/pdu/pdutlv"
)

// multipartSegment is one slice of a concatenated short message, with
// the concatenation markers stripped from the data.
type multipartSegment struct {
	key   MultipartKey
	total int
	index int
	data  []byte
}

// multipartSegmentOf inspects a deliver_sm for concatenation markers.
// It recognizes the sar TLV triple, the decoded UDH fields, and a UDH
// prefix left on the body itself, with 8- and 16-bit references.
func multipartSegmentOf(p pdu.Body) (multipartSegment, bool) {
	f := p.Fields()
	seg := multipartSegment{
		key: MultipartKey{
			From: fieldString(f, pdufield.SourceAddr),
			To:   fieldString(f, pdufield.DestinationAddr),
		},
		data: fieldBytes(f, pdufield.ShortMessage),
	}

	tlvs := p.TLVFields()
	ref, okRef := tlvs[pdutlv.TagSarMsgRefNum]
	total, okTotal := tlvs[pdutlv.TagSarTotalSegments]
	index, okIndex := tlvs[pdutlv.TagSarSegmentSeqnum]
	if okRef && okTotal && okIndex {
		seg.key.Ref = ref16(ref.Bytes())
		seg.total = octetOf(total.Bytes())
		seg.index = octetOf(index.Bytes())
		return seg, seg.valid()
	}

	// The PDU decoder splits a UDH announced by the esm_class UDHI bit
	// into its own fields, leaving the body clean.
	if udh := fieldBytes(f, pdufield.GSMUserData); len(udh) > 0 {
		var ok bool
		seg.key.Ref, seg.total, seg.index, ok = parseConcatIE(udh)
		return seg, ok && seg.valid()
	}

	// Some SMSCs prepend the UDH without announcing it.
	body := seg.data
	switch {
	case len(body) >= 6 && body[0] == 0x05 && body[1] == 0x00 && body[2] == 0x03:
		seg.key.Ref = uint16(body[3])
		seg.total = int(body[4])
		seg.index = int(body[5])
		seg.data = body[6:]
		return seg, seg.valid()
	case len(body) >= 7 && body[0] == 0x06 && body[1] == 0x08 && body[2] == 0x04:
		seg.key.Ref = binary.BigEndian.Uint16(body[3:5])
		seg.total = int(body[5])
		seg.index = int(body[6])
		seg.data = body[7:]
		return seg, seg.valid()
	}

	return multipartSegment{}, false
}

func (s multipartSegment) valid() bool {
	return s.total > 0 && s.index > 0 && s.index <= s.total
}

// parseConcatIE extracts a concatenation information element from UDH
// data, which the decoder hands over without its leading length octet.
func parseConcatIE(udh []byte) (ref uint16, total, index int, ok bool) {
	for len(udh) >= 2 {
		iei, iedl := udh[0], int(udh[1])
		if len(udh) < 2+iedl {
			return 0, 0, 0, false
		}
		ie := udh[2 : 2+iedl]
		switch {
		case iei == 0x00 && iedl == 3:
			return uint16(ie[0]), int(ie[1]), int(ie[2]), true
		case iei == 0x08 && iedl == 4:
			return binary.BigEndian.Uint16(ie[0:2]), int(ie[2]), int(ie[3]), true
		}
		udh = udh[2+iedl:]
	}

	return 0, 0, 0, false
}

func ref16(b []byte) uint16 {
	switch {
	case len(b) >= 2:
		return binary.BigEndian.Uint16(b[0:2])
	case len(b) == 1:
		return uint16(b[0])
	default:
		return 0
	}
}

func octetOf(b []byte) int {
	if len(b) == 0 {
		return 0
	}

	return int(b[0])
}

// reassembler accumulates decoded multipart segments in the stash
// until a delivery completes. Segments arrive in any order, possibly
// on different sessions of the same transport.
type reassembler struct {
	stash MessageStash
}

// add stores one decoded segment. When the segment completes the
// message, add returns the full text in segment-index order and drops
// the partial state.
func (r reassembler) add(ctx context.Context, seg multipartSegment, text string) (string, bool, error) {
	if err := r.stash.StoreMultipartSegment(ctx, seg.key, seg.index, text); err != nil {
		return "", false, err
	}
	parts, err := r.stash.GetMultipartSegments(ctx, seg.key)
	if err != nil {
		return "", false, err
	}
	if len(parts) < seg.total {
		return "", false, nil
	}

	indexes := make([]int, 0, len(parts))
	for i := range parts {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	var full strings.Builder
	for _, i := range indexes {
		full.WriteString(parts[i])
	}
	if err := r.stash.DeleteMultipart(ctx, seg.key); err != nil {
		return "", false, err
	}

	return full.String(), true, nil
}
