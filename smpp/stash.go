// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package smpp

import (
	"context"

	"github.com/absmach/smppgate/pkg/errors"
)

// ErrStashMiss indicates an absent stash entry. A miss is a
// well-defined outcome the pipelines handle, never a storage failure.
var ErrStashMiss = errors.New("message stash miss")

// MultipartKey identifies one in-progress reassembly. Ref is the
// concatenation reference from the UDH or the sar_msg_ref_num TLV.
type MultipartKey struct {
	Ref  uint16
	From string
	To   string
}

// MessageStash is the durable correlation store shared by sessions
// across reconnects and restarts. Entries expire on the configured
// TTLs so stale traffic cannot be confused with current traffic.
//
// Lookups that miss return ErrStashMiss; any other error is a
// backing-store failure the caller may retry.
type MessageStash interface {
	// CacheMessage stores the serialized outbound message under its
	// message id for the submit window.
	CacheMessage(ctx context.Context, msg OutboundMessage) error

	// GetCachedMessage retrieves a cached outbound message.
	GetCachedMessage(ctx context.Context, id string) (OutboundMessage, error)

	// DeleteCachedMessage drops a cached outbound message. Deleting an
	// absent entry is a no-op.
	DeleteCachedMessage(ctx context.Context, id string) error

	// SetSequenceNumberMessageID maps an allocated sequence number to
	// the internal message id before the PDU reaches the wire.
	SetSequenceNumberMessageID(ctx context.Context, seq uint32, id string) error

	// GetSequenceNumberMessageID is the consuming lookup used on
	// response handling: the mapping is removed as it is read, so a
	// duplicate response cannot resolve twice.
	GetSequenceNumberMessageID(ctx context.Context, seq uint32) (string, error)

	// SetRemoteMessageID links the SMSC-assigned message id to the
	// internal one. Written only after a successful submit_sm_resp.
	SetRemoteMessageID(ctx context.Context, internal, remote string) error

	// GetInternalMessageID resolves the internal message id a delivery
	// report refers to.
	GetInternalMessageID(ctx context.Context, remote string) (string, error)

	// StoreMultipartSegment records one decoded segment of a multipart
	// delivery and refreshes the reassembly TTL.
	StoreMultipartSegment(ctx context.Context, key MultipartKey, index int, text string) error

	// GetMultipartSegments returns every stored segment of a
	// reassembly, keyed by segment index.
	GetMultipartSegments(ctx context.Context, key MultipartKey) (map[int]string, error)

	// DeleteMultipart drops all partial state of a reassembly.
	DeleteMultipart(ctx context.Context, key MultipartKey) error
}
