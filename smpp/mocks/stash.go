// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mocks

import (
	"context"
	"sync"

	"github.com/absmach/smppgate/smpp"
)

var _ smpp.MessageStash = (*MessageStash)(nil)

// MessageStash is an in-memory stash. TTLs are not simulated; entries
// live until consumed or deleted.
type MessageStash struct {
	mu        sync.Mutex
	messages  map[string]smpp.OutboundMessage
	sequences map[uint32]string
	remotes   map[string]string
	segments  map[smpp.MultipartKey]map[int]string
}

// NewMessageStash returns an empty in-memory stash.
func NewMessageStash() *MessageStash {
	return &MessageStash{
		messages:  make(map[string]smpp.OutboundMessage),
		sequences: make(map[uint32]string),
		remotes:   make(map[string]string),
		segments:  make(map[smpp.MultipartKey]map[int]string),
	}
}

func (ms *MessageStash) CacheMessage(ctx context.Context, msg smpp.OutboundMessage) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.messages[msg.ID] = msg

	return nil
}

func (ms *MessageStash) GetCachedMessage(ctx context.Context, id string) (smpp.OutboundMessage, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	msg, ok := ms.messages[id]
	if !ok {
		return smpp.OutboundMessage{}, smpp.ErrStashMiss
	}

	return msg, nil
}

func (ms *MessageStash) DeleteCachedMessage(ctx context.Context, id string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	delete(ms.messages, id)

	return nil
}

func (ms *MessageStash) SetSequenceNumberMessageID(ctx context.Context, seq uint32, id string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.sequences[seq] = id

	return nil
}

func (ms *MessageStash) GetSequenceNumberMessageID(ctx context.Context, seq uint32) (string, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	id, ok := ms.sequences[seq]
	if !ok {
		return "", smpp.ErrStashMiss
	}
	delete(ms.sequences, seq)

	return id, nil
}

func (ms *MessageStash) SetRemoteMessageID(ctx context.Context, internal, remote string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.remotes[remote] = internal

	return nil
}

func (ms *MessageStash) GetInternalMessageID(ctx context.Context, remote string) (string, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	id, ok := ms.remotes[remote]
	if !ok {
		return "", smpp.ErrStashMiss
	}

	return id, nil
}

func (ms *MessageStash) StoreMultipartSegment(ctx context.Context, key smpp.MultipartKey, index int, text string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	segs, ok := ms.segments[key]
	if !ok {
		segs = make(map[int]string)
		ms.segments[key] = segs
	}
	segs[index] = text

	return nil
}

func (ms *MessageStash) GetMultipartSegments(ctx context.Context, key smpp.MultipartKey) (map[int]string, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	segs := make(map[int]string, len(ms.segments[key]))
	for index, text := range ms.segments[key] {
		segs[index] = text
	}

	return segs, nil
}

func (ms *MessageStash) DeleteMultipart(ctx context.Context, key smpp.MultipartKey) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	delete(ms.segments, key)

	return nil
}
