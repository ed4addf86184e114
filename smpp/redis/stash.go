// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package redis implements the message stash on Redis.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/absmach/smppgate/pkg/errors"
	"github.com/absmach/smppgate/smpp"
)

const (
	msgPrefix       = "msg"
	seqPrefix       = "seq"
	remotePrefix    = "remote"
	multipartPrefix = "multipart"
)

// Stash operation errors. A plain miss is smpp.ErrStashMiss, never one
// of these.
var (
	errStore  = errors.New("storing stash entry failed")
	errLookup = errors.New("stash lookup failed")
	errRemove = errors.New("removing stash entry failed")
)

var _ smpp.MessageStash = (*messageStash)(nil)

type messageStash struct {
	client          *redis.Client
	submitExpiry    time.Duration
	remoteIDExpiry  time.Duration
	multipartExpiry time.Duration
}

// NewMessageStash returns a Redis message stash with the transport's
// TTLs baked in.
func NewMessageStash(client *redis.Client, cfg smpp.TransportConfig) smpp.MessageStash {
	return &messageStash{
		client:          client,
		submitExpiry:    cfg.SubmitSMExpiry,
		remoteIDExpiry:  cfg.ThirdPartyIDExpiry,
		multipartExpiry: cfg.MultipartExpiry,
	}
}

func (ms *messageStash) CacheMessage(ctx context.Context, msg smpp.OutboundMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(errStore, err)
	}
	key := fmt.Sprintf("%s:%s", msgPrefix, msg.ID)
	if err := ms.client.Set(ctx, key, payload, ms.submitExpiry).Err(); err != nil {
		return errors.Wrap(errStore, err)
	}

	return nil
}

func (ms *messageStash) GetCachedMessage(ctx context.Context, id string) (smpp.OutboundMessage, error) {
	key := fmt.Sprintf("%s:%s", msgPrefix, id)
	payload, err := ms.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return smpp.OutboundMessage{}, smpp.ErrStashMiss
	}
	if err != nil {
		return smpp.OutboundMessage{}, errors.Wrap(errLookup, err)
	}

	var msg smpp.OutboundMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return smpp.OutboundMessage{}, errors.Wrap(errLookup, err)
	}

	return msg, nil
}

func (ms *messageStash) DeleteCachedMessage(ctx context.Context, id string) error {
	key := fmt.Sprintf("%s:%s", msgPrefix, id)
	if err := ms.client.Del(ctx, key).Err(); err != nil {
		return errors.Wrap(errRemove, err)
	}

	return nil
}

func (ms *messageStash) SetSequenceNumberMessageID(ctx context.Context, seq uint32, id string) error {
	key := fmt.Sprintf("%s:%d", seqPrefix, seq)
	if err := ms.client.Set(ctx, key, id, ms.submitExpiry).Err(); err != nil {
		return errors.Wrap(errStore, err)
	}

	return nil
}

// GetSequenceNumberMessageID consumes the mapping as it reads it, so a
// duplicated response cannot resolve twice. A miss stores nothing.
func (ms *messageStash) GetSequenceNumberMessageID(ctx context.Context, seq uint32) (string, error) {
	key := fmt.Sprintf("%s:%d", seqPrefix, seq)
	id, err := ms.client.GetDel(ctx, key).Result()
	if err == redis.Nil {
		return "", smpp.ErrStashMiss
	}
	if err != nil {
		return "", errors.Wrap(errLookup, err)
	}

	return id, nil
}

func (ms *messageStash) SetRemoteMessageID(ctx context.Context, internal, remote string) error {
	key := fmt.Sprintf("%s:%s", remotePrefix, remote)
	if err := ms.client.Set(ctx, key, internal, ms.remoteIDExpiry).Err(); err != nil {
		return errors.Wrap(errStore, err)
	}

	return nil
}

func (ms *messageStash) GetInternalMessageID(ctx context.Context, remote string) (string, error) {
	key := fmt.Sprintf("%s:%s", remotePrefix, remote)
	id, err := ms.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", smpp.ErrStashMiss
	}
	if err != nil {
		return "", errors.Wrap(errLookup, err)
	}

	return id, nil
}

func (ms *messageStash) StoreMultipartSegment(ctx context.Context, key smpp.MultipartKey, index int, text string) error {
	mkey := multipartKey(key)
	if err := ms.client.HSet(ctx, mkey, strconv.Itoa(index), text).Err(); err != nil {
		return errors.Wrap(errStore, err)
	}
	// Every segment refreshes the reassembly window.
	if err := ms.client.Expire(ctx, mkey, ms.multipartExpiry).Err(); err != nil {
		return errors.Wrap(errStore, err)
	}

	return nil
}

func (ms *messageStash) GetMultipartSegments(ctx context.Context, key smpp.MultipartKey) (map[int]string, error) {
	fields, err := ms.client.HGetAll(ctx, multipartKey(key)).Result()
	if err != nil {
		return nil, errors.Wrap(errLookup, err)
	}

	segments := make(map[int]string, len(fields))
	for field, text := range fields {
		index, err := strconv.Atoi(field)
		if err != nil {
			return nil, errors.Wrap(errLookup, err)
		}
		segments[index] = text
	}

	return segments, nil
}

func (ms *messageStash) DeleteMultipart(ctx context.Context, key smpp.MultipartKey) error {
	if err := ms.client.Del(ctx, multipartKey(key)).Err(); err != nil {
		return errors.Wrap(errRemove, err)
	}

	return nil
}

func multipartKey(key smpp.MultipartKey) string {
	return fmt.Sprintf("%s:%d:%s:%s", multipartPrefix, key.Ref, key.From, key.To)
}
