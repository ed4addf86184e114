// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package redis_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/0x6flab/namegenerator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absmach/smppgate/pkg/errors"
	"github.com/absmach/smppgate/pkg/uuid"
	"github.com/absmach/smppgate/smpp"
	stash "github.com/absmach/smppgate/smpp/redis"
)

var namesgen = namegenerator.NewNameGenerator()

func testConfig() smpp.TransportConfig {
	cfg := smpp.DefaultTransportConfig()
	cfg.TransportName = namesgen.Generate()

	return cfg
}

func TestCacheMessage(t *testing.T) {
	cfg := testConfig()
	ms := stash.NewMessageStash(redisClient, cfg)
	ctx := context.Background()

	id, err := uuid.New().ID()
	require.Nil(t, err, fmt.Sprintf("got unexpected error: %s", err))
	msg := smpp.OutboundMessage{
		ID:      id,
		To:      "+41791234567",
		From:    "9292",
		Content: "hello world",
	}

	err = ms.CacheMessage(ctx, msg)
	require.Nil(t, err, fmt.Sprintf("cache message: expected nil got %s", err))

	stored, err := ms.GetCachedMessage(ctx, id)
	assert.Nil(t, err, fmt.Sprintf("get cached message: expected nil got %s", err))
	assert.Equal(t, msg, stored, fmt.Sprintf("get cached message: expected %v got %v\n", msg, stored))

	ttl := redisClient.TTL(ctx, "msg:"+id).Val()
	assert.True(t, ttl > 0 && ttl <= cfg.SubmitSMExpiry, fmt.Sprintf("cached message TTL out of bounds: %s", ttl))

	err = ms.DeleteCachedMessage(ctx, id)
	assert.Nil(t, err, fmt.Sprintf("delete cached message: expected nil got %s", err))

	_, err = ms.GetCachedMessage(ctx, id)
	assert.True(t, errors.Contains(err, smpp.ErrStashMiss), fmt.Sprintf("get deleted message: expected %s got %s", smpp.ErrStashMiss, err))

	err = ms.DeleteCachedMessage(ctx, id)
	assert.Nil(t, err, fmt.Sprintf("delete absent message: expected nil got %s", err))
}

func TestSequenceNumberLookupConsumes(t *testing.T) {
	cfg := testConfig()
	ms := stash.NewMessageStash(redisClient, cfg)
	ctx := context.Background()

	id, err := uuid.New().ID()
	require.Nil(t, err, fmt.Sprintf("got unexpected error: %s", err))

	err = ms.SetSequenceNumberMessageID(ctx, 37, id)
	require.Nil(t, err, fmt.Sprintf("set seq mapping: expected nil got %s", err))

	ttl := redisClient.TTL(ctx, "seq:37").Val()
	assert.True(t, ttl > 0 && ttl <= cfg.SubmitSMExpiry, fmt.Sprintf("seq mapping TTL out of bounds: %s", ttl))

	stored, err := ms.GetSequenceNumberMessageID(ctx, 37)
	assert.Nil(t, err, fmt.Sprintf("consume seq mapping: expected nil got %s", err))
	assert.Equal(t, id, stored, fmt.Sprintf("consume seq mapping: expected %s got %s\n", id, stored))

	_, err = ms.GetSequenceNumberMessageID(ctx, 37)
	assert.True(t, errors.Contains(err, smpp.ErrStashMiss), fmt.Sprintf("consume consumed mapping: expected %s got %s", smpp.ErrStashMiss, err))
}

func TestSequenceNumberMissStoresNothing(t *testing.T) {
	ms := stash.NewMessageStash(redisClient, testConfig())
	ctx := context.Background()

	_, err := ms.GetSequenceNumberMessageID(ctx, 0xbad)
	assert.True(t, errors.Contains(err, smpp.ErrStashMiss), fmt.Sprintf("consume absent mapping: expected %s got %s", smpp.ErrStashMiss, err))

	exists := redisClient.Exists(ctx, fmt.Sprintf("seq:%d", 0xbad)).Val()
	assert.Equal(t, int64(0), exists, "a missed lookup must not leave a placeholder behind")
}

func TestRemoteMessageID(t *testing.T) {
	cfg := testConfig()
	ms := stash.NewMessageStash(redisClient, cfg)
	ctx := context.Background()

	internal, err := uuid.New().ID()
	require.Nil(t, err, fmt.Sprintf("got unexpected error: %s", err))
	remote := "3rd_party_id_1"

	err = ms.SetRemoteMessageID(ctx, internal, remote)
	require.Nil(t, err, fmt.Sprintf("set remote id: expected nil got %s", err))

	ttl := redisClient.TTL(ctx, "remote:"+remote).Val()
	assert.True(t, ttl > 0 && ttl <= cfg.ThirdPartyIDExpiry, fmt.Sprintf("remote id TTL out of bounds: %s", ttl))

	cases := map[string]struct {
		remote string
		id     string
		err    error
	}{
		"resolve known remote id": {
			remote: remote,
			id:     internal,
			err:    nil,
		},
		"resolve unknown remote id": {
			remote: "nope",
			id:     "",
			err:    smpp.ErrStashMiss,
		},
	}

	for desc, tc := range cases {
		id, err := ms.GetInternalMessageID(ctx, tc.remote)
		assert.Equal(t, tc.id, id, fmt.Sprintf("%s: expected %s got %s\n", desc, tc.id, id))
		assert.True(t, errors.Contains(err, tc.err), fmt.Sprintf("%s: expected %s got %s\n", desc, tc.err, err))
	}
}

func TestMultipartSegments(t *testing.T) {
	cfg := testConfig()
	cfg.MultipartExpiry = time.Hour
	ms := stash.NewMessageStash(redisClient, cfg)
	ctx := context.Background()

	key := smpp.MultipartKey{Ref: 0xff, From: "123", To: "456"}

	// Out-of-order arrival must not matter.
	err := ms.StoreMultipartSegment(ctx, key, 3, " you")
	require.Nil(t, err, fmt.Sprintf("store segment: expected nil got %s", err))
	err = ms.StoreMultipartSegment(ctx, key, 1, "back")
	require.Nil(t, err, fmt.Sprintf("store segment: expected nil got %s", err))
	err = ms.StoreMultipartSegment(ctx, key, 2, " at")
	require.Nil(t, err, fmt.Sprintf("store segment: expected nil got %s", err))

	ttl := redisClient.TTL(ctx, "multipart:255:123:456").Val()
	assert.True(t, ttl > 0 && ttl <= cfg.MultipartExpiry, fmt.Sprintf("multipart TTL out of bounds: %s", ttl))

	segments, err := ms.GetMultipartSegments(ctx, key)
	assert.Nil(t, err, fmt.Sprintf("get segments: expected nil got %s", err))
	expected := map[int]string{1: "back", 2: " at", 3: " you"}
	assert.Equal(t, expected, segments, fmt.Sprintf("get segments: expected %v got %v\n", expected, segments))

	err = ms.DeleteMultipart(ctx, key)
	assert.Nil(t, err, fmt.Sprintf("delete multipart: expected nil got %s", err))

	segments, err = ms.GetMultipartSegments(ctx, key)
	assert.Nil(t, err, fmt.Sprintf("get deleted segments: expected nil got %s", err))
	assert.Empty(t, segments, fmt.Sprintf("get deleted segments: expected empty got %v\n", segments))
}
