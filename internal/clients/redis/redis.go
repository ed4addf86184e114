// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package redis contains the Redis client setup.
package redis

import "github.com/go-redis/redis/v8"

// Connect creates a new Redis client and connects to the Redis server.
func Connect(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	return redis.NewClient(opts), nil
}
