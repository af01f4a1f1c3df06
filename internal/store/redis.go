// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package store

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// ConnectRedis opens a client for a redis:// or rediss:// URL and waits
// until the server answers a ping, retrying like Connect.
func ConnectRedis(ctx context.Context, url string, opts ConnectOptions) (*redis.Client, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("backend", "redis").Wrap(err)
	}
	client := redis.NewClient(redisOpts)
	if err := waitReady(ctx, "redis", redisPinger{client: client}, opts); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
