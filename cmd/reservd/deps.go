// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/reservd/reservd/internal/store"
)

// Deps contains injectable dependencies for the service commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// PostgresConnector opens the database pool.
	// Default: store.Connect with store.DefaultConnectOptions
	PostgresConnector func(ctx context.Context, dsn string) (*pgxpool.Pool, error)

	// RedisConnector opens the Redis client.
	// Default: store.ConnectRedis with store.DefaultConnectOptions
	RedisConnector func(ctx context.Context, url string) (*redis.Client, error)

	// MigratorFactory creates the migrator used by auto-migrate and the
	// migrate command.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Pending() ([]uint, error)
	Close() error
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.PostgresConnector == nil {
		out.PostgresConnector = func(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
			return store.Connect(ctx, dsn, store.DefaultConnectOptions)
		}
	}
	if out.RedisConnector == nil {
		out.RedisConnector = func(ctx context.Context, url string) (*redis.Client, error) {
			return store.ConnectRedis(ctx, url, store.DefaultConnectOptions)
		}
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string) (Migrator, error) {
			m, err := store.NewMigrator(databaseURL)
			if err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	return &out
}
