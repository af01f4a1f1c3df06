// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

// Package store owns the PostgreSQL and Redis connections and the schema
// migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ConnectOptions bound how long Connect keeps retrying.
type ConnectOptions struct {
	// Attempts is the maximum number of connection attempts.
	Attempts uint64
	// Backoff is the initial delay between attempts; it doubles each time.
	Backoff time.Duration
}

// DefaultConnectOptions retries for roughly half a minute.
var DefaultConnectOptions = ConnectOptions{Attempts: 6, Backoff: 500 * time.Millisecond}

// pinger is the part of the pool Connect probes.
type pinger interface {
	Ping(ctx context.Context) error
}

// Connect opens a pool for dsn and waits until the database answers a ping.
// Transient failures are retried with exponential backoff; a malformed DSN
// fails immediately.
func Connect(ctx context.Context, dsn string, opts ConnectOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").Wrap(err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}
	if err := waitReady(ctx, "database", pool, opts); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// waitReady pings db until it answers or opts are exhausted. what names the
// backend in logs and errors.
func waitReady(ctx context.Context, what string, db pinger, opts ConnectOptions) error {
	backoff := retry.WithMaxRetries(max(opts.Attempts, 1)-1, retry.NewExponential(opts.Backoff))
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := db.Ping(ctx); err != nil {
			slog.WarnContext(ctx, what+" not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("backend", what).With("attempts", attempt).Wrap(err)
	}
	return nil
}
