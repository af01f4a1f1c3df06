// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package notification

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/reservd/reservd/internal/observability"
	"github.com/reservd/reservd/pkg/errutil"
)

// Notification outcomes recorded in metrics.
const (
	ResultHandled   = "handled"
	ResultFailed    = "failed"
	ResultDiscarded = "discarded"
)

// StreamReader is the part of *redis.Client a Consumer needs.
type StreamReader interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// Handler processes one message. A returned error leaves the message
// pending.
type Handler func(ctx context.Context, msg Message) error

// ConsumerConfig names the stream position a Consumer reads from.
type ConsumerConfig struct {
	Stream   string
	Group    string
	Consumer string
	// Block is how long one read waits for new entries. Defaults to 2s.
	Block time.Duration
	// Count is the most entries fetched per read. Defaults to 16.
	Count int64
}

// Consumer reads a stream through a consumer group and dispatches entries
// by pattern.
type Consumer struct {
	client   StreamReader
	cfg      ConsumerConfig
	handlers map[string]Handler
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithLogger sets the consumer's logger.
func WithLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) { c.logger = logger }
}

// WithMetrics records every dispatched entry in m.
func WithMetrics(m *observability.Metrics) ConsumerOption {
	return func(c *Consumer) { c.metrics = m }
}

// NewConsumer creates a Consumer.
func NewConsumer(client StreamReader, cfg ConsumerConfig, opts ...ConsumerOption) (*Consumer, error) {
	if client == nil {
		return nil, oops.Errorf("redis client is required")
	}
	if cfg.Stream == "" || cfg.Group == "" || cfg.Consumer == "" {
		return nil, oops.With("config", cfg).Errorf("stream, group and consumer are required")
	}
	if cfg.Block <= 0 {
		cfg.Block = 2 * time.Second
	}
	if cfg.Count <= 0 {
		cfg.Count = 16
	}
	c := &Consumer{
		client:   client,
		cfg:      cfg,
		handlers: make(map[string]Handler),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Handle registers h for pattern, replacing any earlier handler.
func (c *Consumer) Handle(pattern string, h Handler) {
	c.handlers[pattern] = h
}

// EnsureGroup creates the consumer group, and the stream if needed. An
// existing group is left alone.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return oops.Code("NOTIFICATION_GROUP_FAILED").
			With("stream", c.cfg.Stream).
			With("group", c.cfg.Group).
			Wrap(err)
	}
	return nil
}

// Run consumes until ctx is done. Entries left pending by an earlier run of
// this consumer are replayed first.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}

	// "0" replays this consumer's pending entries; ">" asks for new ones.
	if err := c.drainPending(ctx); err != nil {
		return err
	}
	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := c.Poll(ctx, ">"); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			errutil.LogWarn(ctx, c.logger, "stream read failed", err)
			select {
			case <-time.After(c.cfg.Block):
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (c *Consumer) drainPending(ctx context.Context) error {
	for {
		n, err := c.Poll(ctx, "0")
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

// Poll performs one read from position start and dispatches what it gets.
// It returns the number of entries acknowledged.
func (c *Consumer) Poll(ctx context.Context, start string) (int, error) {
	block := c.cfg.Block
	if start != ">" {
		// Pending reads never block.
		block = -1
	}
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, start},
		Count:    c.cfg.Count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, oops.Code("NOTIFICATION_READ_FAILED").
			With("stream", c.cfg.Stream).
			With("group", c.cfg.Group).
			Wrap(err)
	}

	acked := 0
	for _, s := range streams {
		for _, raw := range s.Messages {
			if c.dispatch(ctx, raw) {
				if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, raw.ID).Err(); err != nil {
					errutil.LogWarn(ctx, c.logger, "ack failed", err, "id", raw.ID)
					continue
				}
				acked++
			}
		}
	}
	return acked, nil
}

// dispatch runs the handler for raw and reports whether it may be acked.
// Undecodable entries and entries without a handler are acked so they do
// not block the group.
func (c *Consumer) dispatch(ctx context.Context, raw redis.XMessage) bool {
	msg, err := decode(raw)
	if err != nil {
		errutil.LogWarn(ctx, c.logger, "discarding malformed entry", err, "id", raw.ID)
		c.metrics.RecordNotification(msg.Pattern, ResultDiscarded)
		return true
	}

	h, ok := c.handlers[msg.Pattern]
	if !ok {
		c.logger.WarnContext(ctx, "no handler for pattern", "id", msg.ID, "pattern", msg.Pattern)
		c.metrics.RecordNotification(msg.Pattern, ResultDiscarded)
		return true
	}

	if err := h(ctx, msg); err != nil {
		errutil.LogError(ctx, c.logger, "notification handler failed", err,
			"id", msg.ID, "pattern", msg.Pattern)
		c.metrics.RecordNotification(msg.Pattern, ResultFailed)
		return false
	}
	c.metrics.RecordNotification(msg.Pattern, ResultHandled)
	return true
}

// EmailLogger returns the PatternNotifyEmail handler. Delivery is out of
// scope for reservd; the request is logged.
func EmailLogger(logger *slog.Logger) Handler {
	return func(ctx context.Context, msg Message) error {
		var n EmailNotification
		if err := msg.Decode(&n); err != nil {
			return err
		}
		logger.InfoContext(ctx, "email notification",
			"id", msg.ID,
			"email", n.Email,
			"user_id", n.UserID,
			"invoice_id", n.InvoiceID,
			"amount_cents", n.AmountCents,
			"currency", n.Currency,
		)
		return nil
	}
}
