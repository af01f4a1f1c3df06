// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

// Package notification carries fire-and-forget events between reservd
// services over a Redis stream.
//
// Producers append entries with a pattern name and a JSON payload. The
// notification service reads them through a consumer group, dispatches each
// to the handler registered for its pattern and acknowledges it. Entries
// whose handler fails stay pending and are retried when the consumer
// restarts.
package notification

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// PatternNotifyEmail asks for an e-mail to the paying user.
const PatternNotifyEmail = "notify_email"

// Stream entry fields.
const (
	fieldPattern = "pattern"
	fieldData    = "data"
)

// DefaultMaxLen caps the stream length; older entries are trimmed
// approximately.
const DefaultMaxLen = 10_000

// Message is one decoded stream entry.
type Message struct {
	ID      string
	Pattern string
	Data    json.RawMessage
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if err := json.Unmarshal(m.Data, v); err != nil {
		return oops.Code("NOTIFICATION_DECODE_FAILED").
			With("id", m.ID).
			With("pattern", m.Pattern).
			Wrap(err)
	}
	return nil
}

// EmailNotification is the payload of PatternNotifyEmail.
type EmailNotification struct {
	Email       string `json:"email"`
	UserID      string `json:"user_id"`
	InvoiceID   string `json:"invoice_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

// StreamWriter is the part of *redis.Client a Producer needs.
type StreamWriter interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Producer appends messages to a stream.
type Producer struct {
	client StreamWriter
	stream string
	maxLen int64
}

// NewProducer creates a Producer for stream.
func NewProducer(client StreamWriter, stream string) (*Producer, error) {
	if client == nil {
		return nil, oops.Errorf("redis client is required")
	}
	if stream == "" {
		return nil, oops.Errorf("stream name is required")
	}
	return &Producer{client: client, stream: stream, maxLen: DefaultMaxLen}, nil
}

// Publish appends pattern with data encoded as JSON and returns the entry
// id.
func (p *Producer) Publish(ctx context.Context, pattern string, data any) (string, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return "", oops.Code("NOTIFICATION_ENCODE_FAILED").With("pattern", pattern).Wrap(err)
	}
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			fieldPattern: pattern,
			fieldData:    string(payload),
		},
	}).Result()
	if err != nil {
		return "", oops.Code("NOTIFICATION_PUBLISH_FAILED").
			With("stream", p.stream).
			With("pattern", pattern).
			Wrap(err)
	}
	return id, nil
}

// decode turns a raw stream entry into a Message.
func decode(raw redis.XMessage) (Message, error) {
	pattern, _ := raw.Values[fieldPattern].(string)
	if pattern == "" {
		return Message{ID: raw.ID}, oops.Code("NOTIFICATION_DECODE_FAILED").
			With("id", raw.ID).
			Errorf("entry has no pattern")
	}
	data, _ := raw.Values[fieldData].(string)
	if data == "" {
		data = "null"
	}
	if !json.Valid([]byte(data)) {
		return Message{ID: raw.ID, Pattern: pattern}, oops.Code("NOTIFICATION_DECODE_FAILED").
			With("id", raw.ID).
			With("pattern", pattern).
			Errorf("entry data is not JSON")
	}
	return Message{ID: raw.ID, Pattern: pattern, Data: json.RawMessage(data)}, nil
}
