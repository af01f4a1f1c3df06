// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package notification

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/reservd/reservd/internal/observability"
	"github.com/reservd/reservd/pkg/errutil"
)

// fakeStream is an in-memory stand-in for the Redis stream commands.
type fakeStream struct {
	mu       sync.Mutex
	added    []*redis.XAddArgs
	addErr   error
	groupErr error
	reads    []readResult
	readArgs []redis.XReadGroupArgs
	acked    []string
}

type readResult struct {
	streams []redis.XStream
	err     error
}

func (f *fakeStream) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return redis.NewStringResult("", f.addErr)
	}
	f.added = append(f.added, a)
	return redis.NewStringResult("1-0", nil)
}

func (f *fakeStream) XGroupCreateMkStream(context.Context, string, string, string) *redis.StatusCmd {
	return redis.NewStatusResult("OK", f.groupErr)
}

// XReadGroup serves queued results in order, then blocks like an idle
// stream until ctx is done.
func (f *fakeStream) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	f.mu.Lock()
	f.readArgs = append(f.readArgs, *a)
	if len(f.reads) > 0 {
		r := f.reads[0]
		f.reads = f.reads[1:]
		f.mu.Unlock()
		return redis.NewXStreamSliceCmdResult(r.streams, r.err)
	}
	f.mu.Unlock()
	<-ctx.Done()
	return redis.NewXStreamSliceCmdResult(nil, ctx.Err())
}

func (f *fakeStream) XAck(_ context.Context, _, _ string, ids ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, ids...)
	return redis.NewIntResult(int64(len(ids)), nil)
}

func (f *fakeStream) ackedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.acked...)
}

func entry(id, pattern, data string) redis.XMessage {
	return redis.XMessage{ID: id, Values: map[string]any{fieldPattern: pattern, fieldData: data}}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProducer_Publish(t *testing.T) {
	f := &fakeStream{}
	p, err := NewProducer(f, "reservd:notifications")
	require.NoError(t, err)

	id, err := p.Publish(context.Background(), PatternNotifyEmail, EmailNotification{Email: "a@x.com", AmountCents: 500})
	require.NoError(t, err)
	assert.Equal(t, "1-0", id)

	require.Len(t, f.added, 1)
	args := f.added[0]
	assert.Equal(t, "reservd:notifications", args.Stream)
	assert.True(t, args.Approx)
	values := args.Values.(map[string]any)
	assert.Equal(t, PatternNotifyEmail, values[fieldPattern])
	assert.JSONEq(t, `{"email":"a@x.com","user_id":"","invoice_id":"","amount_cents":500,"currency":""}`, values[fieldData].(string))
}

func TestProducer_PublishFailure(t *testing.T) {
	f := &fakeStream{addErr: errors.New("connection refused")}
	p, err := NewProducer(f, "s")
	require.NoError(t, err)

	_, err = p.Publish(context.Background(), PatternNotifyEmail, struct{}{})
	errutil.AssertErrorCode(t, err, "NOTIFICATION_PUBLISH_FAILED")

	_, err = p.Publish(context.Background(), PatternNotifyEmail, make(chan int))
	errutil.AssertErrorCode(t, err, "NOTIFICATION_ENCODE_FAILED")
}

func TestNewProducer_Validation(t *testing.T) {
	_, err := NewProducer(nil, "s")
	require.Error(t, err)
	_, err = NewProducer(&fakeStream{}, "")
	require.Error(t, err)
}

func newTestConsumer(t *testing.T, f *fakeStream) (*Consumer, *observability.Metrics) {
	t.Helper()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	c, err := NewConsumer(f, ConsumerConfig{Stream: "s", Group: "g", Consumer: "c1", Block: 10 * time.Millisecond},
		WithLogger(quietLogger()), WithMetrics(metrics))
	require.NoError(t, err)
	return c, metrics
}

func TestConsumer_PollDispatchesAndAcks(t *testing.T) {
	f := &fakeStream{reads: []readResult{{streams: []redis.XStream{{
		Stream: "s",
		Messages: []redis.XMessage{
			entry("1-0", PatternNotifyEmail, `{"email":"a@x.com"}`),
			entry("2-0", "unknown_pattern", `{}`),
			{ID: "3-0", Values: map[string]any{}},
			entry("4-0", "flaky", `{}`),
		},
	}}}}}
	c, metrics := newTestConsumer(t, f)

	var got []EmailNotification
	c.Handle(PatternNotifyEmail, func(_ context.Context, msg Message) error {
		var n EmailNotification
		require.NoError(t, msg.Decode(&n))
		got = append(got, n)
		return nil
	})
	c.Handle("flaky", func(context.Context, Message) error { return errors.New("smtp down") })

	n, err := c.Poll(context.Background(), ">")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"1-0", "2-0", "3-0"}, f.ackedIDs(), "failed entries stay pending")

	require.Len(t, got, 1)
	assert.Equal(t, "a@x.com", got[0].Email)

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Notifications.WithLabelValues(PatternNotifyEmail, ResultHandled)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Notifications.WithLabelValues("flaky", ResultFailed)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Notifications.WithLabelValues("unknown_pattern", ResultDiscarded)), 0)

	require.Len(t, f.readArgs, 1)
	assert.Equal(t, []string{"s", ">"}, f.readArgs[0].Streams)
	assert.Equal(t, 10*time.Millisecond, f.readArgs[0].Block)
}

func TestConsumer_PollEmptyAndFailure(t *testing.T) {
	f := &fakeStream{reads: []readResult{
		{err: redis.Nil},
		{err: errors.New("READONLY")},
	}}
	c, _ := newTestConsumer(t, f)

	n, err := c.Poll(context.Background(), ">")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = c.Poll(context.Background(), ">")
	errutil.AssertErrorCode(t, err, "NOTIFICATION_READ_FAILED")
}

func TestConsumer_EnsureGroup(t *testing.T) {
	c, _ := newTestConsumer(t, &fakeStream{groupErr: errors.New("BUSYGROUP Consumer Group name already exists")})
	require.NoError(t, c.EnsureGroup(context.Background()))

	c, _ = newTestConsumer(t, &fakeStream{groupErr: errors.New("WRONGTYPE")})
	errutil.AssertErrorCode(t, c.EnsureGroup(context.Background()), "NOTIFICATION_GROUP_FAILED")
}

func TestConsumer_RunReplaysPendingThenStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := &fakeStream{reads: []readResult{
		{streams: []redis.XStream{{Stream: "s", Messages: []redis.XMessage{entry("1-0", PatternNotifyEmail, `{}`)}}}},
		{streams: []redis.XStream{{Stream: "s"}}},
		{streams: []redis.XStream{{Stream: "s", Messages: []redis.XMessage{entry("5-0", PatternNotifyEmail, `{}`)}}}},
	}}
	c, _ := newTestConsumer(t, f)
	c.Handle(PatternNotifyEmail, EmailLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return len(f.ackedIDs()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, []string{"s", "0"}, f.readArgs[0].Streams)
	assert.Equal(t, time.Duration(-1), f.readArgs[0].Block)
	assert.Equal(t, []string{"s", ">"}, f.readArgs[2].Streams)
}

func TestNewConsumer_Validation(t *testing.T) {
	_, err := NewConsumer(nil, ConsumerConfig{Stream: "s", Group: "g", Consumer: "c"})
	require.Error(t, err)
	_, err = NewConsumer(&fakeStream{}, ConsumerConfig{Stream: "s"})
	require.Error(t, err)
}

func TestEmailLogger_RejectsBadPayload(t *testing.T) {
	h := EmailLogger(quietLogger())
	err := h(context.Background(), Message{ID: "1-0", Pattern: PatternNotifyEmail, Data: []byte(`[1,2]`)})
	errutil.AssertErrorCode(t, err, "NOTIFICATION_DECODE_FAILED")
}
