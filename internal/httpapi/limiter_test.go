// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package httpapi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestLimiter_PerKeyBuckets(t *testing.T) {
	l := NewLimiter(1, 1)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"), "keys are independent")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("10.0.0.1"), "bucket refills")
}

func TestLimiter_Sweep(t *testing.T) {
	l := NewLimiter(1, 1)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	l.Allow("old")
	now = now.Add(10 * time.Minute)
	l.Allow("fresh")

	l.Sweep(5 * time.Minute)
	assert.Equal(t, 1, l.Len())
}

func TestLimiter_RunStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := NewLimiter(1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
