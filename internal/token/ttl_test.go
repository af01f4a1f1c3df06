// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package token_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reservd/reservd/internal/apperr"
	"github.com/reservd/reservd/internal/token"
	"github.com/reservd/reservd/pkg/errutil"
)

func TestParseTTL(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"3600", time.Hour},
		{"30s", 30 * time.Second},
		{"15m", 15 * time.Minute},
		{"2h", 2 * time.Hour},
		{"7d", 7 * 24 * time.Hour},
		{"1", time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := token.ParseTTL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTTL_Rejects(t *testing.T) {
	for _, in := range []string{"", "0", "0s", "-5", "5w", "1.5h", "h", " 60", "60 ", "1h30m", "99999999999999999999d"} {
		t.Run(in, func(t *testing.T) {
			_, err := token.ParseTTL(in)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, apperr.CodeConfigInvalid)
		})
	}
}
