// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package errutil

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/status"

	"github.com/reservd/reservd/internal/apperr"
)

// AssertErrorCode asserts that err is an oops error reporting code.
func AssertErrorCode(t testing.TB, err error, code string) {
	t.Helper()
	require.Error(t, err, "expected an error with code %s", code)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T: %v", err, err)
	assert.Equal(t, code, oopsErr.Code(), "error: %v", err)
}

// AssertErrorContext asserts that err carries key=value in its oops context.
func AssertErrorContext(t testing.TB, err error, key string, value any) {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T", err)
	ctx := oopsErr.Context()
	if assert.Contains(t, ctx, key) {
		assert.Equal(t, value, ctx[key])
	}
}

// AssertPublicError asserts what a caller sees for err: the HTTP status, and
// message on both the HTTP body and the gRPC status.
func AssertPublicError(t testing.TB, err error, httpStatus int, message string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, httpStatus, apperr.HTTPStatus(err), "error: %v", err)
	assert.Equal(t, message, apperr.PublicMessage(err))

	st, ok := status.FromError(apperr.GRPCStatus(err))
	require.True(t, ok)
	assert.Equal(t, apperr.GRPCCode(err), st.Code())
	assert.Equal(t, message, st.Message())
}
