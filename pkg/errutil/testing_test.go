// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package errutil_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/samber/oops"

	"github.com/reservd/reservd/internal/apperr"
	"github.com/reservd/reservd/pkg/errutil"
)

func TestAssertErrorCode_MatchingCode(t *testing.T) {
	err := oops.Code("CONFLICT").Wrap(errors.New("duplicate"))
	errutil.AssertErrorCode(t, err, "CONFLICT")
}

func TestAssertErrorContext_MatchingKeyValue(t *testing.T) {
	err := oops.With("table", "users").Errorf("test error")
	errutil.AssertErrorContext(t, err, "table", "users")
}

func TestAssertPublicError_HidesInternalDetail(t *testing.T) {
	err := oops.Code(apperr.CodeInternal).Errorf("dial redis 10.0.0.3: refused")
	errutil.AssertPublicError(t, err, http.StatusInternalServerError, "internal error")
}

func TestAssertPublicError_InvalidArgumentKeepsMessage(t *testing.T) {
	err := oops.Code(apperr.CodeInvalidArgument).Errorf("password must be at most 72 bytes")
	errutil.AssertPublicError(t, err, http.StatusBadRequest, "password must be at most 72 bytes")
}
