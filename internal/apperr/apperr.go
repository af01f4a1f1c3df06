// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

// Package apperr defines the error taxonomy shared by every reservd service
// and its mapping onto HTTP and gRPC status.
//
// Errors are samber/oops errors carrying one of the codes below. Only the
// public message for a code ever leaves a process; the wrapped cause and
// context are for logs.
package apperr

import (
	"net/http"

	"github.com/samber/oops"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error codes.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeRejected           = "REJECTED"
	CodeChannelUnavailable = "CHANNEL_UNAVAILABLE"
	CodeConfigInvalid      = "CONFIG_INVALID"
	CodeInvalidArgument    = "INVALID_ARGUMENT"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternal           = "INTERNAL"
)

// Public messages per code. Anything not listed is reported as internal.
var publicMessages = map[string]string{
	CodeNotFound:           "not found",
	CodeConflict:           "already exists",
	CodeUnauthorized:       "invalid credentials",
	CodeRejected:           "unauthorized",
	CodeChannelUnavailable: "unauthorized",
	CodeRateLimited:        "too many requests",
	CodeInternal:           "internal error",
}

// Code returns the oops code of err, or CodeInternal when err carries none.
func Code(err error) string {
	if err == nil {
		return ""
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		if code, ok := oopsErr.Code().(string); ok && code != "" {
			return code
		}
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	return err != nil && Code(err) == code
}

// PublicMessage returns the message that may be shown to a caller for err.
// Invalid-argument errors keep their own message since it describes the
// caller's input, not server internals.
func PublicMessage(err error) string {
	code := Code(err)
	if code == CodeInvalidArgument {
		if oopsErr, ok := oops.AsOops(err); ok {
			return oopsErr.Error()
		}
	}
	if msg, ok := publicMessages[code]; ok {
		return msg
	}
	return publicMessages[CodeInternal]
}

// HTTPStatus maps err to an HTTP status code.
// Both rejection classes are authorization failures: the gate fails closed,
// never with a 5xx.
func HTTPStatus(err error) int {
	switch Code(err) {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeUnauthorized, CodeRejected, CodeChannelUnavailable:
		return http.StatusUnauthorized
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// GRPCCode maps err to a gRPC status code.
func GRPCCode(err error) codes.Code {
	switch Code(err) {
	case CodeNotFound:
		return codes.NotFound
	case CodeConflict:
		return codes.AlreadyExists
	case CodeUnauthorized, CodeRejected, CodeChannelUnavailable:
		return codes.Unauthenticated
	case CodeInvalidArgument:
		return codes.InvalidArgument
	case CodeRateLimited:
		return codes.ResourceExhausted
	default:
		return codes.Internal
	}
}

// GRPCStatus converts err to a gRPC status error with a public message.
func GRPCStatus(err error) error {
	if err == nil {
		return nil
	}
	return status.Error(GRPCCode(err), PublicMessage(err))
}

// Recode returns err reported under code. The innermost oops code of a chain
// is the one reported, so an err that already carries a code is re-raised as
// a new error with its message and code kept as context.
func Recode(err error, code string) error {
	if err == nil {
		return nil
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		if c, ok := oopsErr.Code().(string); ok && c != "" {
			if c == code {
				return err
			}
			return oops.Code(code).
				With("cause", oopsErr.Error()).
				With("cause_code", c).
				Errorf("%s", oopsErr.Error())
		}
	}
	return oops.Code(code).Wrap(err)
}
