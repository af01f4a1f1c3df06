// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

// Package errutil holds helpers for logging and asserting oops errors.
package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err at error level with structured context.
// For oops errors the code and context map are logged as separate
// attributes; other errors are logged as a plain string. Extra attrs are
// appended as-is.
func LogError(ctx context.Context, logger *slog.Logger, msg string, err error, attrs ...any) {
	logger.ErrorContext(ctx, msg, append(ErrorAttrs(err), attrs...)...)
}

// LogWarn is LogError at warn level, for failures a caller recovers from.
func LogWarn(ctx context.Context, logger *slog.Logger, msg string, err error, attrs ...any) {
	logger.WarnContext(ctx, msg, append(ErrorAttrs(err), attrs...)...)
}

// ErrorAttrs returns the slog attributes describing err.
func ErrorAttrs(err error) []any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return []any{"error", err}
	}
	attrs := []any{"error", oopsErr.Error()}
	if code := oopsErr.Code(); code != nil {
		attrs = append(attrs, "code", code)
	}
	if c := oopsErr.Context(); len(c) > 0 {
		attrs = append(attrs, "context", c)
	}
	return attrs
}
