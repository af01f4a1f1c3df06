// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

// Package httpapi holds the public HTTP surface shared by reservd services:
// the auth routes, JSON helpers and the request middleware chain.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/samber/oops"

	"github.com/reservd/reservd/internal/apperr"
	"github.com/reservd/reservd/pkg/errutil"
)

// MaxBodyBytes bounds every JSON request body.
const MaxBodyBytes = 1 << 20

// WriteJSON writes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	//nolint:errcheck // client may have gone away
	json.NewEncoder(w).Encode(v)
}

// WriteError writes err as {"error": msg} using its public message. Server
// faults are logged with full detail first.
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		errutil.LogError(r.Context(), logger, "request failed", err,
			"method", r.Method, "path", r.URL.Path)
	}
	WriteJSON(w, status, map[string]string{"error": apperr.PublicMessage(err)})
}

// DecodeJSON reads one JSON object from r's body into v. Unknown fields,
// trailing data and oversized bodies are INVALID_ARGUMENT.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return oops.Code(apperr.CodeInvalidArgument).With("limit", maxErr.Limit).Errorf("request body too large")
		}
		return oops.Code(apperr.CodeInvalidArgument).Wrapf(err, "malformed JSON body")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return oops.Code(apperr.CodeInvalidArgument).Errorf("request body must hold a single JSON object")
	}
	return nil
}
