// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

// Package gate guards requests to peer services. Each request presenting a
// bearer token costs one bounded call to the auth process; the gate either
// attaches the resolved identity to the request context or denies it.
//
// A request is Unauthenticated until a token is found (TokenPresent) and ends
// Authenticated or Rejected. Failing to reach the validator denies the request
// as CHANNEL_UNAVAILABLE; it never lets it through.
package gate

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/reservd/reservd/internal/apperr"
	"github.com/reservd/reservd/internal/auth"
	"github.com/reservd/reservd/internal/observability"
	"github.com/reservd/reservd/pkg/errutil"
)

// DefaultTimeout bounds one validation call.
const DefaultTimeout = 5 * time.Second

// Transports label gate decisions in metrics and logs.
const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

// Validator resolves a bearer token to an identity. The gRPC auth client
// implements it; the auth process itself may use its local Authenticator.
type Validator interface {
	Authenticate(ctx context.Context, tok string) (auth.Identity, error)
}

// Gate authenticates requests against a Validator.
type Gate struct {
	validator Validator
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// Option configures a Gate.
type Option func(*Gate)

// WithTimeout bounds each validation call. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithLogger sets the logger used for denied requests.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

// WithMetrics counts decisions on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(g *Gate) {
		g.metrics = m
	}
}

// New creates a Gate.
func New(validator Validator, opts ...Option) (*Gate, error) {
	if validator == nil {
		return nil, oops.Errorf("validator is required")
	}
	g := &Gate{
		validator: validator,
		timeout:   DefaultTimeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return g, nil
}

// Timeout returns the bound on one validation call.
func (g *Gate) Timeout() time.Duration {
	return g.timeout
}

// Check resolves tok. An empty token is REJECTED without calling the
// validator. Otherwise exactly one call is made, bounded by the gate timeout
// and cancelled with ctx. A validator verdict of rejection is REJECTED; any
// other failure is CHANNEL_UNAVAILABLE.
func (g *Gate) Check(ctx context.Context, tok string) (auth.Identity, error) {
	if tok == "" {
		return auth.Identity{}, oops.Code(apperr.CodeRejected).
			With("reason", "missing token").
			Errorf("no credential presented")
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	identity, err := g.validator.Authenticate(callCtx, tok)
	if err == nil {
		return identity, nil
	}
	if apperr.Is(err, apperr.CodeRejected) {
		return auth.Identity{}, err
	}
	return auth.Identity{}, apperr.Recode(err, apperr.CodeChannelUnavailable)
}

// decide runs Check and records the outcome for transport.
func (g *Gate) decide(ctx context.Context, transport, tok string) (auth.Identity, error) {
	identity, err := g.Check(ctx, tok)
	switch {
	case err == nil:
		g.metrics.RecordGateDecision(transport, observability.OutcomeAuthenticated)
	case apperr.Is(err, apperr.CodeRejected):
		g.metrics.RecordGateDecision(transport, observability.OutcomeRejected)
		g.logger.DebugContext(ctx, "request rejected", append(errutil.ErrorAttrs(err), "transport", transport)...)
	default:
		g.metrics.RecordGateDecision(transport, observability.OutcomeUnavailable)
		errutil.LogWarn(ctx, g.logger, "auth channel unavailable", err, "transport", transport)
	}
	return identity, err
}
