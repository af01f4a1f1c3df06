// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/samber/oops"

	"github.com/reservd/reservd/internal/apperr"
	"github.com/reservd/reservd/internal/auth"
	"github.com/reservd/reservd/internal/gate"
	"github.com/reservd/reservd/internal/observability"
	"github.com/reservd/reservd/internal/token"
	"github.com/reservd/reservd/pkg/errutil"
)

// Login attempt results recorded in metrics.
const (
	LoginSucceeded = "success"
	LoginFailed    = "failure"
	LoginLimited   = "limited"
)

// Accounts registers users and checks their credentials. *auth.Service
// implements it.
type Accounts interface {
	Register(ctx context.Context, email, password string) (auth.Identity, error)
	Login(ctx context.Context, email, password string) (auth.Identity, error)
}

// Tokens issues and revokes session tokens. *token.Manager implements it.
type Tokens interface {
	Issue(userID string) (token.Issued, error)
	Revoke(ctx context.Context, tok string) error
}

// AuthOptions configure an AuthHandler.
type AuthOptions struct {
	// SecureCookie marks the Authentication cookie Secure.
	SecureCookie bool
	// LoginLimiter throttles login attempts per client IP. Nil disables it.
	LoginLimiter *Limiter
	Metrics      *observability.Metrics
	Logger       *slog.Logger
}

// AuthHandler serves the auth service's public routes.
type AuthHandler struct {
	accounts Accounts
	tokens   Tokens
	me       *gate.Gate
	opts     AuthOptions
}

// NewAuthHandler creates an AuthHandler. validator resolves tokens for
// GET /users/me; the auth service owns the secret so this is a local check.
func NewAuthHandler(accounts Accounts, tokens Tokens, validator gate.Validator, opts AuthOptions) (*AuthHandler, error) {
	if accounts == nil || tokens == nil {
		return nil, oops.Errorf("accounts and tokens are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	me, err := gate.New(validator, gate.WithLogger(opts.Logger), gate.WithMetrics(opts.Metrics))
	if err != nil {
		return nil, err
	}
	return &AuthHandler{accounts: accounts, tokens: tokens, me: me, opts: opts}, nil
}

// Routes returns the auth router.
//
//	POST /auth/login   credentials -> identity + Authentication cookie
//	POST /auth/logout  revoke the presented token, clear the cookie
//	POST /users        register
//	GET  /users/me     identity of the cookie's bearer
func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/auth/login", h.login)
	r.Post("/auth/logout", h.logout)
	r.Post("/users", h.register)
	r.With(h.me.HTTP).Get("/users/me", h.whoami)
	return r
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	if h.opts.LoginLimiter != nil && !h.opts.LoginLimiter.Allow(ClientIP(r)) {
		h.opts.Metrics.RecordLogin(LoginLimited)
		WriteError(w, r, h.opts.Logger, oops.Code(apperr.CodeRateLimited).Errorf("login rate exceeded"))
		return
	}

	var in credentials
	if err := DecodeJSON(w, r, &in); err != nil {
		WriteError(w, r, h.opts.Logger, err)
		return
	}

	identity, err := h.accounts.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		if apperr.Is(err, apperr.CodeUnauthorized) {
			h.opts.Metrics.RecordLogin(LoginFailed)
		}
		WriteError(w, r, h.opts.Logger, err)
		return
	}

	issued, err := h.tokens.Issue(identity.UserID.String())
	if err != nil {
		WriteError(w, r, h.opts.Logger, err)
		return
	}

	h.opts.Metrics.RecordLogin(LoginSucceeded)
	http.SetCookie(w, token.Cookie(issued, h.opts.SecureCookie))
	WriteJSON(w, http.StatusOK, identity)
}

func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	if tok := token.FromRequest(r); tok != "" {
		// An already-invalid token needs no revocation.
		if err := h.tokens.Revoke(r.Context(), tok); err != nil && !apperr.Is(err, apperr.CodeRejected) {
			errutil.LogWarn(r.Context(), h.opts.Logger, "token revocation failed", err)
		}
	}
	http.SetCookie(w, token.ClearCookie(h.opts.SecureCookie))
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := DecodeJSON(w, r, &in); err != nil {
		WriteError(w, r, h.opts.Logger, err)
		return
	}

	identity, err := h.accounts.Register(r.Context(), in.Email, in.Password)
	if err != nil {
		WriteError(w, r, h.opts.Logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, identity)
}

func (h *AuthHandler) whoami(w http.ResponseWriter, r *http.Request) {
	identity, ok := gate.IdentityFrom(r.Context())
	if !ok {
		WriteError(w, r, h.opts.Logger, oops.Code(apperr.CodeRejected).Errorf("no identity"))
		return
	}
	WriteJSON(w, http.StatusOK, identity)
}
