// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

// Package token issues and validates the signed bearer tokens that carry a
// user's identity between reservd services.
//
// Tokens are HS256 JWTs with sub, iat, exp and jti claims. A Manager is
// the only component holding the signing secret; it is immutable after
// construction and safe to share.
package token

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/reservd/reservd/internal/apperr"
)

// MinSecretLength is the shortest signing secret NewManager accepts.
const MinSecretLength = 16

// Claims are the validated contents of a token.
type Claims struct {
	UserID    string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issued is a freshly signed token.
type Issued struct {
	Token     string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Manager signs and verifies tokens.
type Manager struct {
	secret  []byte
	ttl     time.Duration
	revoked RevocationStore
	now     func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithRevocationStore checks every parsed token against store.
func WithRevocationStore(store RevocationStore) Option {
	return func(m *Manager) { m.revoked = store }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager signing with secret and issuing tokens that
// live for ttl.
func NewManager(secret string, ttl time.Duration, opts ...Option) (*Manager, error) {
	if len(secret) < MinSecretLength {
		return nil, oops.Code(apperr.CodeConfigInvalid).
			With("min", MinSecretLength).
			Errorf("token secret must be at least %d bytes", MinSecretLength)
	}
	if ttl <= 0 {
		return nil, oops.Code(apperr.CodeConfigInvalid).
			With("ttl", ttl.String()).
			Errorf("token expiration must be positive")
	}

	m := &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// TTL returns the lifetime of issued tokens.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue signs a token naming userID. Both iat and exp derive from a single
// reading of the clock.
func (m *Manager) Issue(userID string) (Issued, error) {
	if userID == "" {
		return Issued{}, oops.Code("TOKEN_ISSUE_FAILED").Errorf("user id cannot be empty")
	}

	// JWT dates hold whole seconds. Truncating here keeps the cookie expiry
	// and the exp claim on the same instant.
	now := m.now().UTC().Truncate(time.Second)
	exp := now.Add(m.ttl)
	id := ulid.Make().String()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        id,
	}).SignedString(m.secret)
	if err != nil {
		return Issued{}, oops.Code("TOKEN_ISSUE_FAILED").With("user_id", userID).Wrap(err)
	}

	return Issued{Token: signed, ID: id, IssuedAt: now, ExpiresAt: exp}, nil
}

// Parse verifies tok and returns its claims. Any failure, whether signature,
// algorithm, expiry, missing claims or revocation, is REJECTED. A failing
// revocation store is reported as a storage error.
func (m *Manager) Parse(ctx context.Context, tok string) (Claims, error) {
	if tok == "" {
		return Claims{}, oops.Code(apperr.CodeRejected).Errorf("token is empty")
	}

	var rc jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tok, &rc,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return Claims{}, oops.Code(apperr.CodeRejected).With("reason", rejectReason(err)).Wrap(err)
	}
	if rc.Subject == "" || rc.ID == "" || rc.IssuedAt == nil {
		return Claims{}, oops.Code(apperr.CodeRejected).
			With("reason", "missing claims").
			Errorf("token is missing required claims")
	}

	claims := Claims{
		UserID:    rc.Subject,
		ID:        rc.ID,
		IssuedAt:  rc.IssuedAt.Time,
		ExpiresAt: rc.ExpiresAt.Time,
	}

	if m.revoked != nil {
		revoked, err := m.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			return Claims{}, oops.With("operation", "check revocation").With("jti", claims.ID).Wrap(err)
		}
		if revoked {
			return Claims{}, oops.Code(apperr.CodeRejected).
				With("reason", "revoked").
				With("jti", claims.ID).
				Errorf("token has been revoked")
		}
	}
	return claims, nil
}

// Revoke parses tok and puts its id on the revocation list until the
// token's own expiry. Without a revocation store it is a no-op.
func (m *Manager) Revoke(ctx context.Context, tok string) error {
	claims, err := m.Parse(ctx, tok)
	if err != nil {
		return err
	}
	if m.revoked == nil {
		return nil
	}
	if err := m.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt); err != nil {
		return oops.With("operation", "revoke").With("jti", claims.ID).Wrap(err)
	}
	return nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "bad signature"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "unverifiable"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	default:
		return "invalid"
	}
}
