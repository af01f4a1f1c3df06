// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package auth

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/reservd/reservd/internal/apperr"
	"github.com/reservd/reservd/internal/token"
)

// TokenParser verifies a bearer token. *token.Manager implements it.
type TokenParser interface {
	Parse(ctx context.Context, tok string) (token.Claims, error)
}

// Authenticator resolves bearer tokens to identities. It is the validator
// behind the inter-service Authenticate call.
type Authenticator struct {
	tokens TokenParser
	users  UserStore
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(tokens TokenParser, users UserStore) (*Authenticator, error) {
	if tokens == nil {
		return nil, oops.Errorf("token parser is required")
	}
	if users == nil {
		return nil, oops.Errorf("user store is required")
	}
	return &Authenticator{tokens: tokens, users: users}, nil
}

// Authenticate returns the Identity named by tok. Invalid tokens and tokens
// naming a user that no longer exists are REJECTED; storage failures keep
// their own code.
func (a *Authenticator) Authenticate(ctx context.Context, tok string) (Identity, error) {
	claims, err := a.tokens.Parse(ctx, tok)
	if err != nil {
		return Identity{}, err
	}

	id, err := ulid.Parse(claims.UserID)
	if err != nil {
		return Identity{}, oops.Code(apperr.CodeRejected).
			With("reason", "malformed subject").
			Errorf("token subject is not a user id")
	}

	res, err := a.users.FindByID(ctx, id)
	if err != nil {
		return Identity{}, err
	}
	user, found := res.Get()
	if !found {
		return Identity{}, oops.Code(apperr.CodeRejected).
			With("reason", "unknown user").
			With("user_id", id.String()).
			Errorf("token names an unknown user")
	}
	return user.Identity(), nil
}
