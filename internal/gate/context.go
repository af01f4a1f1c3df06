// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package gate

import (
	"context"

	"google.golang.org/grpc/metadata"

	"github.com/reservd/reservd/internal/auth"
)

// MetadataKey is the gRPC metadata key carrying the bearer token.
const MetadataKey = "authentication"

type identityKey struct{}

type tokenKey struct{}

// WithIdentity returns a context carrying the authenticated identity.
func WithIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity attached by the gate.
func IdentityFrom(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(auth.Identity)
	return id, ok
}

// withToken records the credential the gate accepted so handlers can forward it.
func withToken(ctx context.Context, tok string) context.Context {
	return context.WithValue(ctx, tokenKey{}, tok)
}

// TokenFrom returns the credential of the current request: the one the gate
// accepted, or failing that the token in incoming gRPC metadata.
func TokenFrom(ctx context.Context) string {
	if tok, ok := ctx.Value(tokenKey{}).(string); ok && tok != "" {
		return tok
	}
	return incomingToken(ctx)
}

// AppendToken adds tok to the outgoing gRPC metadata of ctx.
func AppendToken(ctx context.Context, tok string) context.Context {
	if tok == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, MetadataKey, tok)
}

func incomingToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get(MetadataKey); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
