// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package gate

import (
	"context"
	"encoding/json"
	"net/http"

	"google.golang.org/grpc"

	"github.com/reservd/reservd/internal/apperr"
	"github.com/reservd/reservd/internal/token"
)

// HTTP guards next with the Authentication cookie. Denied requests get a 401
// with a generic JSON body and never reach next.
func (g *Gate) HTTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := token.FromRequest(r)
		identity, err := g.decide(r.Context(), TransportHTTP, tok)
		if err != nil {
			WriteDenied(w, err)
			return
		}
		ctx := withToken(WithIdentity(r.Context(), identity), tok)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WriteDenied writes the response for a denied HTTP request.
func WriteDenied(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperr.HTTPStatus(err))
	//nolint:errcheck // client may have gone away
	json.NewEncoder(w).Encode(map[string]string{"error": apperr.PublicMessage(err)})
}

// UnaryServerInterceptor guards the named full methods with the token in
// the "authentication" metadata key. With no methods named every call is
// guarded. Denials surface as codes.Unauthenticated.
func (g *Gate) UnaryServerInterceptor(protected ...string) grpc.UnaryServerInterceptor {
	guarded := make(map[string]struct{}, len(protected))
	for _, m := range protected {
		guarded[m] = struct{}{}
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if len(guarded) > 0 {
			if _, ok := guarded[info.FullMethod]; !ok {
				return handler(ctx, req)
			}
		}
		tok := incomingToken(ctx)
		identity, err := g.decide(ctx, TransportGRPC, tok)
		if err != nil {
			return nil, apperr.GRPCStatus(err)
		}
		return handler(withToken(WithIdentity(ctx, identity), tok), req)
	}
}
