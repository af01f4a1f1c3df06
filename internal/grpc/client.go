// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package grpc

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/samber/oops"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/reservd/reservd/internal/apperr"
	"github.com/reservd/reservd/internal/auth"
	"github.com/reservd/reservd/internal/logging"
)

// ClientConfig holds configuration for an inter-service gRPC connection.
type ClientConfig struct {
	// Address is the target gRPC server address (e.g., "localhost:9001")
	Address string

	// TLSConfig for mTLS authentication. If nil, insecure connection is used.
	TLSConfig *tls.Config

	// KeepaliveTime is how often to ping the server (default: 10s)
	KeepaliveTime time.Duration

	// KeepaliveTimeout is how long to wait for ping response (default: 5s)
	KeepaliveTimeout time.Duration

	// DialOptions are appended after the defaults. Tests use it to dial bufconn.
	DialOptions []grpc.DialOption
}

// Dial creates a lazily connecting client connection for cfg. The connection
// forwards the request id of each outgoing call.
func Dial(cfg ClientConfig) (*grpc.ClientConn, error) {
	if cfg.Address == "" {
		return nil, oops.Code(apperr.CodeConfigInvalid).Errorf("address is required")
	}

	if cfg.KeepaliveTime == 0 {
		cfg.KeepaliveTime = 10 * time.Second
	}
	if cfg.KeepaliveTimeout == 0 {
		cfg.KeepaliveTimeout = 5 * time.Second
	}

	opts := []grpc.DialOption{
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.KeepaliveTime,
			Timeout:             cfg.KeepaliveTimeout,
			PermitWithoutStream: true,
		}),
		grpc.WithUnaryInterceptor(requestIDUnaryClientInterceptor),
	}

	if cfg.TLSConfig != nil {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(cfg.TLSConfig)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	opts = append(opts, cfg.DialOptions...)

	conn, err := grpc.NewClient(cfg.Address, opts...)
	if err != nil {
		return nil, oops.Code("GRPC_DIAL_FAILED").With("address", cfg.Address).Wrap(err)
	}
	return conn, nil
}

func requestIDUnaryClientInterceptor(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
	if id := logging.RequestID(ctx); id != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, RequestIDMetadataKey, id)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

// Client calls the Auth service of the auth process.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient creates a Client for the Auth service at cfg.Address.
func NewClient(cfg ClientConfig) (*Client, error) {
	conn, err := Dial(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Authenticate asks the auth process to resolve tok. An Unauthenticated
// answer is REJECTED; every other failure, including a deadline or an
// unreadable response, is CHANNEL_UNAVAILABLE.
func (c *Client) Authenticate(ctx context.Context, tok string) (auth.Identity, error) {
	out, err := InvokeStruct(ctx, c.conn, AuthenticateMethod, map[string]any{"token": tok})
	if err != nil {
		return auth.Identity{}, ClassifyAuthError(err)
	}
	identity, err := IdentityFromStruct(out)
	if err != nil {
		return auth.Identity{}, apperr.Recode(err, apperr.CodeChannelUnavailable)
	}
	return identity, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// ClassifyAuthError maps an Authenticate call failure to REJECTED or
// CHANNEL_UNAVAILABLE.
func ClassifyAuthError(err error) error {
	code := status.Code(err)
	if code == codes.Unauthenticated {
		return oops.Code(apperr.CodeRejected).With("grpc_code", code.String()).Wrap(err)
	}
	return apperr.Recode(oops.With("grpc_code", code.String()).Wrap(err), apperr.CodeChannelUnavailable)
}
