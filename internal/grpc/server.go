// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package grpc

import (
	"context"
	"crypto/tls"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/reservd/reservd/internal/apperr"
	"github.com/reservd/reservd/internal/auth"
	"github.com/reservd/reservd/internal/logging"
	"github.com/reservd/reservd/pkg/errutil"
)

// Auth service names.
const (
	AuthServiceName    = "reservd.auth.v1.Auth"
	AuthenticateMethod = "/" + AuthServiceName + "/Authenticate"
)

// RequestIDMetadataKey carries the caller's request id between services.
const RequestIDMetadataKey = "x-request-id"

// Authenticator resolves a bearer token to an identity.
// *auth.Authenticator implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, tok string) (auth.Identity, error)
}

// authHandler is the handler type of AuthServiceDesc.
type authHandler interface {
	Authenticate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// AuthServiceDesc describes the Auth service.
var AuthServiceDesc = grpc.ServiceDesc{
	ServiceName: AuthServiceName,
	HandlerType: (*authHandler)(nil),
	Methods: []grpc.MethodDesc{
		StructMethod(AuthenticateMethod, "Authenticate", func(srv any, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
			return srv.(authHandler).Authenticate(ctx, in)
		}),
	},
	Metadata: "reservd/auth/v1/auth.proto",
}

// AuthServer exposes an Authenticator over gRPC.
type AuthServer struct {
	authenticator Authenticator
	logger        *slog.Logger
}

// AuthServerOption configures an AuthServer.
type AuthServerOption func(*AuthServer)

// WithLogger sets the logger used for unexpected failures.
func WithLogger(logger *slog.Logger) AuthServerOption {
	return func(s *AuthServer) {
		s.logger = logger
	}
}

// NewAuthServer creates an AuthServer.
func NewAuthServer(authenticator Authenticator, opts ...AuthServerOption) *AuthServer {
	s := &AuthServer{
		authenticator: authenticator,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds the Auth service to reg.
func (s *AuthServer) Register(reg grpc.ServiceRegistrar) {
	reg.RegisterService(&AuthServiceDesc, s)
}

// Authenticate handles reservd.auth.v1.Auth/Authenticate. The request carries
// the bearer token in its "token" field. Rejections map to Unauthenticated;
// storage failures map to Internal and are logged here, never returned.
func (s *AuthServer) Authenticate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	identity, err := s.authenticator.Authenticate(ctx, StringField(in, "token"))
	if err != nil {
		if !apperr.Is(err, apperr.CodeRejected) {
			errutil.LogError(ctx, s.logger, "authenticate failed", err)
		}
		return nil, apperr.GRPCStatus(err)
	}
	out, err := IdentityToStruct(identity)
	if err != nil {
		errutil.LogError(ctx, s.logger, "encode identity failed", err)
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

// IdentityToStruct encodes id as an Authenticate response.
func IdentityToStruct(id auth.Identity) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(map[string]any{
		"user_id":    id.UserID.String(),
		"email":      id.Email,
		"created_at": FormatTime(id.CreatedAt),
	})
	if err != nil {
		return nil, oops.Code("RPC_ENCODE_FAILED").Wrap(err)
	}
	return out, nil
}

// IdentityFromStruct decodes an Authenticate response.
func IdentityFromStruct(s *structpb.Struct) (auth.Identity, error) {
	id, err := ulid.Parse(StringField(s, "user_id"))
	if err != nil {
		return auth.Identity{}, oops.Code("RPC_DECODE_FAILED").With("field", "user_id").Wrap(err)
	}
	createdAt, err := TimeField(s, "created_at")
	if err != nil {
		return auth.Identity{}, err
	}
	return auth.Identity{
		UserID:    id,
		Email:     StringField(s, "email"),
		CreatedAt: createdAt,
	}, nil
}

// ServerConfig holds configuration for an inter-service gRPC server.
type ServerConfig struct {
	// TLSConfig enables (m)TLS. If nil, the server accepts plaintext.
	TLSConfig *tls.Config

	// KeepaliveMinTime is the shortest client ping interval tolerated (default: 5s).
	KeepaliveMinTime time.Duration

	// Logger receives per-call access logs (default: slog.Default()).
	Logger *slog.Logger
}

// NewServer creates a gRPC server with keepalive enforcement matching
// ClientConfig's defaults, request logging ahead of any extra interceptors,
// and the standard health service reporting SERVING.
func NewServer(cfg ServerConfig, interceptors ...grpc.UnaryServerInterceptor) *grpc.Server {
	if cfg.KeepaliveMinTime == 0 {
		cfg.KeepaliveMinTime = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	chain := append([]grpc.UnaryServerInterceptor{LoggingUnaryInterceptor(cfg.Logger)}, interceptors...)
	opts := []grpc.ServerOption{
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             cfg.KeepaliveMinTime,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(chain...),
	}
	if cfg.TLSConfig != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(cfg.TLSConfig)))
	}

	srv := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(srv, health.NewServer())
	return srv
}

// LoggingUnaryInterceptor stamps the caller's request id onto the context and
// logs each call with its status code and latency.
func LoggingUnaryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get(RequestIDMetadataKey); len(ids) > 0 && ids[0] != "" {
				ctx = logging.WithRequestID(ctx, ids[0])
			}
		}
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.InfoContext(ctx, "rpc served",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration", time.Since(start),
		)
		return resp, err
	}
}
