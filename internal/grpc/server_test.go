// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package grpc

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/reservd/reservd/internal/apperr"
	"github.com/reservd/reservd/internal/auth"
	"github.com/reservd/reservd/internal/logging"
	"github.com/reservd/reservd/pkg/errutil"
)

type stubAuthenticator struct {
	identity auth.Identity
	err      error
	gotToken string
	calls    int
}

func (s *stubAuthenticator) Authenticate(_ context.Context, tok string) (auth.Identity, error) {
	s.calls++
	s.gotToken = tok
	return s.identity, s.err
}

// serve starts srv on an in-memory listener and returns a dial option for it
// plus a stop function that tears the server down.
func serve(t *testing.T, srv *grpc.Server) (grpc.DialOption, func()) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(lis)
	}()
	dialer := grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
	return dialer, func() {
		srv.Stop()
		<-done
	}
}

func startAuth(t *testing.T, a Authenticator) (*Client, func()) {
	t.Helper()
	srv := NewServer(ServerConfig{})
	NewAuthServer(a).Register(srv)
	dialer, stop := serve(t, srv)

	client, err := NewClient(ClientConfig{
		Address:     "passthrough:///bufnet",
		DialOptions: []grpc.DialOption{dialer},
	})
	require.NoError(t, err)

	return client, func() {
		_ = client.Close()
		stop()
	}
}

func testIdentity() auth.Identity {
	return auth.Identity{
		UserID:    ulid.Make(),
		Email:     "a@x.com",
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestAuthServer_AuthenticateReturnsIdentity(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	want := testIdentity()
	stub := &stubAuthenticator{identity: want}
	client, stop := startAuth(t, stub)
	defer stop()

	got, err := client.Authenticate(context.Background(), "tok-123")
	require.NoError(t, err)
	assert.Equal(t, want.UserID, got.UserID)
	assert.Equal(t, want.Email, got.Email)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, "tok-123", stub.gotToken)
}

func TestAuthServer_RejectionIsUnauthenticated(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	stub := &stubAuthenticator{err: oops.Code(apperr.CodeRejected).Errorf("token expired")}
	client, stop := startAuth(t, stub)
	defer stop()

	_, err := client.Authenticate(context.Background(), "expired")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, apperr.CodeRejected)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestAuthServer_StorageFailureHidesDetail(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	stub := &stubAuthenticator{err: errors.New("pq: connection reset by peer")}
	client, stop := startAuth(t, stub)
	defer stop()

	_, err := client.Authenticate(context.Background(), "tok")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, apperr.CodeChannelUnavailable)

	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.Internal, st.Code())
	assert.Contains(t, st.Message(), "internal error")
	assert.NotContains(t, st.Message(), "connection reset")
}

func TestClient_ServerGoneIsChannelUnavailable(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	stub := &stubAuthenticator{identity: testIdentity()}
	client, stop := startAuth(t, stub)
	defer func() { _ = client.Close() }()
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := client.Authenticate(ctx, "tok")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, apperr.CodeChannelUnavailable)
	assert.Equal(t, 0, stub.calls)
}

func TestNewServer_ServesHealth(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dialer, stop := serve(t, NewServer(ServerConfig{}))
	defer stop()

	conn, err := Dial(ClientConfig{Address: "passthrough:///bufnet", DialOptions: []grpc.DialOption{dialer}})
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestDial_RequiresAddress(t *testing.T) {
	_, err := Dial(ClientConfig{})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, apperr.CodeConfigInvalid)
}

func TestDial_ForwardsRequestID(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	seen := make(chan string, 1)
	srv := NewServer(ServerConfig{}, func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		seen <- logging.RequestID(ctx)
		return handler(ctx, req)
	})
	NewAuthServer(&stubAuthenticator{identity: testIdentity()}).Register(srv)
	dialer, stop := serve(t, srv)
	defer stop()

	conn, err := Dial(ClientConfig{Address: "passthrough:///bufnet", DialOptions: []grpc.DialOption{dialer}})
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	ctx := logging.WithRequestID(context.Background(), "req-42")
	_, err = InvokeStruct(ctx, conn, AuthenticateMethod, map[string]any{"token": "t"})
	require.NoError(t, err)
	assert.Equal(t, "req-42", <-seen)
}

func TestLoggingUnaryInterceptor_ReadsIncomingRequestID(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(RequestIDMetadataKey, "abc"))
	interceptor := LoggingUnaryInterceptor(logging.Setup(logging.Options{Service: "test", Writer: io.Discard}))

	var got string
	_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/x.Y/Z"}, func(ctx context.Context, _ any) (any, error) {
		got = logging.RequestID(ctx)
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "abc", got)
}

func TestIdentityStructRoundTrip(t *testing.T) {
	want := testIdentity()
	s, err := IdentityToStruct(want)
	require.NoError(t, err)

	got, err := IdentityFromStruct(s)
	require.NoError(t, err)
	assert.Equal(t, want.UserID, got.UserID)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
}

func TestIdentityFromStruct_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]any
	}{
		{"missing user id", map[string]any{"email": "a@x.com", "created_at": "2026-01-01T00:00:00Z"}},
		{"bad user id", map[string]any{"user_id": "nope", "created_at": "2026-01-01T00:00:00Z"}},
		{"missing created_at", map[string]any{"user_id": ulid.Make().String()}},
		{"bad created_at", map[string]any{"user_id": ulid.Make().String(), "created_at": "yesterday"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := structpb.NewStruct(tt.fields)
			require.NoError(t, err)
			_, err = IdentityFromStruct(s)
			errutil.AssertErrorCode(t, err, "RPC_DECODE_FAILED")
		})
	}
}

func TestNumberField(t *testing.T) {
	s, err := structpb.NewStruct(map[string]any{"amount": 1250.0, "name": "x"})
	require.NoError(t, err)

	n, ok := NumberField(s, "amount")
	assert.True(t, ok)
	assert.InDelta(t, 1250.0, n, 0)

	_, ok = NumberField(s, "name")
	assert.False(t, ok)
	_, ok = NumberField(nil, "amount")
	assert.False(t, ok)
}
