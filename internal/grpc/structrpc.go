// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

// Package grpc provides the inter-service gRPC channel for reservd: the
// Authenticate service exposed by the auth process, the client peers use to
// reach it, and shared server and dial construction.
//
// Services exchange google.protobuf.Struct messages and are registered with
// hand-written service descriptors.
package grpc

import (
	"context"
	"time"

	"github.com/samber/oops"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// StructCall serves one unary method whose request and response are Structs.
type StructCall func(srv any, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

// StructMethod builds the method descriptor for a Struct-typed unary method.
// fullMethod is the "/package.Service/Method" name passed to interceptors.
func StructMethod(fullMethod, name string, call StructCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv, ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// InvokeStruct calls a Struct-typed unary method on conn.
func InvokeStruct(ctx context.Context, conn grpc.ClientConnInterface, fullMethod string, fields map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, oops.Code("RPC_ENCODE_FAILED").With("method", fullMethod).Wrap(err)
	}
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, fullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// StringField returns the string value of key in s, or "" when it is absent
// or not a string.
func StringField(s *structpb.Struct, key string) string {
	if s == nil {
		return ""
	}
	v, ok := s.GetFields()[key]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

// NumberField returns the numeric value of key in s.
func NumberField(s *structpb.Struct, key string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	v, ok := s.GetFields()[key]
	if !ok {
		return 0, false
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, false
	}
	return n.NumberValue, true
}

// TimeField parses key in s as an RFC 3339 timestamp.
func TimeField(s *structpb.Struct, key string) (time.Time, error) {
	raw := StringField(s, key)
	if raw == "" {
		return time.Time{}, oops.Code("RPC_DECODE_FAILED").With("field", key).Errorf("missing timestamp field")
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, oops.Code("RPC_DECODE_FAILED").With("field", key).Wrap(err)
	}
	return t, nil
}

// FormatTime renders t the way TimeField expects it.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
