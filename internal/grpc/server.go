// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

// Package grpc exposes bearer token introspection to collaborating services.
//
// The service uses protobuf well-known types for its messages, so callers
// need no generated stubs:
//
//	identity.v1.Introspection/Validate   google.protobuf.StringValue -> google.protobuf.Struct
//	identity.v1.Introspection/IsRevoked  google.protobuf.StringValue -> google.protobuf.BoolValue
package grpc

import (
	"context"
	"crypto/tls"
	"log/slog"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/finlife/identity/internal/auth"
	"github.com/finlife/identity/internal/token"
	"github.com/finlife/identity/pkg/errutil"
)

// ServiceName is the fully qualified introspection service name.
const ServiceName = "identity.v1.Introspection"

// ErrorDomain is the ErrorInfo domain attached to failed calls.
const ErrorDomain = "identity.finlife"

// Full method names.
const (
	ValidateMethod  = "/" + ServiceName + "/Validate"
	IsRevokedMethod = "/" + ServiceName + "/IsRevoked"
)

// Claim keys of the Validate response.
const (
	ClaimSubject   = "subject"
	ClaimTokenID   = "token_id"
	ClaimIssuer    = "issuer"
	ClaimIssuedAt  = "issued_at"
	ClaimExpiresAt = "expires_at"
)

// TokenChecker validates bearer tokens.
type TokenChecker interface {
	Validate(ctx context.Context, raw string) (token.Claims, error)
	IsRevoked(ctx context.Context, raw string) (bool, error)
}

// IntrospectionService is the server API of the introspection service.
type IntrospectionService interface {
	Validate(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
	IsRevoked(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
}

// IntrospectionServer implements IntrospectionService on a TokenChecker.
type IntrospectionServer struct {
	checker TokenChecker
	logger  *slog.Logger
}

// NewIntrospectionServer creates an IntrospectionServer.
func NewIntrospectionServer(checker TokenChecker, logger *slog.Logger) *IntrospectionServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &IntrospectionServer{checker: checker, logger: logger}
}

// Validate returns the claims of a valid, unrevoked token. Invalid tokens
// fail with Unauthenticated and an ErrorInfo whose reason is the error code.
func (s *IntrospectionServer) Validate(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	raw := req.GetValue()
	if raw == "" {
		return nil, tokenRequired()
	}
	claims, err := s.checker.Validate(ctx, raw)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	out, err := structpb.NewStruct(map[string]any{
		ClaimSubject:   claims.Subject,
		ClaimTokenID:   claims.ID,
		ClaimIssuer:    claims.Issuer,
		ClaimIssuedAt:  claims.IssuedAt.UTC().Format(time.RFC3339),
		ClaimExpiresAt: claims.ExpiresAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return out, nil
}

// IsRevoked reports whether the token has been revoked.
func (s *IntrospectionServer) IsRevoked(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	raw := req.GetValue()
	if raw == "" {
		return nil, tokenRequired()
	}
	revoked, err := s.checker.IsRevoked(ctx, raw)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return wrapperspb.Bool(revoked), nil
}

func (s *IntrospectionServer) toStatus(ctx context.Context, err error) error {
	code := errutil.Code(err)
	var grpcCode codes.Code
	msg := err.Error()
	switch code {
	case token.CodeMalformed, token.CodeExpired, token.CodeRevoked:
		grpcCode = codes.Unauthenticated
	default:
		grpcCode = codes.Internal
		msg = "token check failed"
		errutil.LogErrorContext(ctx, s.logger, "introspection failed", err)
	}
	return withReason(status.New(grpcCode, msg), code)
}

func tokenRequired() error {
	return withReason(status.New(codes.InvalidArgument, "bearer token is required"), auth.CodeTokenRequired)
}

func withReason(st *status.Status, reason string) error {
	if reason == "" {
		return st.Err()
	}
	detailed, err := st.WithDetails(&errdetails.ErrorInfo{Reason: reason, Domain: ErrorDomain})
	if err != nil {
		return st.Err()
	}
	return detailed.Err()
}

func validateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IntrospectionService).Validate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ValidateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(IntrospectionService).Validate(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func isRevokedHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IntrospectionService).IsRevoked(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: IsRevokedMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(IntrospectionService).IsRevoked(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc describes the introspection service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IntrospectionService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Validate", Handler: validateHandler},
		{MethodName: "IsRevoked", Handler: isRevokedHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "identity/v1/introspection.proto",
}

// Register adds the introspection and health services to s. The returned
// health server reports the introspection service as SERVING; callers flip
// it on shutdown.
func Register(s *grpc.Server, srv IntrospectionService) *health.Server {
	s.RegisterService(&ServiceDesc, srv)
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return hs
}

// RequestRecorder counts served calls.
type RequestRecorder interface {
	RecordGRPCRequest(method, code string)
}

// UnaryInterceptor logs and counts every call. recorder may be nil.
func UnaryInterceptor(recorder RequestRecorder, logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		if recorder != nil {
			recorder.RecordGRPCRequest(info.FullMethod, code.String())
		}
		logger.DebugContext(ctx, "grpc request completed",
			"method", info.FullMethod,
			"code", code.String(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}

// NewGRPCServer creates a gRPC server. A nil tlsConfig serves plaintext,
// for deployments where a mesh sidecar terminates TLS.
func NewGRPCServer(tlsConfig *tls.Config, opts ...grpc.ServerOption) *grpc.Server {
	if tlsConfig != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsConfig)))
	}
	return grpc.NewServer(opts...)
}
