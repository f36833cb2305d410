// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package grpc

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/samber/oops"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/finlife/identity/internal/token"
)

// Client calls the introspection service.
type Client struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
}

// ClientConfig holds configuration for the gRPC client.
type ClientConfig struct {
	// Address is the target gRPC server address (e.g., "localhost:9090")
	Address string

	// TLSConfig for the connection. If nil, insecure connection is used.
	TLSConfig *tls.Config

	// KeepaliveTime is how often to ping the server (default: 10s)
	KeepaliveTime time.Duration

	// KeepaliveTimeout is how long to wait for ping response (default: 5s)
	KeepaliveTimeout time.Duration

	// DialOptions are appended after the defaults.
	DialOptions []grpc.DialOption
}

// NewClient creates a client for the introspection service.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Address == "" {
		return nil, oops.Code("GRPC_CLIENT_CONFIG_INVALID").Errorf("address is required")
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
	}
	if cfg.TLSConfig != nil {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(cfg.TLSConfig)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	opts = append(opts, cfg.DialOptions...)

	conn, err := grpc.NewClient(cfg.Address, opts...)
	if err != nil {
		return nil, oops.Code("GRPC_CLIENT_CONNECT_FAILED").With("address", cfg.Address).Wrap(err)
	}
	return &Client{conn: conn, health: healthpb.NewHealthClient(conn)}, nil
}

// Close closes the underlying gRPC connection.
func (c *Client) Close() error {
	if err := c.conn.Close(); err != nil {
		return oops.Code("GRPC_CLIENT_CLOSE_FAILED").Wrap(err)
	}
	return nil
}

// Validate returns the claims of raw. Rejected tokens come back as the
// token package sentinels (ErrMalformed, ErrExpired, ErrRevoked) so callers
// can match them with errors.Is.
func (c *Client) Validate(ctx context.Context, raw string) (token.Claims, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, ValidateMethod, wrapperspb.String(raw), out); err != nil {
		return token.Claims{}, fromStatus(err)
	}
	fields := out.AsMap()
	claims := token.Claims{
		Subject: stringField(fields, ClaimSubject),
		ID:      stringField(fields, ClaimTokenID),
		Issuer:  stringField(fields, ClaimIssuer),
	}
	var err error
	if claims.IssuedAt, err = time.Parse(time.RFC3339, stringField(fields, ClaimIssuedAt)); err != nil {
		return token.Claims{}, oops.Code("GRPC_RESPONSE_INVALID").With("claim", ClaimIssuedAt).Wrap(err)
	}
	if claims.ExpiresAt, err = time.Parse(time.RFC3339, stringField(fields, ClaimExpiresAt)); err != nil {
		return token.Claims{}, oops.Code("GRPC_RESPONSE_INVALID").With("claim", ClaimExpiresAt).Wrap(err)
	}
	return claims, nil
}

// IsRevoked reports whether raw has been revoked.
func (c *Client) IsRevoked(ctx context.Context, raw string) (bool, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.conn.Invoke(ctx, IsRevokedMethod, wrapperspb.String(raw), out); err != nil {
		return false, fromStatus(err)
	}
	return out.GetValue(), nil
}

// Serving reports whether the introspection service is SERVING.
func (c *Client) Serving(ctx context.Context) (bool, error) {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return false, oops.Code("GRPC_HEALTH_CHECK_FAILED").Wrap(err)
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

var sentinelByReason = map[string]error{
	token.CodeMalformed: token.ErrMalformed,
	token.CodeExpired:   token.ErrExpired,
	token.CodeRevoked:   token.ErrRevoked,
}

func fromStatus(err error) error {
	st := status.Convert(err)
	reason := "GRPC_CALL_FAILED"
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.GetDomain() == ErrorDomain {
			reason = info.GetReason()
		}
	}
	builder := oops.Code(reason).With("grpc_code", st.Code().String())
	if sentinel, ok := sentinelByReason[reason]; ok {
		return builder.Wrapf(sentinel, "%s", st.Message())
	}
	return builder.Wrap(err)
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}
