// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/finlife/identity/internal/config"
	"github.com/finlife/identity/internal/mail"
	"github.com/finlife/identity/internal/observability"
	"github.com/finlife/identity/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// PoolFactory opens the PostgreSQL pool.
	// Default: store.Connect
	PoolFactory func(ctx context.Context, url string) (*pgxpool.Pool, error)

	// RedisFactory opens the client of the redis revocation backend.
	// Default: redis.ParseURL and redis.NewClient
	RedisFactory func(url string) (redis.UniversalClient, error)

	// MailSenderFactory creates the outbound mail transport.
	// Default: an SMTP sender, or a log-only sender when mail.host is empty
	MailSenderFactory func(cfg config.MailConfig, logger *slog.Logger) (mail.Sender, error)

	// ObservabilityServerFactory creates the metrics and health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker, registrations ...observability.Registration) ObservabilityServer

	// ListenerFactory creates the HTTP and gRPC listeners.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// withDefaults returns a copy of deps with every nil factory set.
func (deps *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if deps != nil {
		out = *deps
	}
	if out.PoolFactory == nil {
		out.PoolFactory = func(ctx context.Context, url string) (*pgxpool.Pool, error) {
			return store.Connect(ctx, url, store.ConnectOptions{})
		}
	}
	if out.RedisFactory == nil {
		out.RedisFactory = newRedisClient
	}
	if out.MailSenderFactory == nil {
		out.MailSenderFactory = newMailSender
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker, registrations ...observability.Registration) ObservabilityServer {
			return observability.NewServer(addr, ready, registrations...)
		}
	}
	if out.ListenerFactory == nil {
		out.ListenerFactory = net.Listen
	}
	return &out
}

func newRedisClient(url string) (redis.UniversalClient, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("key", "redis.url").Wrap(err)
	}
	return redis.NewClient(opts), nil
}

func newMailSender(cfg config.MailConfig, logger *slog.Logger) (mail.Sender, error) {
	if cfg.Host == "" {
		logger.Warn("mail.host is not set, emails are logged and not delivered")
		return mail.NewLogSender(logger), nil
	}
	sender, err := mail.NewSMTPSender(mail.SMTPConfig{
		Host:       cfg.Host,
		Port:       cfg.Port,
		Username:   cfg.Username,
		Password:   cfg.Password,
		From:       cfg.From,
		ClientName: cfg.ClientName,
	})
	if err != nil {
		return nil, err
	}
	return sender, nil
}
