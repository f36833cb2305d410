// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/finlife/identity/internal/auth"
	"github.com/finlife/identity/internal/config"
	idgrpc "github.com/finlife/identity/internal/grpc"
	"github.com/finlife/identity/internal/httpapi"
	"github.com/finlife/identity/internal/mail"
	"github.com/finlife/identity/internal/token"
	"github.com/finlife/identity/pkg/errutil"
)

// shutdownTimeout bounds the graceful shutdown of every server.
const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the gRPC introspection service",
		Long: `Start the identity service: the HTTP API, the gRPC token
introspection service, the metrics and health server, the mail dispatcher and
the periodic purge of expired reset tokens and revocations.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServeWithDeps(ctx, cmd, cfg, nil)
		},
	}

	cmd.Flags().String("log-format", "", "log format (json or text)")
	cmd.Flags().String("log-level", "", "log level (debug, info, warn, error)")
	cmd.Flags().String("http-addr", "", "HTTP API listen address")
	cmd.Flags().String("grpc-addr", "", "gRPC introspection listen address")
	cmd.Flags().String("metrics-addr", "", "metrics/health HTTP address")
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL")
	cmd.Flags().String("store", "", "principal and access store (postgres or memory)")
	cmd.Flags().String("admin-email", "", "administrator seeded into the memory store")

	return cmd
}

// runServeWithDeps runs the service until ctx is cancelled or a server fails.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, cfg *config.Config, deps *ServeDeps) error {
	deps = deps.withDefaults()
	logger := slog.Default()

	logger.Info("starting identity service",
		"http_addr", cfg.HTTP.Addr,
		"grpc_addr", cfg.GRPC.Addr,
		"store", cfg.Store,
		"revocation_backend", cfg.Revocation.Backend,
	)

	b, err := openBackend(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	sender, err := deps.MailSenderFactory(cfg.Mail, logger)
	if err != nil {
		return err
	}
	dispatcher, err := mail.NewDispatcher(sender, mail.DispatcherConfig{
		Workers:   cfg.Mail.Workers,
		QueueSize: cfg.Mail.QueueSize,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := dispatcher.Close(closeCtx); err != nil {
			errutil.LogWarn(logger, "mail dispatcher did not drain", err, "operation", "close_dispatcher")
		}
	}()
	notifier, err := mail.NewNotifier(dispatcher, cfg.Reset.BaseURL)
	if err != nil {
		return err
	}

	svc, err := newServices(cfg, b, notifier, logger)
	if err != nil {
		return err
	}

	purgeInterval, err := cfg.PurgeInterval()
	if err != nil {
		return err
	}

	if b.ephemeral {
		if err := seed(ctx, cmd.OutOrStdout(), cfg, b, logger); err != nil {
			return err
		}
	}

	var ready atomic.Bool
	obsServer := deps.ObservabilityServerFactory(cfg.Metrics.Addr, ready.Load,
		auth.RegisterMetrics, token.RegisterMetrics, mail.RegisterMetrics)
	metrics := obsServer.Metrics()

	handler, err := httpapi.NewHandler(httpapi.Deps{
		Auth:    svc.authn,
		Resets:  svc.resets,
		Access:  svc.access,
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := idgrpc.NewGRPCServer(nil,
		grpc.ChainUnaryInterceptor(idgrpc.UnaryInterceptor(metrics, logger)))
	health := idgrpc.Register(grpcServer, idgrpc.NewIntrospectionServer(svc.authn, logger))

	httpListener, err := deps.ListenerFactory("tcp", cfg.HTTP.Addr)
	if err != nil {
		return oops.Code("LISTEN_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}
	grpcListener, err := deps.ListenerFactory("tcp", cfg.GRPC.Addr)
	if err != nil {
		_ = httpListener.Close()
		return oops.Code("LISTEN_FAILED").With("addr", cfg.GRPC.Addr).Wrap(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Metrics.Addr != "" {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			_ = httpListener.Close()
			_ = grpcListener.Close()
			return oops.Code("LISTEN_FAILED").With("addr", cfg.Metrics.Addr).Wrap(err)
		}
		// Monitor observability server errors - cancel context on error
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	errChan := make(chan error, 2)
	go func() {
		if err := httpServer.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- oops.Code("SERVER_FAILED").With("server", "http").Wrap(err)
		}
	}()
	go func() {
		if err := grpcServer.Serve(grpcListener); err != nil {
			errChan <- oops.Code("SERVER_FAILED").With("server", "grpc").Wrap(err)
		}
	}()

	go runPurgeLoop(ctx, purgeInterval, logger, purgeJobs(svc, b)...)

	ready.Store(true)
	cmd.Println("Identity service started")
	logger.Info("identity service ready",
		"http_addr", httpListener.Addr().String(),
		"grpc_addr", grpcListener.Addr().String(),
	)

	// Wait for shutdown signal or error
	var runErr error
	select {
	case runErr = <-errChan:
		errutil.LogError(logger, "server error, initiating shutdown", runErr)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")
	ready.Store(false)
	health.SetServingStatus(idgrpc.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping HTTP server", "error", err)
	}
	grpcServer.GracefulStop()

	if cfg.Metrics.Addr != "" {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return runErr
}

// monitorServerErrors cancels the service when a server reports an error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errChan <-chan error, name string) {
	select {
	case err, ok := <-errChan:
		if ok && err != nil {
			slog.Error("server error, initiating shutdown", "server", name, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
