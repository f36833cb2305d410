// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/finlife/identity/internal/access"
	accesspg "github.com/finlife/identity/internal/access/postgres"
	"github.com/finlife/identity/internal/auth"
	authpg "github.com/finlife/identity/internal/auth/postgres"
	"github.com/finlife/identity/internal/cache"
	"github.com/finlife/identity/internal/config"
	"github.com/finlife/identity/internal/memory"
	"github.com/finlife/identity/internal/token"
)

// backend is the storage selected by configuration.
type backend struct {
	principals  auth.PrincipalRepository
	resetTokens auth.ResetTokenRepository
	history     auth.PasswordHistoryRepository
	roles       access.RoleRepository
	permissions access.PermissionRepository
	assignments access.AssignmentRepository
	revocations token.RevocationStore

	// pruneRevocations is set for denylists that do not expire entries
	// on their own.
	pruneRevocations func(ctx context.Context, now time.Time) (int64, error)
	// ephemeral is true when principals live only in process memory.
	ephemeral bool
	closers   []func()
}

// Close releases connections in reverse order of opening.
func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackend opens the store and revocation backend named by cfg.
func openBackend(ctx context.Context, cfg *config.Config, deps *ServeDeps, logger *slog.Logger) (*backend, error) {
	b := &backend{}
	var mem *memory.Store

	switch cfg.Store {
	case config.BackendMemory:
		mem = memory.NewStore()
		b.principals = mem.Principals()
		b.resetTokens = mem.ResetTokens()
		b.history = mem.History()
		b.roles = mem.Roles()
		b.permissions = mem.Permissions()
		b.assignments = mem.Assignments()
		b.ephemeral = true
		logger.Warn("using the in-memory store, data is lost on exit")
	default:
		pool, err := deps.PoolFactory(ctx, cfg.Database.URL)
		if err != nil {
			return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
		}
		b.closers = append(b.closers, pool.Close)
		b.principals = authpg.NewPrincipalRepository(pool)
		b.resetTokens = authpg.NewResetTokenRepository(pool)
		b.history = authpg.NewPasswordHistoryRepository(pool)
		b.roles = accesspg.NewRoleRepository(pool)
		b.permissions = accesspg.NewPermissionRepository(pool)
		b.assignments = accesspg.NewAssignmentRepository(pool)

		if cfg.Revocation.Backend == config.BackendPostgres {
			revocations := authpg.NewRevocationRepository(pool)
			b.revocations = revocations
			b.pruneRevocations = revocations.DeleteExpired
		}
	}

	switch cfg.Revocation.Backend {
	case config.BackendRedis:
		client, err := deps.RedisFactory(cfg.Redis.URL)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, func() {
			if err := client.Close(); err != nil {
				logger.Debug("error closing redis client", "error", err)
			}
		})
		revocations := cache.NewRevocationStore(client)
		if err := revocations.Ping(ctx); err != nil {
			b.Close()
			return nil, oops.Code("REDIS_CONNECT_FAILED").With("operation", "ping redis").Wrap(err)
		}
		b.revocations = revocations
	case config.BackendMemory:
		if mem == nil {
			mem = memory.NewStore()
		}
		b.revocations = mem.Revocations()
	}

	return b, nil
}
