// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

//go:build integration

// Package postgrestest starts a migrated PostgreSQL container for
// integration tests.
package postgrestest

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/finlife/identity/internal/store"
)

// Database is a running, migrated database.
type Database struct {
	URL  string
	Pool *pgxpool.Pool

	container *postgres.PostgresContainer
}

// Start runs postgres:16-alpine, applies every migration and opens a pool.
func Start(ctx context.Context) (*Database, error) {
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("identity_test"),
		postgres.WithUsername("identity"),
		postgres.WithPassword("identity"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, oops.With("operation", "start postgres container").Wrap(err)
	}
	db := &Database{container: container}

	db.URL, err = container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		db.Close(ctx)
		return nil, oops.With("operation", "get connection string").Wrap(err)
	}

	m, err := store.NewMigrator(db.URL)
	if err != nil {
		db.Close(ctx)
		return nil, err
	}
	upErr := m.Up()
	_ = m.Close() //nolint:errcheck // the migration result is what matters
	if upErr != nil {
		db.Close(ctx)
		return nil, upErr
	}

	db.Pool, err = store.Connect(ctx, db.URL, store.ConnectOptions{})
	if err != nil {
		db.Close(ctx)
		return nil, err
	}
	return db, nil
}

// Truncate empties every identity table.
func (db *Database) Truncate(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `
		TRUNCATE principals, roles, permissions, role_permissions, principal_roles,
		         password_reset_tokens, password_history, revoked_tokens CASCADE
	`)
	return err
}

// Close closes the pool and terminates the container.
func (db *Database) Close(ctx context.Context) {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.container != nil {
		_ = db.container.Terminate(ctx) //nolint:errcheck // best-effort teardown
	}
}
