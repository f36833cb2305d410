// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package postgres

import (
	"context"
	"time"

	"github.com/samber/oops"

	"github.com/finlife/identity/internal/store"
	"github.com/finlife/identity/internal/token"
)

// RevocationRepository implements token.RevocationStore on the
// revoked_tokens table.
type RevocationRepository struct {
	pool store.Pool
}

// NewRevocationRepository creates a new RevocationRepository.
func NewRevocationRepository(pool store.Pool) *RevocationRepository {
	return &RevocationRepository{pool: pool}
}

// Revoke records the token digest. A second revocation keeps the first row.
func (r *RevocationRepository) Revoke(ctx context.Context, raw string, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO revoked_tokens (token_hash, revoked_at, expires_at)
		VALUES ($1, now(), $2)
		ON CONFLICT (token_hash) DO NOTHING
	`, token.Hash(raw), expiresAt)
	if err != nil {
		return oops.Code("REVOCATION_INSERT_FAILED").
			With("operation", "insert revoked token").
			Wrap(err)
	}
	return nil
}

// IsRevoked reports whether raw has been revoked.
func (r *RevocationRepository) IsRevoked(ctx context.Context, raw string) (bool, error) {
	var revoked bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE token_hash = $1)
	`, token.Hash(raw)).Scan(&revoked)
	if err != nil {
		return false, oops.Code("REVOCATION_LOOKUP_FAILED").
			With("operation", "lookup revoked token").
			Wrap(err)
	}
	return revoked, nil
}

// DeleteExpired prunes entries whose token expired before now. A pruned
// token fails validation as expired, so it stays unusable.
func (r *RevocationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM revoked_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return 0, oops.Code("REVOCATION_PRUNE_FAILED").
			With("operation", "delete expired revocations").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// Compile-time interface check.
var _ token.RevocationStore = (*RevocationRepository)(nil)
