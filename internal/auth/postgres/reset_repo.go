// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/finlife/identity/internal/auth"
	"github.com/finlife/identity/internal/store"
)

// ResetTokenRepository implements auth.ResetTokenRepository using PostgreSQL.
type ResetTokenRepository struct {
	pool store.Pool
}

// NewResetTokenRepository creates a new ResetTokenRepository.
func NewResetTokenRepository(pool store.Pool) *ResetTokenRepository {
	return &ResetTokenRepository{pool: pool}
}

// Create stores a new reset token.
func (r *ResetTokenRepository) Create(ctx context.Context, token *auth.ResetToken) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO password_reset_tokens (id, principal_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, token.ID.String(), token.PrincipalID.String(), token.TokenHash, token.ExpiresAt, token.CreatedAt)
	if err != nil {
		return oops.Code("RESET_CREATE_FAILED").
			With("operation", "insert password_reset_token").
			With("principal_id", token.PrincipalID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a reset token by its hash.
func (r *ResetTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.ResetToken, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, principal_id, token_hash, expires_at, created_at
		FROM password_reset_tokens
		WHERE token_hash = $1
	`, tokenHash)

	token, err := scanResetToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("RESET_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("RESET_GET_FAILED").
			With("operation", "get reset token by hash").
			Wrap(err)
	}
	return token, nil
}

// DeleteByPrincipal removes every reset token of a principal.
func (r *ResetTokenRepository) DeleteByPrincipal(ctx context.Context, principalID ulid.ULID) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM password_reset_tokens WHERE principal_id = $1
	`, principalID.String())
	if err != nil {
		return oops.Code("RESET_DELETE_FAILED").
			With("operation", "delete reset tokens").
			With("principal_id", principalID.String()).
			Wrap(err)
	}
	return nil
}

// DeleteExpired removes tokens that expired before now.
func (r *ResetTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM password_reset_tokens WHERE expires_at < $1
	`, now)
	if err != nil {
		return 0, oops.Code("RESET_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired reset tokens").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

func scanResetToken(row pgx.Row) (*auth.ResetToken, error) {
	var (
		idStr, principalStr string
		token               auth.ResetToken
	)
	if err := row.Scan(&idStr, &principalStr, &token.TokenHash, &token.ExpiresAt, &token.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with context-specific info
		}
		return nil, oops.Code("RESET_SCAN_FAILED").With("operation", "scan reset token").Wrap(err)
	}

	var err error
	if token.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("RESET_INVALID_ID").With("id", idStr).Wrap(err)
	}
	if token.PrincipalID, err = ulid.Parse(principalStr); err != nil {
		return nil, oops.Code("RESET_INVALID_PRINCIPAL_ID").With("principal_id", principalStr).Wrap(err)
	}
	return &token, nil
}

// Compile-time interface check.
var _ auth.ResetTokenRepository = (*ResetTokenRepository)(nil)
