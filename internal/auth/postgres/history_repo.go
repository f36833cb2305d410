// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package postgres

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/finlife/identity/internal/auth"
	"github.com/finlife/identity/internal/store"
)

// PasswordHistoryRepository implements auth.PasswordHistoryRepository.
type PasswordHistoryRepository struct {
	pool store.Pool
}

// NewPasswordHistoryRepository creates a new PasswordHistoryRepository.
func NewPasswordHistoryRepository(pool store.Pool) *PasswordHistoryRepository {
	return &PasswordHistoryRepository{pool: pool}
}

// Append adds an entry.
func (r *PasswordHistoryRepository) Append(ctx context.Context, entry *auth.PasswordHistoryEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO password_history (id, principal_id, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`, entry.ID.String(), entry.PrincipalID.String(), entry.PasswordHash, entry.CreatedAt)
	if err != nil {
		return oops.Code("HISTORY_APPEND_FAILED").
			With("operation", "insert password_history").
			With("principal_id", entry.PrincipalID.String()).
			Wrap(err)
	}
	return nil
}

// ListByPrincipal returns a principal's entries in creation order.
func (r *PasswordHistoryRepository) ListByPrincipal(ctx context.Context, principalID ulid.ULID) ([]*auth.PasswordHistoryEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, password_hash, created_at
		FROM password_history
		WHERE principal_id = $1
		ORDER BY created_at, id
	`, principalID.String())
	if err != nil {
		return nil, oops.Code("HISTORY_LIST_FAILED").
			With("operation", "list password_history").
			With("principal_id", principalID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var out []*auth.PasswordHistoryEntry
	for rows.Next() {
		var (
			idStr string
			entry = auth.PasswordHistoryEntry{PrincipalID: principalID}
		)
		if err := rows.Scan(&idStr, &entry.PasswordHash, &entry.CreatedAt); err != nil {
			return nil, oops.Code("HISTORY_LIST_FAILED").With("operation", "scan password_history").Wrap(err)
		}
		if entry.ID, err = ulid.Parse(idStr); err != nil {
			return nil, oops.Code("HISTORY_INVALID_ID").With("id", idStr).Wrap(err)
		}
		out = append(out, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("HISTORY_LIST_FAILED").With("operation", "iterate password_history").Wrap(err)
	}
	return out, nil
}

// Compile-time interface check.
var _ auth.PasswordHistoryRepository = (*PasswordHistoryRepository)(nil)
