// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package postgres

import (
	"context"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/finlife/identity/internal/access"
	"github.com/finlife/identity/internal/auth"
	"github.com/finlife/identity/internal/store"
)

const countHoldersSQL = `
	SELECT count(*)
	FROM principal_roles pr
	JOIN roles r ON r.id = pr.role_id
	WHERE r.name = $1`

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AssignmentRepository implements access.AssignmentRepository. Role locks
// are transaction-scoped advisory locks keyed by role name.
type AssignmentRepository struct {
	pool store.Pool
}

// NewAssignmentRepository creates a new AssignmentRepository.
func NewAssignmentRepository(pool store.Pool) *AssignmentRepository {
	return &AssignmentRepository{pool: pool}
}

// CountHolders counts the principals holding roleName.
func (r *AssignmentRepository) CountHolders(ctx context.Context, roleName string) (int, error) {
	return countHolders(ctx, r.pool, roleName)
}

// WithRoleLock opens a transaction, takes an advisory lock per role name in
// sorted order and runs fn inside it. The locks are released at commit or
// rollback.
func (r *AssignmentRepository) WithRoleLock(ctx context.Context, roleNames []string, fn func(ctx context.Context, tx access.AssignmentTx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return oops.Code("ASSIGNMENT_LOCK_FAILED").With("operation", "begin").Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	names := slices.Compact(slices.Sorted(slices.Values(roleNames)))
	for _, name := range names {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, name); err != nil {
			return oops.Code("ASSIGNMENT_LOCK_FAILED").With("role", name).Wrap(err)
		}
	}

	if err := fn(ctx, &assignmentTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("ASSIGNMENT_LOCK_FAILED").With("operation", "commit").Wrap(err)
	}
	return nil
}

// assignmentTx implements access.AssignmentTx on an open transaction.
type assignmentTx struct {
	tx pgx.Tx
}

func (a *assignmentTx) CountHolders(ctx context.Context, roleName string) (int, error) {
	return countHolders(ctx, a.tx, roleName)
}

func (a *assignmentTx) SetRoles(ctx context.Context, principalID ulid.ULID, roleIDs []ulid.ULID) error {
	if err := a.touch(ctx, principalID, `UPDATE principals SET updated_at = now() WHERE id = $1`); err != nil {
		return err
	}
	if _, err := a.tx.Exec(ctx, `DELETE FROM principal_roles WHERE principal_id = $1`, principalID.String()); err != nil {
		return oops.Code("ASSIGNMENT_SET_ROLES_FAILED").With("principal_id", principalID.String()).Wrap(err)
	}
	for _, roleID := range roleIDs {
		if _, err := a.tx.Exec(ctx, `
			INSERT INTO principal_roles (principal_id, role_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, principalID.String(), roleID.String()); err != nil {
			if store.IsForeignKeyViolation(err) {
				return oops.Code("ROLE_NOT_FOUND").With("id", roleID.String()).Wrap(access.ErrNotFound)
			}
			return oops.Code("ASSIGNMENT_SET_ROLES_FAILED").With("principal_id", principalID.String()).Wrap(err)
		}
	}
	return nil
}

func (a *assignmentTx) DisablePrincipal(ctx context.Context, principalID ulid.ULID) error {
	return a.touch(ctx, principalID, `UPDATE principals SET enabled = FALSE, updated_at = now() WHERE id = $1`)
}

// DeletePrincipal removes the principal. Role assignments, password history
// and reset tokens cascade.
func (a *assignmentTx) DeletePrincipal(ctx context.Context, principalID ulid.ULID) error {
	return a.touch(ctx, principalID, `DELETE FROM principals WHERE id = $1`)
}

func (a *assignmentTx) touch(ctx context.Context, principalID ulid.ULID, sql string) error {
	result, err := a.tx.Exec(ctx, sql, principalID.String())
	if err != nil {
		return oops.Code("ASSIGNMENT_UPDATE_FAILED").With("principal_id", principalID.String()).Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("PRINCIPAL_NOT_FOUND").With("id", principalID.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

func countHolders(ctx context.Context, q querier, roleName string) (int, error) {
	var n int
	if err := q.QueryRow(ctx, countHoldersSQL, roleName).Scan(&n); err != nil {
		return 0, oops.Code("ASSIGNMENT_COUNT_FAILED").With("role", roleName).Wrap(err)
	}
	return n, nil
}

var (
	_ access.AssignmentRepository = (*AssignmentRepository)(nil)
	_ access.AssignmentTx         = (*assignmentTx)(nil)
)
