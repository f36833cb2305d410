// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

// Package postgres provides PostgreSQL implementations of the access
// repositories.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/finlife/identity/internal/access"
	"github.com/finlife/identity/internal/store"
)

const roleColumns = `
	r.id, r.name, r.created_at, r.updated_at,
	COALESCE((SELECT array_agg(rp.permission_id ORDER BY rp.permission_id)
	          FROM role_permissions rp WHERE rp.role_id = r.id), '{}')`

// RoleRepository implements access.RoleRepository using PostgreSQL.
type RoleRepository struct {
	pool store.Pool
}

// NewRoleRepository creates a new RoleRepository.
func NewRoleRepository(pool store.Pool) *RoleRepository {
	return &RoleRepository{pool: pool}
}

// Create stores a role with its permission set.
func (r *RoleRepository) Create(ctx context.Context, role *access.Role) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return oops.Code("ROLE_CREATE_FAILED").With("name", role.Name).Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.Exec(ctx, `
		INSERT INTO roles (id, name, created_at, updated_at) VALUES ($1, $2, $3, $4)
	`, role.ID.String(), role.Name, role.CreatedAt, role.UpdatedAt)
	if store.IsUniqueViolation(err) {
		return oops.Code("ROLE_NAME_TAKEN").With("name", role.Name).Wrap(access.ErrConflict)
	}
	if err != nil {
		return oops.Code("ROLE_CREATE_FAILED").With("name", role.Name).With("operation", "insert role").Wrap(err)
	}
	if err := insertRolePermissions(ctx, tx, role); err != nil {
		return oops.Code("ROLE_CREATE_FAILED").With("name", role.Name).With("operation", "insert permissions").Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("ROLE_CREATE_FAILED").With("name", role.Name).With("operation", "commit").Wrap(err)
	}
	return nil
}

// GetByID retrieves a role by ID.
func (r *RoleRepository) GetByID(ctx context.Context, id ulid.ULID) (*access.Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles r WHERE r.id = $1`, id.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ROLE_NOT_FOUND").With("id", id.String()).Wrap(access.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ROLE_GET_FAILED").With("id", id.String()).Wrap(err)
	}
	return role, nil
}

// GetByName retrieves a role by its exact name.
func (r *RoleRepository) GetByName(ctx context.Context, name string) (*access.Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles r WHERE r.name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ROLE_NOT_FOUND").With("name", name).Wrap(access.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ROLE_GET_FAILED").With("name", name).Wrap(err)
	}
	return role, nil
}

// ListByIDs returns the roles that exist among ids.
func (r *RoleRepository) ListByIDs(ctx context.Context, ids []ulid.ULID) ([]*access.Role, error) {
	return r.list(ctx, `SELECT `+roleColumns+` FROM roles r WHERE r.id = ANY($1) ORDER BY r.id`, idStrings(ids))
}

// List returns every role ordered by ID.
func (r *RoleRepository) List(ctx context.Context) ([]*access.Role, error) {
	return r.list(ctx, `SELECT `+roleColumns+` FROM roles r ORDER BY r.id`)
}

func (r *RoleRepository) list(ctx context.Context, sql string, args ...any) ([]*access.Role, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, oops.Code("ROLE_LIST_FAILED").Wrap(err)
	}
	defer rows.Close()

	var out []*access.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, oops.Code("ROLE_LIST_FAILED").With("operation", "scan role").Wrap(err)
		}
		out = append(out, role)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("ROLE_LIST_FAILED").With("operation", "iterate roles").Wrap(err)
	}
	return out, nil
}

// Update stores the name and replaces the permission set of role.
func (r *RoleRepository) Update(ctx context.Context, role *access.Role) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return oops.Code("ROLE_UPDATE_FAILED").With("id", role.ID.String()).Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	result, err := tx.Exec(ctx, `
		UPDATE roles SET name = $2, updated_at = $3 WHERE id = $1
	`, role.ID.String(), role.Name, time.Now().UTC())
	if store.IsUniqueViolation(err) {
		return oops.Code("ROLE_NAME_TAKEN").With("name", role.Name).Wrap(access.ErrConflict)
	}
	if err != nil {
		return oops.Code("ROLE_UPDATE_FAILED").With("id", role.ID.String()).With("operation", "update role").Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ROLE_NOT_FOUND").With("id", role.ID.String()).Wrap(access.ErrNotFound)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, role.ID.String()); err != nil {
		return oops.Code("ROLE_UPDATE_FAILED").With("id", role.ID.String()).With("operation", "clear permissions").Wrap(err)
	}
	if err := insertRolePermissions(ctx, tx, role); err != nil {
		return oops.Code("ROLE_UPDATE_FAILED").With("id", role.ID.String()).With("operation", "insert permissions").Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("ROLE_UPDATE_FAILED").With("id", role.ID.String()).With("operation", "commit").Wrap(err)
	}
	return nil
}

// Delete removes the role. Assignments and permission links cascade.
func (r *RoleRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("ROLE_DELETE_FAILED").With("id", id.String()).Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ROLE_NOT_FOUND").With("id", id.String()).Wrap(access.ErrNotFound)
	}
	return nil
}

func insertRolePermissions(ctx context.Context, tx pgx.Tx, role *access.Role) error {
	for _, pid := range role.PermissionIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, role.ID.String(), pid.String()); err != nil {
			return err
		}
	}
	return nil
}

func scanRole(row pgx.Row) (*access.Role, error) {
	var (
		idStr   string
		role    access.Role
		permIDs []string
	)
	if err := row.Scan(&idStr, &role.Name, &role.CreatedAt, &role.UpdatedAt, &permIDs); err != nil {
		return nil, err
	}
	var err error
	if role.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("ROLE_INVALID_ID").With("id", idStr).Wrap(err)
	}
	if role.PermissionIDs, err = parseIDs(permIDs); err != nil {
		return nil, oops.Code("ROLE_INVALID_PERMISSION_ID").With("id", idStr).Wrap(err)
	}
	return &role, nil
}

func idStrings(ids []ulid.ULID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func parseIDs(raw []string) ([]ulid.ULID, error) {
	ids := make([]ulid.ULID, 0, len(raw))
	for _, s := range raw {
		id, err := ulid.Parse(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

var _ access.RoleRepository = (*RoleRepository)(nil)
