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

	"github.com/finlife/identity/internal/access"
	"github.com/finlife/identity/internal/store"
)

// PermissionRepository implements access.PermissionRepository using PostgreSQL.
type PermissionRepository struct {
	pool store.Pool
}

// NewPermissionRepository creates a new PermissionRepository.
func NewPermissionRepository(pool store.Pool) *PermissionRepository {
	return &PermissionRepository{pool: pool}
}

// Create stores a permission.
func (r *PermissionRepository) Create(ctx context.Context, p *access.Permission) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO permissions (id, name, created_at, updated_at) VALUES ($1, $2, $3, $4)
	`, p.ID.String(), p.Name, p.CreatedAt, p.UpdatedAt)
	if store.IsUniqueViolation(err) {
		return oops.Code("PERMISSION_NAME_TAKEN").With("name", p.Name).Wrap(access.ErrConflict)
	}
	if err != nil {
		return oops.Code("PERMISSION_CREATE_FAILED").With("name", p.Name).Wrap(err)
	}
	return nil
}

// GetByID retrieves a permission by ID.
func (r *PermissionRepository) GetByID(ctx context.Context, id ulid.ULID) (*access.Permission, error) {
	p, err := scanPermission(r.pool.QueryRow(ctx, `
		SELECT id, name, created_at, updated_at FROM permissions WHERE id = $1
	`, id.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("PERMISSION_NOT_FOUND").With("id", id.String()).Wrap(access.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("PERMISSION_GET_FAILED").With("id", id.String()).Wrap(err)
	}
	return p, nil
}

// GetByName retrieves a permission by name.
func (r *PermissionRepository) GetByName(ctx context.Context, name string) (*access.Permission, error) {
	p, err := scanPermission(r.pool.QueryRow(ctx, `
		SELECT id, name, created_at, updated_at FROM permissions WHERE name = $1
	`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("PERMISSION_NOT_FOUND").With("name", name).Wrap(access.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("PERMISSION_GET_FAILED").With("name", name).Wrap(err)
	}
	return p, nil
}

// ListByIDs returns the permissions that exist among ids.
func (r *PermissionRepository) ListByIDs(ctx context.Context, ids []ulid.ULID) ([]*access.Permission, error) {
	return r.list(ctx, `
		SELECT id, name, created_at, updated_at FROM permissions WHERE id = ANY($1) ORDER BY id
	`, idStrings(ids))
}

// List returns every permission ordered by ID.
func (r *PermissionRepository) List(ctx context.Context) ([]*access.Permission, error) {
	return r.list(ctx, `SELECT id, name, created_at, updated_at FROM permissions ORDER BY id`)
}

func (r *PermissionRepository) list(ctx context.Context, sql string, args ...any) ([]*access.Permission, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, oops.Code("PERMISSION_LIST_FAILED").Wrap(err)
	}
	defer rows.Close()

	var out []*access.Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, oops.Code("PERMISSION_LIST_FAILED").With("operation", "scan permission").Wrap(err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("PERMISSION_LIST_FAILED").With("operation", "iterate permissions").Wrap(err)
	}
	return out, nil
}

// Update renames a permission.
func (r *PermissionRepository) Update(ctx context.Context, p *access.Permission) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE permissions SET name = $2, updated_at = $3 WHERE id = $1
	`, p.ID.String(), p.Name, time.Now().UTC())
	if store.IsUniqueViolation(err) {
		return oops.Code("PERMISSION_NAME_TAKEN").With("name", p.Name).Wrap(access.ErrConflict)
	}
	if err != nil {
		return oops.Code("PERMISSION_UPDATE_FAILED").With("id", p.ID.String()).Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("PERMISSION_NOT_FOUND").With("id", p.ID.String()).Wrap(access.ErrNotFound)
	}
	return nil
}

// Delete removes the permission. Role links cascade.
func (r *PermissionRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("PERMISSION_DELETE_FAILED").With("id", id.String()).Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("PERMISSION_NOT_FOUND").With("id", id.String()).Wrap(access.ErrNotFound)
	}
	return nil
}

func scanPermission(row pgx.Row) (*access.Permission, error) {
	var (
		idStr string
		p     access.Permission
	)
	if err := row.Scan(&idStr, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if p.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("PERMISSION_INVALID_ID").With("id", idStr).Wrap(err)
	}
	return &p, nil
}

var _ access.PermissionRepository = (*PermissionRepository)(nil)
