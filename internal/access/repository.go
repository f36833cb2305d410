// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package access

import (
	"context"

	"github.com/oklog/ulid/v2"
)

// RoleRepository manages role persistence.
type RoleRepository interface {
	// Create stores a role. Returns ErrConflict if the name is taken.
	Create(ctx context.Context, r *Role) error
	// GetByID returns ErrNotFound if absent.
	GetByID(ctx context.Context, id ulid.ULID) (*Role, error)
	// GetByName returns ErrNotFound if absent.
	GetByName(ctx context.Context, name string) (*Role, error)
	// ListByIDs returns the roles that exist among ids.
	ListByIDs(ctx context.Context, ids []ulid.ULID) ([]*Role, error)
	List(ctx context.Context) ([]*Role, error)
	// Update stores the name and permission set of r.
	Update(ctx context.Context, r *Role) error
	Delete(ctx context.Context, id ulid.ULID) error
}

// PermissionRepository manages permission persistence.
type PermissionRepository interface {
	// Create stores a permission. Returns ErrConflict if the name is taken.
	Create(ctx context.Context, p *Permission) error
	GetByID(ctx context.Context, id ulid.ULID) (*Permission, error)
	GetByName(ctx context.Context, name string) (*Permission, error)
	// ListByIDs returns the permissions that exist among ids.
	ListByIDs(ctx context.Context, ids []ulid.ULID) ([]*Permission, error)
	List(ctx context.Context) ([]*Permission, error)
	Update(ctx context.Context, p *Permission) error
	Delete(ctx context.Context, id ulid.ULID) error
}

// AssignmentTx applies role assignment changes inside a unit of work in
// which holder counts are stable.
type AssignmentTx interface {
	HolderCounter
	// SetRoles replaces the roles of a principal.
	SetRoles(ctx context.Context, principalID ulid.ULID, roleIDs []ulid.ULID) error
	// DisablePrincipal sets enabled=false.
	DisablePrincipal(ctx context.Context, principalID ulid.ULID) error
	// DeletePrincipal removes the principal with its role assignments,
	// password history and reset tokens.
	DeletePrincipal(ctx context.Context, principalID ulid.ULID) error
}

// AssignmentRepository serializes changes to role holders.
type AssignmentRepository interface {
	HolderCounter
	// WithRoleLock runs fn while holding an exclusive lock on each role in
	// roleNames. Concurrent calls locking any of the same roles run one at a
	// time, so a holder count read in fn stays accurate until fn returns.
	WithRoleLock(ctx context.Context, roleNames []string, fn func(ctx context.Context, tx AssignmentTx) error) error
}
