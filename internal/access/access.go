// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

// Package access provides authorization for Finlife Identity.
//
// Principals hold roles; roles hold permissions named "resource:action".
// Relations are stored as id sets. Two tiers matter for mutation rules:
// administrators (ROLE_ADMIN) and everyone else. A fixed set of roles and
// permissions is protected; Guard enforces the rules around them and
// Service applies Guard to every role, permission and user mutation.
//
// The acting principal is always passed explicitly as an Actor.
package access

import (
	"errors"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
)

// Role names with special meaning.
const (
	RoleAdmin   = "ROLE_ADMIN"
	RoleManager = "ROLE_MANAGER"
	RoleUser    = "ROLE_USER"
)

// Permission names.
const (
	PermUserView         = "user:view"
	PermUserCreate       = "user:create"
	PermUserUpdate       = "user:update"
	PermUserDelete       = "user:delete"
	PermRoleView         = "role:view"
	PermRoleCreate       = "role:create"
	PermRoleUpdate       = "role:update"
	PermRoleDelete       = "role:delete"
	PermPermissionView   = "permission:view"
	PermPermissionCreate = "permission:create"
	PermPermissionUpdate = "permission:update"
	PermPermissionDelete = "permission:delete"
)

// Error codes.
const (
	CodeForbiddenMutation = "ACCESS_FORBIDDEN_MUTATION"
	CodeDenied            = "ACCESS_DENIED"
	CodeNotFound          = "ACCESS_NOT_FOUND"
	CodeInvalidInput      = "ACCESS_INVALID_INPUT"
	CodeConflict          = "ACCESS_CONFLICT"
	CodeOperationFailed   = "ACCESS_OPERATION_FAILED"
)

// ErrNotFound is returned by repositories when an entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned by repositories when a unique name is taken.
var ErrConflict = errors.New("name already exists")

// ErrForbiddenMutation marks every failure from Guard.
var ErrForbiddenMutation = errors.New("forbidden mutation")

var (
	protectedRoles       = []string{RoleAdmin, RoleManager}
	protectedPermissions = []string{PermPermissionCreate, PermPermissionUpdate, PermPermissionDelete}
	builtinPermissions   = []string{
		PermUserView, PermUserCreate, PermUserUpdate, PermUserDelete,
		PermRoleView, PermRoleCreate, PermRoleUpdate, PermRoleDelete,
		PermPermissionView, PermPermissionCreate, PermPermissionUpdate, PermPermissionDelete,
	}
)

// Role is a named set of permissions.
type Role struct {
	ID            ulid.ULID
	Name          string
	PermissionIDs []ulid.ULID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasPermission reports whether the role holds permissionID.
func (r *Role) HasPermission(permissionID ulid.ULID) bool {
	return slices.Contains(r.PermissionIDs, permissionID)
}

// Permission is a "resource:action" capability.
type Permission struct {
	ID        ulid.ULID
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsProtectedRole reports whether name can never be renamed or deleted.
func IsProtectedRole(name string) bool {
	return slices.Contains(protectedRoles, name)
}

// IsProtectedPermission reports whether name is reserved to administrators.
func IsProtectedPermission(name string) bool {
	return slices.Contains(protectedPermissions, name)
}

// IsBuiltinPermission reports whether name is one of the seeded permissions,
// which cannot be updated or deleted.
func IsBuiltinPermission(name string) bool {
	return slices.Contains(builtinPermissions, name)
}

// ProtectedRoles returns the protected role names.
func ProtectedRoles() []string {
	return slices.Clone(protectedRoles)
}

// BuiltinPermissions returns the seeded permission names.
func BuiltinPermissions() []string {
	return slices.Clone(builtinPermissions)
}

// DefaultRoles returns the seeded roles mapped to their permission names.
// Roles compose permission groups explicitly (no inheritance).
func DefaultRoles() map[string][]string {
	manager := make([]string, 0, len(builtinPermissions))
	for _, p := range builtinPermissions {
		if !IsProtectedPermission(p) {
			manager = append(manager, p)
		}
	}
	return map[string][]string{
		RoleAdmin:   BuiltinPermissions(),
		RoleManager: manager,
		RoleUser:    {},
	}
}
