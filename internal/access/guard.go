// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package access

import (
	"context"
	"slices"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MutationKind identifies a guarded mutation.
type MutationKind int

// Guarded mutations.
const (
	CreatePermission MutationKind = iota + 1
	UpdatePermission
	DeletePermission
	CreateRole
	UpdateRole
	DeleteRole
	SetRolePermissions
	ChangeUserRoles
	RemoveUser
)

var mutationNames = map[MutationKind]string{
	CreatePermission:   "create_permission",
	UpdatePermission:   "update_permission",
	DeletePermission:   "delete_permission",
	CreateRole:         "create_role",
	UpdateRole:         "update_role",
	DeleteRole:         "delete_role",
	SetRolePermissions: "set_role_permissions",
	ChangeUserRoles:    "change_user_roles",
	RemoveUser:         "remove_user",
}

func (k MutationKind) String() string {
	if s, ok := mutationNames[k]; ok {
		return s
	}
	return "unknown"
}

// Mutation describes a change to be checked by Guard. Fields not relevant to
// Kind are ignored.
type Mutation struct {
	Kind MutationKind

	// Permission is the permission name being created, updated or deleted.
	Permission string
	// Role is the current name of the role being created, updated or deleted.
	Role string
	// NewName is the requested name for updates.
	NewName string
	// Permissions are the permission names a role will hold.
	Permissions []string

	// Principal is the user whose roles change or who is removed.
	Principal ulid.ULID
	// CurrentRoles and NewRoles are the user's role names before and after.
	CurrentRoles []string
	NewRoles     []string
}

// HolderCounter counts the principals holding a role at the time of the call.
type HolderCounter interface {
	CountHolders(ctx context.Context, roleName string) (int, error)
}

// RemovalMode is how a user removal is carried out.
type RemovalMode int

// Removal modes.
const (
	// SoftDisable keeps the principal and sets enabled=false.
	SoftDisable RemovalMode = iota
	// HardDelete removes the principal and its password history.
	HardDelete
)

func (m RemovalMode) String() string {
	if m == HardDelete {
		return "hard_delete"
	}
	return "soft_disable"
}

// Guard enforces the protected-resource rules.
type Guard struct {
	holders HolderCounter
}

// NewGuard creates a Guard counting role holders with holders.
func NewGuard(holders HolderCounter) *Guard {
	return &Guard{holders: holders}
}

// Within returns a Guard that counts holders with h, typically a transaction
// that also applies the mutation.
func (g *Guard) Within(h HolderCounter) *Guard {
	return &Guard{holders: h}
}

// RemovalModeFor returns how a removal by a is applied: administrators
// hard-delete, everyone else soft-disables.
func (g *Guard) RemovalModeFor(a Actor) RemovalMode {
	if a.IsAdmin() {
		return HardDelete
	}
	return SoftDisable
}

// AssertMutationAllowed returns ACCESS_FORBIDDEN_MUTATION when a may not
// perform m. Sole-holder checks count holders at call time.
func (g *Guard) AssertMutationAllowed(ctx context.Context, a Actor, m Mutation) error {
	admin := a.IsAdmin()

	switch m.Kind {
	case CreatePermission:
		if !admin && IsProtectedPermission(m.Permission) {
			return forbidden(m, "protected permissions can only be created by an administrator")
		}

	case UpdatePermission, DeletePermission:
		if IsBuiltinPermission(m.Permission) {
			return forbidden(m, "this permission cannot be altered")
		}
		if !admin && (IsProtectedPermission(m.Permission) || IsProtectedPermission(m.NewName)) {
			return forbidden(m, "protected permissions can only be changed by an administrator")
		}

	case CreateRole:
		if IsProtectedRole(m.Role) {
			return forbidden(m, "this role name is reserved")
		}
		if !admin && slices.ContainsFunc(m.Permissions, IsProtectedPermission) {
			return forbidden(m, "some permission(s) are not allowed for this role")
		}

	case UpdateRole:
		if IsProtectedRole(m.Role) || IsProtectedRole(m.NewName) {
			return forbidden(m, "this role cannot be altered")
		}
		if !admin && slices.ContainsFunc(m.Permissions, IsProtectedPermission) {
			return forbidden(m, "some permission(s) are not allowed for this role")
		}

	case DeleteRole:
		if IsProtectedRole(m.Role) {
			return forbidden(m, "this role cannot be deleted")
		}

	case SetRolePermissions:
		if !admin && m.Role == RoleAdmin {
			return forbidden(m, "this role can only be changed by an administrator")
		}
		if !admin && slices.ContainsFunc(m.Permissions, IsProtectedPermission) {
			return forbidden(m, "some permission(s) are not allowed for this role")
		}

	case ChangeUserRoles:
		if !admin && (slices.Contains(m.CurrentRoles, RoleAdmin) || slices.Contains(m.NewRoles, RoleAdmin)) {
			return forbidden(m, "not allowed to grant or revoke the administrator role")
		}
		for _, role := range protectedRoles {
			if slices.Contains(m.CurrentRoles, role) && !slices.Contains(m.NewRoles, role) {
				if err := g.assertNotSoleHolder(ctx, m, role); err != nil {
					return err
				}
			}
		}

	case RemoveUser:
		if !admin && slices.Contains(m.CurrentRoles, RoleAdmin) {
			return forbidden(m, "not allowed to remove an administrator")
		}
		for _, role := range protectedRoles {
			if slices.Contains(m.CurrentRoles, role) {
				if err := g.assertNotSoleHolder(ctx, m, role); err != nil {
					return err
				}
			}
		}

	default:
		return oops.Code(CodeInvalidInput).With("kind", int(m.Kind)).Errorf("unknown mutation")
	}
	return nil
}

func (g *Guard) assertNotSoleHolder(ctx context.Context, m Mutation, role string) error {
	if g.holders == nil {
		return oops.Code(CodeOperationFailed).Errorf("no role holder counter configured")
	}
	n, err := g.holders.CountHolders(ctx, role)
	if err != nil {
		return oops.Code(CodeOperationFailed).
			With("operation", "count role holders").
			With("role", role).
			Wrap(err)
	}
	if n <= 1 {
		return oops.Code(CodeForbiddenMutation).
			With("mutation", m.Kind.String()).
			With("role", role).
			With("principal_id", m.Principal.String()).
			Wrapf(ErrForbiddenMutation, "user is the only holder of %s", role)
	}
	return nil
}

func forbidden(m Mutation, reason string) error {
	return oops.Code(CodeForbiddenMutation).
		With("mutation", m.Kind.String()).
		Wrapf(ErrForbiddenMutation, "%s", reason)
}

// FilterPermissions drops protected permissions for non-administrators.
func FilterPermissions(a Actor, perms []*Permission) []*Permission {
	if a.IsAdmin() {
		return perms
	}
	out := make([]*Permission, 0, len(perms))
	for _, p := range perms {
		if !IsProtectedPermission(p.Name) {
			out = append(out, p)
		}
	}
	return out
}

// FilterRoles drops ROLE_ADMIN for non-administrators.
func FilterRoles(a Actor, roles []*Role) []*Role {
	if a.IsAdmin() {
		return roles
	}
	out := make([]*Role, 0, len(roles))
	for _, r := range roles {
		if r.Name != RoleAdmin {
			out = append(out, r)
		}
	}
	return out
}
