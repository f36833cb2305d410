// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package access

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/finlife/identity/internal/auth"
)

// RoleSpec is a role to create or the new state of a role.
type RoleSpec struct {
	Name          string
	PermissionIDs []ulid.ULID
}

// ServiceDeps holds the collaborators of Service.
type ServiceDeps struct {
	Roles       RoleRepository
	Permissions PermissionRepository
	Assignments AssignmentRepository
	Principals  auth.PrincipalRepository
	// Provisioner is optional; CreateUser fails without it.
	Provisioner *auth.Provisioner
	Logger      *slog.Logger
}

// Service applies role, permission and user mutations on behalf of an actor.
// Every mutation is checked by Guard before it is stored.
type Service struct {
	roles       RoleRepository
	permissions PermissionRepository
	assignments AssignmentRepository
	principals  auth.PrincipalRepository
	provisioner *auth.Provisioner
	guard       *Guard
	logger      *slog.Logger
}

// NewService creates a Service.
func NewService(deps ServiceDeps) (*Service, error) {
	switch {
	case deps.Roles == nil:
		return nil, oops.Errorf("role repository is required")
	case deps.Permissions == nil:
		return nil, oops.Errorf("permission repository is required")
	case deps.Assignments == nil:
		return nil, oops.Errorf("assignment repository is required")
	case deps.Principals == nil:
		return nil, oops.Errorf("principal repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		roles:       deps.Roles,
		permissions: deps.Permissions,
		assignments: deps.Assignments,
		principals:  deps.Principals,
		provisioner: deps.Provisioner,
		guard:       NewGuard(deps.Assignments),
		logger:      logger,
	}, nil
}

// Guard returns the guard used by the service.
func (s *Service) Guard() *Guard {
	return s.guard
}

// ActorFor resolves the roles and permissions of a principal.
func (s *Service) ActorFor(ctx context.Context, principalID ulid.ULID) (Actor, error) {
	p, err := s.principals.GetByID(ctx, principalID)
	if err != nil {
		return Actor{}, lookupErr(err, "principal", principalID)
	}
	roles, err := s.roles.ListByIDs(ctx, p.RoleIDs)
	if err != nil {
		return Actor{}, opErr(err, "list roles")
	}
	actor := Actor{PrincipalID: p.ID, Active: p.Enabled && !p.Locked}
	var permIDs []ulid.ULID
	for _, r := range roles {
		actor.Roles = append(actor.Roles, r.Name)
		for _, id := range r.PermissionIDs {
			if !slices.Contains(permIDs, id) {
				permIDs = append(permIDs, id)
			}
		}
	}
	perms, err := s.permissions.ListByIDs(ctx, permIDs)
	if err != nil {
		return Actor{}, opErr(err, "list permissions")
	}
	for _, perm := range perms {
		actor.Permissions = append(actor.Permissions, perm.Name)
	}
	return actor, nil
}

// CreatePermissions creates permissions from names.
func (s *Service) CreatePermissions(ctx context.Context, a Actor, names []string) ([]*Permission, error) {
	if err := require(a, PermPermissionCreate); err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, oops.Code(CodeInvalidInput).Errorf("at least one permission must be informed")
	}
	created := make([]*Permission, 0, len(names))
	for _, name := range names {
		if _, err := ParsePermissionName(name); err != nil {
			return created, err
		}
		if err := s.guard.AssertMutationAllowed(ctx, a, Mutation{Kind: CreatePermission, Permission: name}); err != nil {
			return created, err
		}
		now := time.Now().UTC()
		p := &Permission{ID: ulid.Make(), Name: name, CreatedAt: now, UpdatedAt: now}
		if err := s.permissions.Create(ctx, p); err != nil {
			return created, storeErr(err, "create permission", name)
		}
		created = append(created, p)
	}
	s.logger.InfoContext(ctx, "permissions created",
		"actor", a.PrincipalID.String(),
		"count", len(created))
	return created, nil
}

// UpdatePermission renames a permission.
func (s *Service) UpdatePermission(ctx context.Context, a Actor, id ulid.ULID, newName string) (*Permission, error) {
	if err := require(a, PermPermissionUpdate); err != nil {
		return nil, err
	}
	if _, err := ParsePermissionName(newName); err != nil {
		return nil, err
	}
	p, err := s.visiblePermission(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.AssertMutationAllowed(ctx, a, Mutation{Kind: UpdatePermission, Permission: p.Name, NewName: newName}); err != nil {
		return nil, err
	}
	p.Name = newName
	p.UpdatedAt = time.Now().UTC()
	if err := s.permissions.Update(ctx, p); err != nil {
		return nil, storeErr(err, "update permission", newName)
	}
	return p, nil
}

// DeletePermission deletes a permission.
func (s *Service) DeletePermission(ctx context.Context, a Actor, id ulid.ULID) error {
	if err := require(a, PermPermissionDelete); err != nil {
		return err
	}
	p, err := s.visiblePermission(ctx, id)
	if err != nil {
		return err
	}
	if err := s.guard.AssertMutationAllowed(ctx, a, Mutation{Kind: DeletePermission, Permission: p.Name}); err != nil {
		return err
	}
	if err := s.permissions.Delete(ctx, id); err != nil {
		return storeErr(err, "delete permission", p.Name)
	}
	s.logger.InfoContext(ctx, "permission deleted", "actor", a.PrincipalID.String(), "permission", p.Name)
	return nil
}

// ListPermissions returns the permissions visible to a.
func (s *Service) ListPermissions(ctx context.Context, a Actor) ([]*Permission, error) {
	if err := require(a, PermPermissionView); err != nil {
		return nil, err
	}
	perms, err := s.permissions.List(ctx)
	if err != nil {
		return nil, opErr(err, "list permissions")
	}
	return FilterPermissions(a, perms), nil
}

// CreateRoles creates roles.
func (s *Service) CreateRoles(ctx context.Context, a Actor, specs []RoleSpec) ([]*Role, error) {
	if err := require(a, PermRoleCreate); err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return nil, oops.Code(CodeInvalidInput).Errorf("at least one role must be informed")
	}
	created := make([]*Role, 0, len(specs))
	for _, spec := range specs {
		if err := ValidateRoleName(spec.Name); err != nil {
			return created, err
		}
		names, err := s.permissionNames(ctx, spec.PermissionIDs)
		if err != nil {
			return created, err
		}
		m := Mutation{Kind: CreateRole, Role: spec.Name, Permissions: names}
		if err := s.guard.AssertMutationAllowed(ctx, a, m); err != nil {
			return created, err
		}
		now := time.Now().UTC()
		r := &Role{ID: ulid.Make(), Name: spec.Name, PermissionIDs: dedupe(spec.PermissionIDs), CreatedAt: now, UpdatedAt: now}
		if err := s.roles.Create(ctx, r); err != nil {
			return created, storeErr(err, "create role", spec.Name)
		}
		created = append(created, r)
	}
	s.logger.InfoContext(ctx, "roles created", "actor", a.PrincipalID.String(), "count", len(created))
	return created, nil
}

// UpdateRole renames a role and replaces its permissions.
func (s *Service) UpdateRole(ctx context.Context, a Actor, id ulid.ULID, spec RoleSpec) (*Role, error) {
	if err := require(a, PermRoleUpdate); err != nil {
		return nil, err
	}
	if err := ValidateRoleName(spec.Name); err != nil {
		return nil, err
	}
	r, err := s.visibleRole(ctx, a, id)
	if err != nil {
		return nil, err
	}
	names, err := s.permissionNames(ctx, spec.PermissionIDs)
	if err != nil {
		return nil, err
	}
	m := Mutation{Kind: UpdateRole, Role: r.Name, NewName: spec.Name, Permissions: names}
	if err := s.guard.AssertMutationAllowed(ctx, a, m); err != nil {
		return nil, err
	}
	r.Name = spec.Name
	r.PermissionIDs = dedupe(spec.PermissionIDs)
	r.UpdatedAt = time.Now().UTC()
	if err := s.roles.Update(ctx, r); err != nil {
		return nil, storeErr(err, "update role", spec.Name)
	}
	return r, nil
}

// RenameRole renames a role, keeping its permissions.
func (s *Service) RenameRole(ctx context.Context, a Actor, id ulid.ULID, newName string) (*Role, error) {
	if err := require(a, PermRoleUpdate); err != nil {
		return nil, err
	}
	if err := ValidateRoleName(newName); err != nil {
		return nil, err
	}
	r, err := s.visibleRole(ctx, a, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.AssertMutationAllowed(ctx, a, Mutation{Kind: UpdateRole, Role: r.Name, NewName: newName}); err != nil {
		return nil, err
	}
	old := r.Name
	r.Name = newName
	r.UpdatedAt = time.Now().UTC()
	if err := s.roles.Update(ctx, r); err != nil {
		return nil, storeErr(err, "rename role", newName)
	}
	s.logger.InfoContext(ctx, "role renamed", "actor", a.PrincipalID.String(), "from", old, "to", newName)
	return r, nil
}

// SetRolePermissions replaces the permissions of a role. Protected
// permissions a non-administrator cannot see are kept.
func (s *Service) SetRolePermissions(ctx context.Context, a Actor, id ulid.ULID, permissionIDs []ulid.ULID) (*Role, error) {
	if err := require(a, PermRoleUpdate); err != nil {
		return nil, err
	}
	r, err := s.visibleRole(ctx, a, id)
	if err != nil {
		return nil, err
	}
	names, err := s.permissionNames(ctx, permissionIDs)
	if err != nil {
		return nil, err
	}
	m := Mutation{Kind: SetRolePermissions, Role: r.Name, Permissions: names}
	if err := s.guard.AssertMutationAllowed(ctx, a, m); err != nil {
		return nil, err
	}

	next := dedupe(permissionIDs)
	if !a.IsAdmin() {
		held, err := s.permissions.ListByIDs(ctx, r.PermissionIDs)
		if err != nil {
			return nil, opErr(err, "list role permissions")
		}
		for _, p := range held {
			if IsProtectedPermission(p.Name) && !slices.Contains(next, p.ID) {
				next = append(next, p.ID)
			}
		}
	}
	r.PermissionIDs = next
	r.UpdatedAt = time.Now().UTC()
	if err := s.roles.Update(ctx, r); err != nil {
		return nil, storeErr(err, "update role", r.Name)
	}
	s.logger.InfoContext(ctx, "role permissions updated",
		"actor", a.PrincipalID.String(),
		"role", r.Name,
		"permissions", len(r.PermissionIDs))
	return r, nil
}

// DeleteRole deletes a role.
func (s *Service) DeleteRole(ctx context.Context, a Actor, id ulid.ULID) error {
	if err := require(a, PermRoleDelete); err != nil {
		return err
	}
	r, err := s.visibleRole(ctx, a, id)
	if err != nil {
		return err
	}
	if err := s.guard.AssertMutationAllowed(ctx, a, Mutation{Kind: DeleteRole, Role: r.Name}); err != nil {
		return err
	}
	if err := s.roles.Delete(ctx, id); err != nil {
		return storeErr(err, "delete role", r.Name)
	}
	s.logger.InfoContext(ctx, "role deleted", "actor", a.PrincipalID.String(), "role", r.Name)
	return nil
}

// ListRoles returns the roles visible to a.
func (s *Service) ListRoles(ctx context.Context, a Actor) ([]*Role, error) {
	if err := require(a, PermRoleView); err != nil {
		return nil, err
	}
	roles, err := s.roles.List(ctx)
	if err != nil {
		return nil, opErr(err, "list roles")
	}
	return FilterRoles(a, roles), nil
}

// ListUsers returns the principals visible to a. Non-administrators do not
// see administrators.
func (s *Service) ListUsers(ctx context.Context, a Actor) ([]*auth.Principal, error) {
	if err := require(a, PermUserView); err != nil {
		return nil, err
	}
	all, err := s.principals.List(ctx)
	if err != nil {
		return nil, opErr(err, "list principals")
	}
	if a.IsAdmin() {
		return all, nil
	}
	adminID, err := s.adminRoleID(ctx)
	if err != nil {
		return nil, err
	}
	return FilterPrincipals(a, all, adminID), nil
}

// FilterPrincipals drops holders of adminRoleID for non-administrators.
func FilterPrincipals(a Actor, principals []*auth.Principal, adminRoleID ulid.ULID) []*auth.Principal {
	if a.IsAdmin() || adminRoleID.IsZero() {
		return principals
	}
	out := make([]*auth.Principal, 0, len(principals))
	for _, p := range principals {
		if !p.HasRole(adminRoleID) {
			out = append(out, p)
		}
	}
	return out
}

// CreateUser provisions a principal with roleIDs.
func (s *Service) CreateUser(ctx context.Context, a Actor, acct auth.NewAccount) (*auth.ProvisionResult, error) {
	if err := require(a, PermUserCreate); err != nil {
		return nil, err
	}
	if s.provisioner == nil {
		return nil, oops.Code(CodeOperationFailed).Errorf("user provisioning is not configured")
	}
	names, err := s.roleNames(ctx, acct.RoleIDs)
	if err != nil {
		return nil, err
	}
	if err := s.guard.AssertMutationAllowed(ctx, a, Mutation{Kind: ChangeUserRoles, NewRoles: names}); err != nil {
		return nil, err
	}
	acct.RoleIDs = dedupe(acct.RoleIDs)
	return s.provisioner.Provision(ctx, acct)
}

// ChangeUserRoles replaces the roles of a principal.
func (s *Service) ChangeUserRoles(ctx context.Context, a Actor, principalID ulid.ULID, roleIDs []ulid.ULID) error {
	if err := require(a, PermUserUpdate); err != nil {
		return err
	}
	target, current, err := s.visiblePrincipal(ctx, a, principalID)
	if err != nil {
		return err
	}
	next, err := s.roleNames(ctx, roleIDs)
	if err != nil {
		return err
	}
	m := Mutation{Kind: ChangeUserRoles, Principal: target.ID, CurrentRoles: current, NewRoles: next}

	return s.assignments.WithRoleLock(ctx, heldProtected(current), func(ctx context.Context, tx AssignmentTx) error {
		if err := s.guard.Within(tx).AssertMutationAllowed(ctx, a, m); err != nil {
			return err
		}
		if err := tx.SetRoles(ctx, target.ID, dedupe(roleIDs)); err != nil {
			return opErr(err, "set roles")
		}
		s.logger.InfoContext(ctx, "user roles changed",
			"actor", a.PrincipalID.String(),
			"principal_id", target.ID.String(),
			"roles", next)
		return nil
	})
}

// RemoveUser removes a principal. Administrators delete it with its password
// history; other actors only disable it. The mode applied is returned.
func (s *Service) RemoveUser(ctx context.Context, a Actor, principalID ulid.ULID) (RemovalMode, error) {
	if err := require(a, PermUserDelete); err != nil {
		return SoftDisable, err
	}
	target, current, err := s.visiblePrincipal(ctx, a, principalID)
	if err != nil {
		return SoftDisable, err
	}
	mode := s.guard.RemovalModeFor(a)
	m := Mutation{Kind: RemoveUser, Principal: target.ID, CurrentRoles: current}

	err = s.assignments.WithRoleLock(ctx, heldProtected(current), func(ctx context.Context, tx AssignmentTx) error {
		if err := s.guard.Within(tx).AssertMutationAllowed(ctx, a, m); err != nil {
			return err
		}
		if mode == HardDelete {
			return wrapOp(tx.DeletePrincipal(ctx, target.ID), "delete principal")
		}
		return wrapOp(tx.DisablePrincipal(ctx, target.ID), "disable principal")
	})
	if err != nil {
		return mode, err
	}
	s.logger.InfoContext(ctx, "user removed",
		"actor", a.PrincipalID.String(),
		"principal_id", target.ID.String(),
		"mode", mode.String())
	return mode, nil
}

func (s *Service) visiblePermission(ctx context.Context, id ulid.ULID) (*Permission, error) {
	p, err := s.permissions.GetByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "permission", id)
	}
	return p, nil
}

func (s *Service) visibleRole(ctx context.Context, a Actor, id ulid.ULID) (*Role, error) {
	r, err := s.roles.GetByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "role", id)
	}
	if !a.IsAdmin() && r.Name == RoleAdmin {
		return nil, notFound("role", id)
	}
	return r, nil
}

// visiblePrincipal loads a principal and its role names. Administrators are
// invisible to non-administrators.
func (s *Service) visiblePrincipal(ctx context.Context, a Actor, id ulid.ULID) (*auth.Principal, []string, error) {
	p, err := s.principals.GetByID(ctx, id)
	if err != nil {
		return nil, nil, lookupErr(err, "principal", id)
	}
	roles, err := s.roles.ListByIDs(ctx, p.RoleIDs)
	if err != nil {
		return nil, nil, opErr(err, "list roles")
	}
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	if !a.IsAdmin() && slices.Contains(names, RoleAdmin) {
		return nil, nil, notFound("principal", id)
	}
	return p, names, nil
}

func (s *Service) permissionNames(ctx context.Context, ids []ulid.ULID) ([]string, error) {
	ids = dedupe(ids)
	perms, err := s.permissions.ListByIDs(ctx, ids)
	if err != nil {
		return nil, opErr(err, "list permissions")
	}
	if len(perms) != len(ids) {
		return nil, oops.Code(CodeNotFound).
			With("requested", len(ids)).
			With("found", len(perms)).
			Errorf("permission(s) not found")
	}
	names := make([]string, 0, len(perms))
	for _, p := range perms {
		names = append(names, p.Name)
	}
	return names, nil
}

func (s *Service) roleNames(ctx context.Context, ids []ulid.ULID) ([]string, error) {
	ids = dedupe(ids)
	roles, err := s.roles.ListByIDs(ctx, ids)
	if err != nil {
		return nil, opErr(err, "list roles")
	}
	if len(roles) != len(ids) {
		return nil, oops.Code(CodeNotFound).
			With("requested", len(ids)).
			With("found", len(roles)).
			Errorf("role(s) not found")
	}
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	return names, nil
}

func (s *Service) adminRoleID(ctx context.Context) (ulid.ULID, error) {
	r, err := s.roles.GetByName(ctx, RoleAdmin)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ulid.ULID{}, nil
		}
		return ulid.ULID{}, opErr(err, "get admin role")
	}
	return r.ID, nil
}

func heldProtected(roles []string) []string {
	var out []string
	for _, r := range protectedRoles {
		if slices.Contains(roles, r) {
			out = append(out, r)
		}
	}
	return out
}

func dedupe(ids []ulid.ULID) []ulid.ULID {
	out := make([]ulid.ULID, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func require(a Actor, permission string) error {
	if HasPermission(a, permission) {
		return nil
	}
	return oops.Code(CodeDenied).
		With("principal_id", a.PrincipalID.String()).
		With("permission", permission).
		Errorf("missing permission %s", permission)
}

func notFound(kind string, id ulid.ULID) error {
	return oops.Code(CodeNotFound).
		With("id", id.String()).
		Wrapf(ErrNotFound, "%s with id %s was not found", kind, id)
}

func lookupErr(err error, kind string, id ulid.ULID) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, auth.ErrNotFound) {
		return notFound(kind, id)
	}
	return opErr(err, "get "+kind)
}

func storeErr(err error, operation, name string) error {
	if errors.Is(err, ErrConflict) {
		return oops.Code(CodeConflict).
			With("name", name).
			Wrapf(ErrConflict, "%s already exists", name)
	}
	if errors.Is(err, ErrNotFound) {
		return oops.Code(CodeNotFound).With("name", name).Wrapf(ErrNotFound, "%s was not found", name)
	}
	return opErr(err, operation)
}

func opErr(err error, operation string) error {
	return oops.Code(CodeOperationFailed).With("operation", operation).Wrap(err)
}

func wrapOp(err error, operation string) error {
	if err == nil {
		return nil
	}
	return opErr(err, operation)
}
