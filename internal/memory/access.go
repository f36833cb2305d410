// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package memory

import (
	"context"
	"slices"

	"github.com/oklog/ulid/v2"

	"github.com/finlife/identity/internal/access"
	"github.com/finlife/identity/internal/auth"
)

// roleRepo implements access.RoleRepository.
type roleRepo Store

func (r *roleRepo) Create(_ context.Context, role *access.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.roles {
		if existing.Name == role.Name {
			return access.ErrConflict
		}
	}
	r.roles[role.ID] = cloneRole(role)
	return nil
}

func (r *roleRepo) GetByID(_ context.Context, id ulid.ULID) (*access.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	role, ok := r.roles[id]
	if !ok {
		return nil, access.ErrNotFound
	}
	return cloneRole(role), nil
}

func (r *roleRepo) GetByName(_ context.Context, name string) (*access.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, role := range r.roles {
		if role.Name == name {
			return cloneRole(role), nil
		}
	}
	return nil, access.ErrNotFound
}

func (r *roleRepo) ListByIDs(_ context.Context, ids []ulid.ULID) ([]*access.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*access.Role, 0, len(ids))
	for _, id := range ids {
		if role, ok := r.roles[id]; ok {
			out = append(out, cloneRole(role))
		}
	}
	return out, nil
}

func (r *roleRepo) List(_ context.Context) ([]*access.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*access.Role, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, cloneRole(role))
	}
	slices.SortFunc(out, func(a, b *access.Role) int { return a.ID.Compare(b.ID) })
	return out, nil
}

func (r *roleRepo) Update(_ context.Context, role *access.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.roles[role.ID]; !ok {
		return access.ErrNotFound
	}
	for id, existing := range r.roles {
		if id != role.ID && existing.Name == role.Name {
			return access.ErrConflict
		}
	}
	r.roles[role.ID] = cloneRole(role)
	return nil
}

// Delete removes the role and its assignments.
func (r *roleRepo) Delete(_ context.Context, id ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.roles[id]; !ok {
		return access.ErrNotFound
	}
	delete(r.roles, id)
	for _, p := range r.principals {
		p.RoleIDs = slices.DeleteFunc(p.RoleIDs, func(rid ulid.ULID) bool { return rid == id })
	}
	return nil
}

// permissionRepo implements access.PermissionRepository.
type permissionRepo Store

func (r *permissionRepo) Create(_ context.Context, p *access.Permission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.permissions {
		if existing.Name == p.Name {
			return access.ErrConflict
		}
	}
	c := *p
	r.permissions[p.ID] = &c
	return nil
}

func (r *permissionRepo) GetByID(_ context.Context, id ulid.ULID) (*access.Permission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.permissions[id]
	if !ok {
		return nil, access.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (r *permissionRepo) GetByName(_ context.Context, name string) (*access.Permission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.permissions {
		if p.Name == name {
			c := *p
			return &c, nil
		}
	}
	return nil, access.ErrNotFound
}

func (r *permissionRepo) ListByIDs(_ context.Context, ids []ulid.ULID) ([]*access.Permission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*access.Permission, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.permissions[id]; ok {
			c := *p
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *permissionRepo) List(_ context.Context) ([]*access.Permission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*access.Permission, 0, len(r.permissions))
	for _, p := range r.permissions {
		c := *p
		out = append(out, &c)
	}
	slices.SortFunc(out, func(a, b *access.Permission) int { return a.ID.Compare(b.ID) })
	return out, nil
}

func (r *permissionRepo) Update(_ context.Context, p *access.Permission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.permissions[p.ID]; !ok {
		return access.ErrNotFound
	}
	for id, existing := range r.permissions {
		if id != p.ID && existing.Name == p.Name {
			return access.ErrConflict
		}
	}
	c := *p
	r.permissions[p.ID] = &c
	return nil
}

// Delete removes the permission from the store and from every role.
func (r *permissionRepo) Delete(_ context.Context, id ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.permissions[id]; !ok {
		return access.ErrNotFound
	}
	delete(r.permissions, id)
	for _, role := range r.roles {
		role.PermissionIDs = slices.DeleteFunc(role.PermissionIDs, func(pid ulid.ULID) bool { return pid == id })
	}
	return nil
}

// assignmentRepo implements access.AssignmentRepository and
// access.AssignmentTx. The in-memory store has no rollback: fn's writes are
// applied as they happen.
type assignmentRepo Store

func (r *assignmentRepo) CountHolders(_ context.Context, roleName string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var roleID ulid.ULID
	for id, role := range r.roles {
		if role.Name == roleName {
			roleID = id
		}
	}
	if roleID.IsZero() {
		return 0, nil
	}
	n := 0
	for _, p := range r.principals {
		if slices.Contains(p.RoleIDs, roleID) {
			n++
		}
	}
	return n, nil
}

// WithRoleLock serializes every caller regardless of roleNames.
func (r *assignmentRepo) WithRoleLock(ctx context.Context, _ []string, fn func(ctx context.Context, tx access.AssignmentTx) error) error {
	r.roleMu.Lock()
	defer r.roleMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, r)
}

func (r *assignmentRepo) SetRoles(_ context.Context, principalID ulid.ULID, roleIDs []ulid.ULID) error {
	return (*principalRepo)(r).update(principalID, func(p *auth.Principal) {
		p.RoleIDs = slices.Clone(roleIDs)
	})
}

func (r *assignmentRepo) DisablePrincipal(_ context.Context, principalID ulid.ULID) error {
	return (*principalRepo)(r).update(principalID, func(p *auth.Principal) {
		p.Enabled = false
	})
}

func (r *assignmentRepo) DeletePrincipal(_ context.Context, principalID ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.principals[principalID]; !ok {
		return auth.ErrNotFound
	}
	delete(r.principals, principalID)
	r.history = slices.DeleteFunc(r.history, func(e *auth.PasswordHistoryEntry) bool {
		return e.PrincipalID == principalID
	})
	for id, t := range r.resetTokens {
		if t.PrincipalID == principalID {
			delete(r.resetTokens, id)
		}
	}
	return nil
}
