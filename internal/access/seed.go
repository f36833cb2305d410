// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package access

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SeedDefaults creates the builtin permissions and default roles that do not
// exist yet. Existing entries are left untouched. Returns the default roles by
// name.
func SeedDefaults(ctx context.Context, roles RoleRepository, permissions PermissionRepository) (map[string]*Role, error) {
	now := time.Now().UTC()

	permIDs := make(map[string]ulid.ULID, len(builtinPermissions))
	for _, name := range builtinPermissions {
		p, err := permissions.GetByName(ctx, name)
		switch {
		case err == nil:
		case errors.Is(err, ErrNotFound):
			p = &Permission{ID: ulid.Make(), Name: name, CreatedAt: now, UpdatedAt: now}
			if err := permissions.Create(ctx, p); err != nil {
				return nil, oops.Code(CodeOperationFailed).With("permission", name).Wrap(err)
			}
		default:
			return nil, oops.Code(CodeOperationFailed).With("permission", name).Wrap(err)
		}
		permIDs[name] = p.ID
	}

	out := make(map[string]*Role)
	for name, perms := range DefaultRoles() {
		r, err := roles.GetByName(ctx, name)
		switch {
		case err == nil:
		case errors.Is(err, ErrNotFound):
			r = &Role{ID: ulid.Make(), Name: name, CreatedAt: now, UpdatedAt: now}
			for _, p := range perms {
				r.PermissionIDs = append(r.PermissionIDs, permIDs[p])
			}
			if err := roles.Create(ctx, r); err != nil {
				return nil, oops.Code(CodeOperationFailed).With("role", name).Wrap(err)
			}
		default:
			return nil, oops.Code(CodeOperationFailed).With("role", name).Wrap(err)
		}
		out[name] = r
	}
	return out, nil
}
