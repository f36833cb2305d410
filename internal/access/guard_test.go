// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package access_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlife/identity/internal/access"
	"github.com/finlife/identity/pkg/errutil"
)

type holders map[string]int

func (h holders) CountHolders(_ context.Context, role string) (int, error) {
	return h[role], nil
}

type failingHolders struct{}

func (failingHolders) CountHolders(context.Context, string) (int, error) {
	return 0, errors.New("database unavailable")
}

var (
	admin   = access.Actor{Roles: []string{access.RoleAdmin}}
	manager = access.Actor{Roles: []string{access.RoleManager}}
)

func TestGuard_AssertMutationAllowed(t *testing.T) {
	many := holders{access.RoleAdmin: 2, access.RoleManager: 2}
	sole := holders{access.RoleAdmin: 1, access.RoleManager: 1}

	tests := []struct {
		name    string
		actor   access.Actor
		holders access.HolderCounter
		m       access.Mutation
		allowed bool
	}{
		// permissions
		{"manager creates ordinary permission", manager, many,
			access.Mutation{Kind: access.CreatePermission, Permission: "report:view"}, true},
		{"manager creates protected permission", manager, many,
			access.Mutation{Kind: access.CreatePermission, Permission: access.PermPermissionCreate}, false},
		{"admin creates protected permission", admin, many,
			access.Mutation{Kind: access.CreatePermission, Permission: access.PermPermissionCreate}, true},
		{"manager renames custom permission", manager, many,
			access.Mutation{Kind: access.UpdatePermission, Permission: "report:view", NewName: "report:read"}, true},
		{"manager renames into protected permission", manager, many,
			access.Mutation{Kind: access.UpdatePermission, Permission: "report:view", NewName: access.PermPermissionUpdate}, false},
		{"admin updates builtin permission", admin, many,
			access.Mutation{Kind: access.UpdatePermission, Permission: access.PermUserView, NewName: "user:see"}, false},
		{"admin deletes builtin permission", admin, many,
			access.Mutation{Kind: access.DeletePermission, Permission: access.PermPermissionDelete}, false},
		{"manager deletes custom permission", manager, many,
			access.Mutation{Kind: access.DeletePermission, Permission: "report:view"}, true},

		// roles
		{"manager creates role", manager, many,
			access.Mutation{Kind: access.CreateRole, Role: "ROLE_SUPPORT", Permissions: []string{access.PermUserView}}, true},
		{"manager creates role with protected permission", manager, many,
			access.Mutation{Kind: access.CreateRole, Role: "ROLE_SUPPORT", Permissions: []string{access.PermPermissionCreate}}, false},
		{"admin creates role with protected permission", admin, many,
			access.Mutation{Kind: access.CreateRole, Role: "ROLE_SUPPORT", Permissions: []string{access.PermPermissionCreate}}, true},
		{"admin creates protected role name", admin, many,
			access.Mutation{Kind: access.CreateRole, Role: access.RoleManager}, false},
		{"admin renames protected role", admin, many,
			access.Mutation{Kind: access.UpdateRole, Role: access.RoleManager, NewName: "ROLE_BOSS"}, false},
		{"admin renames into protected role", admin, many,
			access.Mutation{Kind: access.UpdateRole, Role: "ROLE_SUPPORT", NewName: access.RoleAdmin}, false},
		{"manager renames custom role", manager, many,
			access.Mutation{Kind: access.UpdateRole, Role: "ROLE_SUPPORT", NewName: "ROLE_HELPDESK"}, true},
		{"admin deletes protected role", admin, many,
			access.Mutation{Kind: access.DeleteRole, Role: access.RoleAdmin}, false},
		{"manager deletes custom role", manager, many,
			access.Mutation{Kind: access.DeleteRole, Role: "ROLE_SUPPORT"}, true},
		{"manager assigns protected permission", manager, many,
			access.Mutation{Kind: access.SetRolePermissions, Role: "ROLE_SUPPORT", Permissions: []string{access.PermPermissionDelete}}, false},
		{"admin assigns protected permission", admin, many,
			access.Mutation{Kind: access.SetRolePermissions, Role: access.RoleManager, Permissions: []string{access.PermPermissionDelete}}, true},
		{"manager edits admin role", manager, many,
			access.Mutation{Kind: access.SetRolePermissions, Role: access.RoleAdmin, Permissions: []string{access.PermUserView}}, false},

		// users
		{"manager grants admin", manager, many,
			access.Mutation{Kind: access.ChangeUserRoles, NewRoles: []string{access.RoleAdmin}}, false},
		{"manager revokes admin", manager, many,
			access.Mutation{Kind: access.ChangeUserRoles, CurrentRoles: []string{access.RoleAdmin}}, false},
		{"manager grants manager", manager, many,
			access.Mutation{Kind: access.ChangeUserRoles, CurrentRoles: []string{access.RoleUser}, NewRoles: []string{access.RoleManager}}, true},
		{"admin demotes sole admin", admin, sole,
			access.Mutation{Kind: access.ChangeUserRoles, CurrentRoles: []string{access.RoleAdmin}, NewRoles: []string{access.RoleUser}}, false},
		{"admin demotes one of two admins", admin, many,
			access.Mutation{Kind: access.ChangeUserRoles, CurrentRoles: []string{access.RoleAdmin}, NewRoles: []string{access.RoleUser}}, true},
		{"manager demotes sole manager", manager, sole,
			access.Mutation{Kind: access.ChangeUserRoles, CurrentRoles: []string{access.RoleManager}}, false},
		{"sole admin keeps role", admin, sole,
			access.Mutation{Kind: access.ChangeUserRoles, CurrentRoles: []string{access.RoleAdmin}, NewRoles: []string{access.RoleAdmin, access.RoleUser}}, true},
		{"manager removes admin", manager, many,
			access.Mutation{Kind: access.RemoveUser, CurrentRoles: []string{access.RoleAdmin}}, false},
		{"admin removes sole manager", admin, sole,
			access.Mutation{Kind: access.RemoveUser, CurrentRoles: []string{access.RoleManager}}, false},
		{"manager removes plain user", manager, sole,
			access.Mutation{Kind: access.RemoveUser, CurrentRoles: []string{access.RoleUser}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := access.NewGuard(tt.holders).AssertMutationAllowed(context.Background(), tt.actor, tt.m)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, access.ErrForbiddenMutation)
			errutil.AssertErrorCode(t, err, access.CodeForbiddenMutation)
		})
	}
}

func TestGuard_HolderCountFailure(t *testing.T) {
	m := access.Mutation{Kind: access.ChangeUserRoles, CurrentRoles: []string{access.RoleAdmin}}
	err := access.NewGuard(failingHolders{}).AssertMutationAllowed(context.Background(), admin, m)
	errutil.AssertErrorCode(t, err, access.CodeOperationFailed)
	assert.NotErrorIs(t, err, access.ErrForbiddenMutation)
}

func TestGuard_WithinUsesGivenCounter(t *testing.T) {
	g := access.NewGuard(holders{access.RoleAdmin: 5})
	m := access.Mutation{Kind: access.ChangeUserRoles, CurrentRoles: []string{access.RoleAdmin}}

	require.NoError(t, g.AssertMutationAllowed(context.Background(), admin, m))
	err := g.Within(holders{access.RoleAdmin: 1}).AssertMutationAllowed(context.Background(), admin, m)
	assert.ErrorIs(t, err, access.ErrForbiddenMutation)
}

func TestGuard_UnknownMutation(t *testing.T) {
	err := access.NewGuard(holders{}).AssertMutationAllowed(context.Background(), admin, access.Mutation{})
	errutil.AssertErrorCode(t, err, access.CodeInvalidInput)
}

func TestGuard_RemovalModeFor(t *testing.T) {
	g := access.NewGuard(holders{})
	assert.Equal(t, access.HardDelete, g.RemovalModeFor(admin))
	assert.Equal(t, access.SoftDisable, g.RemovalModeFor(manager))
	assert.Equal(t, "soft_disable", access.SoftDisable.String())
}

func TestFilters(t *testing.T) {
	perms := []*access.Permission{{Name: access.PermUserView}, {Name: access.PermPermissionCreate}}
	roles := []*access.Role{{Name: access.RoleAdmin}, {Name: access.RoleManager}}

	assert.Len(t, access.FilterPermissions(admin, perms), 2)
	assert.Len(t, access.FilterRoles(admin, roles), 2)

	visible := access.FilterPermissions(manager, perms)
	require.Len(t, visible, 1)
	assert.Equal(t, access.PermUserView, visible[0].Name)

	visibleRoles := access.FilterRoles(manager, roles)
	require.Len(t, visibleRoles, 1)
	assert.Equal(t, access.RoleManager, visibleRoles[0].Name)
}
