// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package access_test

import (
	"context"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/finlife/identity/internal/access"
	"github.com/finlife/identity/internal/auth"
	"github.com/finlife/identity/internal/auth/mocks"
	"github.com/finlife/identity/internal/memory"
	"github.com/finlife/identity/pkg/errutil"
)

type plainHasher struct{}

func (plainHasher) Hash(pw string) (string, error) { return "plain:" + pw, nil }
func (plainHasher) Verify(pw, hash string) bool    { return hash == "plain:"+pw }

type serviceFixture struct {
	store    *memory.Store
	svc      *access.Service
	roles    map[string]*access.Role
	notifier *mocks.MockNotifier
	admin    access.Actor
	manager  access.Actor
	adminID  ulid.ULID
	mgrID    ulid.ULID
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	ctx := context.Background()
	f := &serviceFixture{store: memory.NewStore(), notifier: mocks.NewMockNotifier(t)}

	roles, err := access.SeedDefaults(ctx, f.store.Roles(), f.store.Permissions())
	require.NoError(t, err)
	f.roles = roles

	prov, err := auth.NewProvisioner(f.store.Principals(), plainHasher{}, f.notifier, nil)
	require.NoError(t, err)
	f.svc, err = access.NewService(access.ServiceDeps{
		Roles:       f.store.Roles(),
		Permissions: f.store.Permissions(),
		Assignments: f.store.Assignments(),
		Principals:  f.store.Principals(),
		Provisioner: prov,
	})
	require.NoError(t, err)

	f.adminID = f.principal(t, "root@finlife.example", access.RoleAdmin)
	f.mgrID = f.principal(t, "boss@finlife.example", access.RoleManager)
	f.admin, err = f.svc.ActorFor(ctx, f.adminID)
	require.NoError(t, err)
	f.manager, err = f.svc.ActorFor(ctx, f.mgrID)
	require.NoError(t, err)
	return f
}

func (f *serviceFixture) principal(t *testing.T, email string, roles ...string) ulid.ULID {
	t.Helper()
	ids := make([]ulid.ULID, 0, len(roles))
	for _, r := range roles {
		ids = append(ids, f.roles[r].ID)
	}
	p, err := auth.NewPrincipal(email, "hash", auth.Profile{}, ids)
	require.NoError(t, err)
	require.NoError(t, f.store.Principals().Create(context.Background(), p))
	return p.ID
}

func (f *serviceFixture) permission(t *testing.T, name string) *access.Permission {
	t.Helper()
	p, err := f.store.Permissions().GetByName(context.Background(), name)
	require.NoError(t, err)
	return p
}

func TestService_ActorFor(t *testing.T) {
	f := newServiceFixture(t)

	assert.Equal(t, []string{access.RoleAdmin}, f.admin.Roles)
	assert.ElementsMatch(t, access.BuiltinPermissions(), f.admin.Permissions)
	assert.Len(t, f.manager.Permissions, 9)
	// Provisioned principals start disabled.
	assert.False(t, f.admin.Active)

	p, err := auth.NewPrincipal("live@finlife.example", "hash", auth.Profile{}, nil)
	require.NoError(t, err)
	p.Enabled = true
	require.NoError(t, f.store.Principals().Create(context.Background(), p))
	actor, err := f.svc.ActorFor(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, actor.Active)

	_, _, err = f.store.Principals().IncrementLoginAttempts(context.Background(), p.ID, 1)
	require.NoError(t, err)
	actor, err = f.svc.ActorFor(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, actor.Active)

	_, err = f.svc.ActorFor(context.Background(), ulid.Make())
	errutil.AssertErrorCode(t, err, access.CodeNotFound)
}

func TestService_RequiresPermission(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	nobody := access.Actor{PrincipalID: ulid.Make(), Roles: []string{access.RoleUser}}

	_, err := f.svc.ListRoles(ctx, nobody)
	errutil.AssertErrorCode(t, err, access.CodeDenied)
	errutil.AssertErrorContext(t, err, "permission", access.PermRoleView)

	_, err = f.svc.CreatePermissions(ctx, f.manager, []string{"report:view"})
	errutil.AssertErrorCode(t, err, access.CodeDenied)
}

func TestService_Permissions(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	created, err := f.svc.CreatePermissions(ctx, f.admin, []string{"report:view", "report:export"})
	require.NoError(t, err)
	require.Len(t, created, 2)

	_, err = f.svc.CreatePermissions(ctx, f.admin, []string{"report:view"})
	errutil.AssertErrorCode(t, err, access.CodeConflict)

	_, err = f.svc.CreatePermissions(ctx, f.admin, []string{"Report View"})
	errutil.AssertErrorCode(t, err, access.CodeInvalidInput)

	_, err = f.svc.CreatePermissions(ctx, f.admin, nil)
	errutil.AssertErrorCode(t, err, access.CodeInvalidInput)

	updated, err := f.svc.UpdatePermission(ctx, f.admin, created[0].ID, "report:read")
	require.NoError(t, err)
	assert.Equal(t, "report:read", updated.Name)

	_, err = f.svc.UpdatePermission(ctx, f.admin, f.permission(t, access.PermUserView).ID, "user:see")
	errutil.AssertErrorCode(t, err, access.CodeForbiddenMutation)

	err = f.svc.DeletePermission(ctx, f.admin, f.permission(t, access.PermPermissionDelete).ID)
	errutil.AssertErrorCode(t, err, access.CodeForbiddenMutation)

	require.NoError(t, f.svc.DeletePermission(ctx, f.admin, created[1].ID))
	err = f.svc.DeletePermission(ctx, f.admin, created[1].ID)
	errutil.AssertErrorCode(t, err, access.CodeNotFound)
}

func TestService_ListHidesProtected(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	perms, err := f.svc.ListPermissions(ctx, f.manager)
	require.NoError(t, err)
	for _, p := range perms {
		assert.False(t, access.IsProtectedPermission(p.Name), p.Name)
	}

	all, err := f.svc.ListPermissions(ctx, f.admin)
	require.NoError(t, err)
	assert.Len(t, all, 12)

	roles, err := f.svc.ListRoles(ctx, f.manager)
	require.NoError(t, err)
	for _, r := range roles {
		assert.NotEqual(t, access.RoleAdmin, r.Name)
	}

	users, err := f.svc.ListUsers(ctx, f.manager)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, f.mgrID, users[0].ID)

	users, err = f.svc.ListUsers(ctx, f.admin)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestService_Roles(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	view := f.permission(t, access.PermUserView)
	create := f.permission(t, access.PermPermissionCreate)

	created, err := f.svc.CreateRoles(ctx, f.manager, []access.RoleSpec{{Name: "ROLE_SUPPORT", PermissionIDs: []ulid.ULID{view.ID, view.ID}}})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, []ulid.ULID{view.ID}, created[0].PermissionIDs)

	_, err = f.svc.CreateRoles(ctx, f.manager, []access.RoleSpec{{Name: "ROLE_AUDIT", PermissionIDs: []ulid.ULID{create.ID}}})
	errutil.AssertErrorCode(t, err, access.CodeForbiddenMutation)

	_, err = f.svc.CreateRoles(ctx, f.manager, []access.RoleSpec{{Name: "ROLE_AUDIT", PermissionIDs: []ulid.ULID{ulid.Make()}}})
	errutil.AssertErrorCode(t, err, access.CodeNotFound)

	_, err = f.svc.CreateRoles(ctx, f.manager, []access.RoleSpec{{Name: access.RoleManager}})
	errutil.AssertErrorCode(t, err, access.CodeForbiddenMutation)

	renamed, err := f.svc.RenameRole(ctx, f.manager, created[0].ID, "ROLE_HELPDESK")
	require.NoError(t, err)
	assert.Equal(t, "ROLE_HELPDESK", renamed.Name)

	_, err = f.svc.RenameRole(ctx, f.admin, f.roles[access.RoleManager].ID, "ROLE_BOSS")
	errutil.AssertErrorCode(t, err, access.CodeForbiddenMutation)

	err = f.svc.DeleteRole(ctx, f.admin, f.roles[access.RoleAdmin].ID)
	errutil.AssertErrorCode(t, err, access.CodeForbiddenMutation)

	err = f.svc.DeleteRole(ctx, f.manager, f.roles[access.RoleAdmin].ID)
	errutil.AssertErrorCode(t, err, access.CodeNotFound)

	updated, err := f.svc.UpdateRole(ctx, f.admin, created[0].ID, access.RoleSpec{Name: "ROLE_OPS", PermissionIDs: []ulid.ULID{create.ID}})
	require.NoError(t, err)
	assert.Equal(t, "ROLE_OPS", updated.Name)

	require.NoError(t, f.svc.DeleteRole(ctx, f.manager, created[0].ID))
}

func TestService_SetRolePermissions(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	view := f.permission(t, access.PermUserView)
	del := f.permission(t, access.PermPermissionDelete)
	mgr := f.roles[access.RoleManager]

	_, err := f.svc.SetRolePermissions(ctx, f.manager, mgr.ID, []ulid.ULID{del.ID})
	errutil.AssertErrorCode(t, err, access.CodeForbiddenMutation)

	r, err := f.svc.SetRolePermissions(ctx, f.admin, mgr.ID, []ulid.ULID{view.ID, del.ID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []ulid.ULID{view.ID, del.ID}, r.PermissionIDs)

	r, err = f.svc.SetRolePermissions(ctx, f.manager, mgr.ID, []ulid.ULID{view.ID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []ulid.ULID{view.ID, del.ID}, r.PermissionIDs, "hidden protected permissions are kept")

	_, err = f.svc.SetRolePermissions(ctx, f.manager, f.roles[access.RoleAdmin].ID, []ulid.ULID{view.ID})
	errutil.AssertErrorCode(t, err, access.CodeNotFound)
}

func TestService_ChangeUserRoles(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	adminRole := f.roles[access.RoleAdmin].ID
	userRole := f.roles[access.RoleUser].ID

	err := f.svc.ChangeUserRoles(ctx, f.admin, f.adminID, []ulid.ULID{userRole})
	errutil.AssertErrorCode(t, err, access.CodeForbiddenMutation)

	second := f.principal(t, "second@finlife.example", access.RoleUser)
	err = f.svc.ChangeUserRoles(ctx, f.manager, second, []ulid.ULID{adminRole})
	errutil.AssertErrorCode(t, err, access.CodeForbiddenMutation)

	require.NoError(t, f.svc.ChangeUserRoles(ctx, f.admin, second, []ulid.ULID{adminRole}))
	require.NoError(t, f.svc.ChangeUserRoles(ctx, f.admin, f.adminID, []ulid.ULID{userRole}))

	p, err := f.store.Principals().GetByID(ctx, f.adminID)
	require.NoError(t, err)
	assert.Equal(t, []ulid.ULID{userRole}, p.RoleIDs)

	err = f.svc.ChangeUserRoles(ctx, f.manager, second, []ulid.ULID{userRole})
	errutil.AssertErrorCode(t, err, access.CodeNotFound)

	err = f.svc.ChangeUserRoles(ctx, f.admin, second, []ulid.ULID{ulid.Make()})
	errutil.AssertErrorCode(t, err, access.CodeNotFound)
}

func TestService_RemoveUser(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.RemoveUser(ctx, f.admin, f.adminID)
	errutil.AssertErrorCode(t, err, access.CodeForbiddenMutation)

	_, err = f.svc.RemoveUser(ctx, f.manager, f.adminID)
	errutil.AssertErrorCode(t, err, access.CodeNotFound)

	plain := f.principal(t, "plain@finlife.example", access.RoleUser)
	mode, err := f.svc.RemoveUser(ctx, f.manager, plain)
	require.NoError(t, err)
	assert.Equal(t, access.SoftDisable, mode)
	p, err := f.store.Principals().GetByID(ctx, plain)
	require.NoError(t, err)
	assert.False(t, p.Enabled)

	mode, err = f.svc.RemoveUser(ctx, f.admin, plain)
	require.NoError(t, err)
	assert.Equal(t, access.HardDelete, mode)
	_, err = f.store.Principals().GetByID(ctx, plain)
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestService_CreateUser(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	acct := auth.NewAccount{
		Email:   "new@finlife.example",
		Profile: auth.Profile{FirstName: "Joana", LastName: "Lima"},
		RoleIDs: []ulid.ULID{f.roles[access.RoleAdmin].ID},
	}

	_, err := f.svc.CreateUser(ctx, f.manager, acct)
	errutil.AssertErrorCode(t, err, access.CodeForbiddenMutation)

	acct.RoleIDs = []ulid.ULID{f.roles[access.RoleUser].ID}
	f.notifier.On("Welcome", mock.Anything, mock.AnythingOfType("*auth.Principal"), mock.AnythingOfType("string")).Return(nil).Once()
	res, err := f.svc.CreateUser(ctx, f.manager, acct)
	require.NoError(t, err)
	assert.Nil(t, res.Warning)
	assert.False(t, res.Principal.Enabled)
	assert.True(t, res.Principal.HasRole(f.roles[access.RoleUser].ID))
}

func TestNewService_NilDependencies(t *testing.T) {
	_, err := access.NewService(access.ServiceDeps{})
	assert.Error(t, err)
}
