// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package access_test

import (
	"context"
	"errors"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/finlife/identity/internal/access"
	accessmocks "github.com/finlife/identity/internal/access/mocks"
	"github.com/finlife/identity/internal/auth"
	authmocks "github.com/finlife/identity/internal/auth/mocks"
	"github.com/finlife/identity/pkg/errutil"
)

type mockedService struct {
	roles       *accessmocks.MockRoleRepository
	permissions *accessmocks.MockPermissionRepository
	assignments *accessmocks.MockAssignmentRepository
	principals  *authmocks.MockPrincipalRepository
	svc         *access.Service
}

func newMockedService(t *testing.T) *mockedService {
	t.Helper()
	m := &mockedService{
		roles:       accessmocks.NewMockRoleRepository(t),
		permissions: accessmocks.NewMockPermissionRepository(t),
		assignments: accessmocks.NewMockAssignmentRepository(t),
		principals:  authmocks.NewMockPrincipalRepository(t),
	}
	var err error
	m.svc, err = access.NewService(access.ServiceDeps{
		Roles:       m.roles,
		Permissions: m.permissions,
		Assignments: m.assignments,
		Principals:  m.principals,
	})
	require.NoError(t, err)
	return m
}

var rootActor = access.Actor{
	PrincipalID: ulid.Make(),
	Roles:       []string{access.RoleAdmin},
	Permissions: []string{"*:*"},
}

func TestService_RepositoryFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection reset")

	t.Run("list roles", func(t *testing.T) {
		m := newMockedService(t)
		m.roles.On("List", ctx).Return(nil, boom)

		_, err := m.svc.ListRoles(ctx, rootActor)
		errutil.AssertErrorCode(t, err, access.CodeOperationFailed)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("create permission", func(t *testing.T) {
		m := newMockedService(t)
		m.permissions.On("Create", ctx, mock.AnythingOfType("*access.Permission")).Return(boom)

		_, err := m.svc.CreatePermissions(ctx, rootActor, []string{"report:view"})
		errutil.AssertErrorCode(t, err, access.CodeOperationFailed)
		errutil.AssertErrorContext(t, err, "operation", "create permission")
	})

	t.Run("role lock", func(t *testing.T) {
		m := newMockedService(t)
		p := &auth.Principal{ID: ulid.Make()}
		m.principals.On("GetByID", ctx, p.ID).Return(p, nil)
		m.roles.On("ListByIDs", ctx, mock.Anything).Return([]*access.Role{}, nil)
		m.assignments.On("WithRoleLock", ctx, []string(nil)).Return(boom)

		_, err := m.svc.RemoveUser(ctx, rootActor, p.ID)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("principal lookup", func(t *testing.T) {
		m := newMockedService(t)
		id := ulid.Make()
		m.principals.On("GetByID", ctx, id).Return(nil, boom)

		err := m.svc.ChangeUserRoles(ctx, rootActor, id, nil)
		errutil.AssertErrorCode(t, err, access.CodeOperationFailed)
	})
}
