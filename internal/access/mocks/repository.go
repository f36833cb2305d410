// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

// Package mocks provides testify mocks for the access repositories.
package mocks

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/finlife/identity/internal/access"
)

type testingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockRoleRepository is a mock of access.RoleRepository.
type MockRoleRepository struct {
	mock.Mock
}

// NewMockRoleRepository creates a MockRoleRepository whose expectations are
// asserted when the test ends.
func NewMockRoleRepository(t testingT) *MockRoleRepository {
	m := &MockRoleRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockRoleRepository) Create(ctx context.Context, r *access.Role) error {
	return m.Called(ctx, r).Error(0)
}

func (m *MockRoleRepository) GetByID(ctx context.Context, id ulid.ULID) (*access.Role, error) {
	ret := m.Called(ctx, id)
	r, _ := ret.Get(0).(*access.Role)
	return r, ret.Error(1)
}

func (m *MockRoleRepository) GetByName(ctx context.Context, name string) (*access.Role, error) {
	ret := m.Called(ctx, name)
	r, _ := ret.Get(0).(*access.Role)
	return r, ret.Error(1)
}

func (m *MockRoleRepository) ListByIDs(ctx context.Context, ids []ulid.ULID) ([]*access.Role, error) {
	ret := m.Called(ctx, ids)
	r, _ := ret.Get(0).([]*access.Role)
	return r, ret.Error(1)
}

func (m *MockRoleRepository) List(ctx context.Context) ([]*access.Role, error) {
	ret := m.Called(ctx)
	r, _ := ret.Get(0).([]*access.Role)
	return r, ret.Error(1)
}

func (m *MockRoleRepository) Update(ctx context.Context, r *access.Role) error {
	return m.Called(ctx, r).Error(0)
}

func (m *MockRoleRepository) Delete(ctx context.Context, id ulid.ULID) error {
	return m.Called(ctx, id).Error(0)
}

// MockPermissionRepository is a mock of access.PermissionRepository.
type MockPermissionRepository struct {
	mock.Mock
}

// NewMockPermissionRepository creates a MockPermissionRepository whose
// expectations are asserted when the test ends.
func NewMockPermissionRepository(t testingT) *MockPermissionRepository {
	m := &MockPermissionRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPermissionRepository) Create(ctx context.Context, p *access.Permission) error {
	return m.Called(ctx, p).Error(0)
}

func (m *MockPermissionRepository) GetByID(ctx context.Context, id ulid.ULID) (*access.Permission, error) {
	ret := m.Called(ctx, id)
	p, _ := ret.Get(0).(*access.Permission)
	return p, ret.Error(1)
}

func (m *MockPermissionRepository) GetByName(ctx context.Context, name string) (*access.Permission, error) {
	ret := m.Called(ctx, name)
	p, _ := ret.Get(0).(*access.Permission)
	return p, ret.Error(1)
}

func (m *MockPermissionRepository) ListByIDs(ctx context.Context, ids []ulid.ULID) ([]*access.Permission, error) {
	ret := m.Called(ctx, ids)
	p, _ := ret.Get(0).([]*access.Permission)
	return p, ret.Error(1)
}

func (m *MockPermissionRepository) List(ctx context.Context) ([]*access.Permission, error) {
	ret := m.Called(ctx)
	p, _ := ret.Get(0).([]*access.Permission)
	return p, ret.Error(1)
}

func (m *MockPermissionRepository) Update(ctx context.Context, p *access.Permission) error {
	return m.Called(ctx, p).Error(0)
}

func (m *MockPermissionRepository) Delete(ctx context.Context, id ulid.ULID) error {
	return m.Called(ctx, id).Error(0)
}

// MockAssignmentRepository is a mock of access.AssignmentRepository.
// WithRoleLock records the call and, unless it is configured to return an
// error, runs fn with Tx.
type MockAssignmentRepository struct {
	mock.Mock
	Tx access.AssignmentTx
}

// NewMockAssignmentRepository creates a MockAssignmentRepository whose
// expectations are asserted when the test ends.
func NewMockAssignmentRepository(t testingT) *MockAssignmentRepository {
	m := &MockAssignmentRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockAssignmentRepository) CountHolders(ctx context.Context, roleName string) (int, error) {
	ret := m.Called(ctx, roleName)
	return ret.Int(0), ret.Error(1)
}

func (m *MockAssignmentRepository) WithRoleLock(ctx context.Context, roleNames []string, fn func(ctx context.Context, tx access.AssignmentTx) error) error {
	if err := m.Called(ctx, roleNames).Error(0); err != nil {
		return err
	}
	return fn(ctx, m.Tx)
}
