// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/finlife/identity/internal/auth"
)

// MockPrincipalRepository is a mock of auth.PrincipalRepository.
type MockPrincipalRepository struct {
	mock.Mock
}

// NewMockPrincipalRepository creates a MockPrincipalRepository whose
// expectations are asserted when the test ends.
func NewMockPrincipalRepository(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockPrincipalRepository {
	m := &MockPrincipalRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPrincipalRepository) Create(ctx context.Context, p *auth.Principal) error {
	ret := m.Called(ctx, p)
	return ret.Error(0)
}

func (m *MockPrincipalRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Principal, error) {
	ret := m.Called(ctx, id)
	return principalOrNil(ret.Get(0)), ret.Error(1)
}

func (m *MockPrincipalRepository) GetByEmail(ctx context.Context, email string) (*auth.Principal, error) {
	ret := m.Called(ctx, email)
	return principalOrNil(ret.Get(0)), ret.Error(1)
}

func (m *MockPrincipalRepository) List(ctx context.Context) ([]*auth.Principal, error) {
	ret := m.Called(ctx)
	var out []*auth.Principal
	if v, ok := ret.Get(0).([]*auth.Principal); ok {
		out = v
	}
	return out, ret.Error(1)
}

func (m *MockPrincipalRepository) IncrementLoginAttempts(ctx context.Context, id ulid.ULID, maxAttempts int) (int, bool, error) {
	ret := m.Called(ctx, id, maxAttempts)
	return ret.Int(0), ret.Bool(1), ret.Error(2)
}

func (m *MockPrincipalRepository) ResetLoginAttempts(ctx context.Context, id ulid.ULID) error {
	ret := m.Called(ctx, id)
	return ret.Error(0)
}

func (m *MockPrincipalRepository) RecordLogin(ctx context.Context, id ulid.ULID, at time.Time) error {
	ret := m.Called(ctx, id, at)
	return ret.Error(0)
}

func (m *MockPrincipalRepository) AdvanceResetBlock(ctx context.Context, id ulid.ULID, now time.Time) (auth.LoginState, error) {
	ret := m.Called(ctx, id, now)
	var state auth.LoginState
	if v, ok := ret.Get(0).(auth.LoginState); ok {
		state = v
	}
	return state, ret.Error(1)
}

func (m *MockPrincipalRepository) CompletePasswordReset(ctx context.Context, change auth.PasswordChange) error {
	ret := m.Called(ctx, change)
	return ret.Error(0)
}

func principalOrNil(v any) *auth.Principal {
	if p, ok := v.(*auth.Principal); ok {
		return p
	}
	return nil
}
