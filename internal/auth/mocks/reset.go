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

// MockResetTokenRepository is a mock of auth.ResetTokenRepository.
type MockResetTokenRepository struct {
	mock.Mock
}

// NewMockResetTokenRepository creates a MockResetTokenRepository.
func NewMockResetTokenRepository(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockResetTokenRepository {
	m := &MockResetTokenRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockResetTokenRepository) Create(ctx context.Context, token *auth.ResetToken) error {
	ret := m.Called(ctx, token)
	return ret.Error(0)
}

func (m *MockResetTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.ResetToken, error) {
	ret := m.Called(ctx, tokenHash)
	var out *auth.ResetToken
	if v, ok := ret.Get(0).(*auth.ResetToken); ok {
		out = v
	}
	return out, ret.Error(1)
}

func (m *MockResetTokenRepository) DeleteByPrincipal(ctx context.Context, principalID ulid.ULID) error {
	ret := m.Called(ctx, principalID)
	return ret.Error(0)
}

func (m *MockResetTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ret := m.Called(ctx, now)
	var n int64
	if v, ok := ret.Get(0).(int64); ok {
		n = v
	}
	return n, ret.Error(1)
}

// MockPasswordHistoryRepository is a mock of auth.PasswordHistoryRepository.
type MockPasswordHistoryRepository struct {
	mock.Mock
}

// NewMockPasswordHistoryRepository creates a MockPasswordHistoryRepository.
func NewMockPasswordHistoryRepository(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockPasswordHistoryRepository {
	m := &MockPasswordHistoryRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPasswordHistoryRepository) Append(ctx context.Context, entry *auth.PasswordHistoryEntry) error {
	ret := m.Called(ctx, entry)
	return ret.Error(0)
}

func (m *MockPasswordHistoryRepository) ListByPrincipal(ctx context.Context, principalID ulid.ULID) ([]*auth.PasswordHistoryEntry, error) {
	ret := m.Called(ctx, principalID)
	var out []*auth.PasswordHistoryEntry
	if v, ok := ret.Get(0).([]*auth.PasswordHistoryEntry); ok {
		out = v
	}
	return out, ret.Error(1)
}

// MockPasswordHasher is a mock of auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a MockPasswordHasher.
func NewMockPasswordHasher(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPasswordHasher) Hash(password string) (string, error) {
	ret := m.Called(password)
	return ret.String(0), ret.Error(1)
}

func (m *MockPasswordHasher) Verify(password, hash string) bool {
	ret := m.Called(password, hash)
	return ret.Bool(0)
}

// MockNotifier is a mock of auth.Notifier.
type MockNotifier struct {
	mock.Mock
}

// NewMockNotifier creates a MockNotifier.
func NewMockNotifier(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockNotifier {
	m := &MockNotifier{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockNotifier) PasswordReset(ctx context.Context, p *auth.Principal, token string, expiresAt time.Time) error {
	ret := m.Called(ctx, p, token, expiresAt)
	return ret.Error(0)
}

func (m *MockNotifier) Welcome(ctx context.Context, p *auth.Principal, password string) error {
	ret := m.Called(ctx, p, password)
	return ret.Error(0)
}
