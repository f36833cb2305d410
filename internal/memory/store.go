// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

// Package memory provides in-memory implementations of the identity
// repositories, for tests and the memory store mode.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/finlife/identity/internal/access"
	"github.com/finlife/identity/internal/auth"
	"github.com/finlife/identity/internal/token"
)

// Store keeps every entity in maps keyed by id. Relations are id sets.
// All methods are safe for concurrent use; counter updates are atomic.
type Store struct {
	mu          sync.RWMutex
	principals  map[ulid.ULID]*auth.Principal
	resetTokens map[ulid.ULID]*auth.ResetToken
	history     []*auth.PasswordHistoryEntry
	roles       map[ulid.ULID]*access.Role
	permissions map[ulid.ULID]*access.Permission
	revoked     map[string]token.Revocation

	// roleMu serializes WithRoleLock callers.
	roleMu sync.Mutex
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		principals:  make(map[ulid.ULID]*auth.Principal),
		resetTokens: make(map[ulid.ULID]*auth.ResetToken),
		roles:       make(map[ulid.ULID]*access.Role),
		permissions: make(map[ulid.ULID]*access.Permission),
		revoked:     make(map[string]token.Revocation),
	}
}

// Principals returns the principal repository view.
func (s *Store) Principals() auth.PrincipalRepository { return (*principalRepo)(s) }

// ResetTokens returns the reset token repository view.
func (s *Store) ResetTokens() auth.ResetTokenRepository { return (*resetTokenRepo)(s) }

// History returns the password history view.
func (s *Store) History() auth.PasswordHistoryRepository { return (*historyRepo)(s) }

// Roles returns the role repository view.
func (s *Store) Roles() access.RoleRepository { return (*roleRepo)(s) }

// Permissions returns the permission repository view.
func (s *Store) Permissions() access.PermissionRepository { return (*permissionRepo)(s) }

// Assignments returns the role assignment view.
func (s *Store) Assignments() access.AssignmentRepository { return (*assignmentRepo)(s) }

// Revocations returns the token denylist view.
func (s *Store) Revocations() token.RevocationStore { return (*revocationStore)(s) }

func clonePrincipal(p *auth.Principal) *auth.Principal {
	c := *p
	c.RoleIDs = slices.Clone(p.RoleIDs)
	if p.Login.LastLogin != nil {
		t := *p.Login.LastLogin
		c.Login.LastLogin = &t
	}
	if p.Profile.DateOfBirth != nil {
		t := *p.Profile.DateOfBirth
		c.Profile.DateOfBirth = &t
	}
	return &c
}

func cloneRole(r *access.Role) *access.Role {
	c := *r
	c.PermissionIDs = slices.Clone(r.PermissionIDs)
	return &c
}

// principalRepo implements auth.PrincipalRepository.
type principalRepo Store

func (r *principalRepo) Create(_ context.Context, p *auth.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	email := auth.NormalizeEmail(p.Email)
	for _, existing := range r.principals {
		if existing.Email == email {
			return auth.ErrEmailTaken
		}
	}
	c := clonePrincipal(p)
	c.Email = email
	r.principals[p.ID] = c
	r.history = append(r.history, auth.NewPasswordHistoryEntry(p.ID, p.PasswordHash, p.CreatedAt))
	return nil
}

func (r *principalRepo) GetByID(_ context.Context, id ulid.ULID) (*auth.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.principals[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return clonePrincipal(p), nil
}

func (r *principalRepo) GetByEmail(_ context.Context, email string) (*auth.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	email = auth.NormalizeEmail(email)
	for _, p := range r.principals {
		if p.Email == email {
			return clonePrincipal(p), nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *principalRepo) List(_ context.Context) ([]*auth.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*auth.Principal, 0, len(r.principals))
	for _, p := range r.principals {
		out = append(out, clonePrincipal(p))
	}
	slices.SortFunc(out, func(a, b *auth.Principal) int { return a.ID.Compare(b.ID) })
	return out, nil
}

func (r *principalRepo) IncrementLoginAttempts(_ context.Context, id ulid.ULID, maxAttempts int) (int, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.principals[id]
	if !ok {
		return 0, false, auth.ErrNotFound
	}
	p.Login.Attempts++
	if p.Login.Attempts >= maxAttempts {
		p.Locked = true
	}
	p.UpdatedAt = time.Now().UTC()
	return p.Login.Attempts, p.Locked, nil
}

func (r *principalRepo) ResetLoginAttempts(_ context.Context, id ulid.ULID) error {
	return r.update(id, func(p *auth.Principal) { p.Login.Attempts = 0 })
}

func (r *principalRepo) RecordLogin(_ context.Context, id ulid.ULID, at time.Time) error {
	return r.update(id, func(p *auth.Principal) { p.Login.LastLogin = &at })
}

func (r *principalRepo) AdvanceResetBlock(_ context.Context, id ulid.ULID, now time.Time) (auth.LoginState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.principals[id]
	if !ok {
		return auth.LoginState{}, auth.ErrNotFound
	}
	if p.Login.ResetBlockUntil.After(now) {
		return p.Login, auth.ErrResetBlocked
	}
	p.Login.ResetAttempts++
	p.Login.ResetBlockUntil = now.Add(time.Duration(p.Login.ResetAttempts) * time.Minute)
	p.UpdatedAt = time.Now().UTC()
	return p.Login, nil
}

func (r *principalRepo) CompletePasswordReset(_ context.Context, c auth.PasswordChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.principals[c.PrincipalID]
	if !ok {
		return auth.ErrNotFound
	}
	var claimed bool
	for _, t := range r.resetTokens {
		if t.TokenHash == c.TokenHash && t.PrincipalID == c.PrincipalID && !t.IsExpired(c.At) {
			claimed = true
			break
		}
	}
	if !claimed {
		return auth.ErrNotFound
	}
	for id, t := range r.resetTokens {
		if t.PrincipalID == c.PrincipalID {
			delete(r.resetTokens, id)
		}
	}
	p.PasswordHash = c.PasswordHash
	p.Locked = false
	p.Enabled = true
	p.Login.Attempts = 0
	p.Login.ResetAttempts = 0
	p.UpdatedAt = time.Now().UTC()
	r.history = append(r.history, auth.NewPasswordHistoryEntry(c.PrincipalID, c.PasswordHash, c.At))
	return nil
}

func (r *principalRepo) update(id ulid.ULID, fn func(p *auth.Principal)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.principals[id]
	if !ok {
		return auth.ErrNotFound
	}
	fn(p)
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// resetTokenRepo implements auth.ResetTokenRepository.
type resetTokenRepo Store

func (r *resetTokenRepo) Create(_ context.Context, t *auth.ResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *t
	r.resetTokens[t.ID] = &c
	return nil
}

func (r *resetTokenRepo) GetByTokenHash(_ context.Context, tokenHash string) (*auth.ResetToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.resetTokens {
		if t.TokenHash == tokenHash {
			c := *t
			return &c, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *resetTokenRepo) DeleteByPrincipal(_ context.Context, principalID ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.resetTokens {
		if t.PrincipalID == principalID {
			delete(r.resetTokens, id)
		}
	}
	return nil
}

func (r *resetTokenRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, t := range r.resetTokens {
		if t.ExpiresAt.Before(now) {
			delete(r.resetTokens, id)
			n++
		}
	}
	return n, nil
}

// historyRepo implements auth.PasswordHistoryRepository.
type historyRepo Store

func (r *historyRepo) Append(_ context.Context, entry *auth.PasswordHistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *entry
	r.history = append(r.history, &c)
	return nil
}

func (r *historyRepo) ListByPrincipal(_ context.Context, principalID ulid.ULID) ([]*auth.PasswordHistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*auth.PasswordHistoryEntry
	for _, e := range r.history {
		if e.PrincipalID == principalID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

// revocationStore implements token.RevocationStore.
type revocationStore Store

func (r *revocationStore) Revoke(_ context.Context, raw string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := token.Hash(raw)
	if _, ok := r.revoked[key]; ok {
		return nil
	}
	r.revoked[key] = token.Revocation{TokenHash: key, RevokedAt: time.Now().UTC(), ExpiresAt: expiresAt}
	return nil
}

func (r *revocationStore) IsRevoked(_ context.Context, raw string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.revoked[token.Hash(raw)]
	return ok, nil
}
