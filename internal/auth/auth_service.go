// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/finlife/identity/internal/token"
	"github.com/finlife/identity/pkg/errutil"
)

// DefaultTokenTTL is the bearer token lifetime when none is configured.
const DefaultTokenTTL = 24 * time.Hour

// dummyPasswordHash is used when a principal doesn't exist to prevent timing attacks.
// We still run password verification to make response time consistent.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// AuthResult is a successful authentication.
type AuthResult struct {
	Token       string
	ExpiresAt   time.Time
	PrincipalID string
}

// AuthServiceDeps holds the collaborators of Service.
type AuthServiceDeps struct {
	Principals PrincipalRepository
	Hasher     PasswordHasher
	Tokens     *token.Verifier
	Logger     *slog.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
	// MaxAttempts defaults to DefaultMaxLoginAttempts.
	MaxAttempts int
	// TokenTTL defaults to DefaultTokenTTL.
	TokenTTL time.Duration
}

// Service authenticates principals and manages their bearer tokens.
type Service struct {
	principals PrincipalRepository
	hasher     PasswordHasher
	tokens     *token.Verifier
	lockout    *AccountLockout
	logger     *slog.Logger
	now        func() time.Time
	tokenTTL   time.Duration
}

// NewAuthService creates a new Service.
func NewAuthService(deps AuthServiceDeps) (*Service, error) {
	if deps.Principals == nil {
		return nil, oops.Errorf("principal repository is required")
	}
	if deps.Hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if deps.Tokens == nil {
		return nil, oops.Errorf("token verifier is required")
	}
	s := &Service{
		principals: deps.Principals,
		hasher:     deps.Hasher,
		tokens:     deps.Tokens,
		lockout:    NewAccountLockout(deps.Principals, deps.MaxAttempts),
		logger:     deps.Logger,
		now:        deps.Clock,
		tokenTTL:   deps.TokenTTL,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.tokenTTL <= 0 {
		s.tokenTTL = DefaultTokenTTL
	}
	return s, nil
}

// Lockout returns the lockout state machine used by the service.
func (s *Service) Lockout() *AccountLockout {
	return s.lockout
}

// Authenticate verifies email and password and issues a bearer token.
//
// A locked principal is rejected before its password is checked. A wrong
// password fails with AUTH_INVALID_CREDENTIALS carrying the attempts left,
// or AUTH_ACCOUNT_LOCKED when this failure reached the limit. A correct
// password on a disabled principal fails with AUTH_ACCOUNT_DISABLED.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*AuthResult, error) {
	if email == "" || password == "" {
		RecordAuthentication(OutcomeInvalidCredentials)
		return nil, oops.Code(CodeInvalidInput).Errorf("email and password are required")
	}

	p, err := s.principals.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Keep response time independent of whether the email exists.
			s.hasher.Verify(password, dummyPasswordHash)
			RecordAuthentication(OutcomeNotFound)
			return nil, oops.Code(CodeNotFound).
				With("email", NormalizeEmail(email)).
				Wrapf(ErrNotFound, "no principal with this email")
		}
		RecordAuthentication(OutcomeError)
		return nil, oops.Code(CodeLoginFailed).
			With("operation", "get principal by email").
			Wrap(err)
	}

	if s.lockout.State(p) == StateLocked {
		RecordAuthentication(OutcomeLocked)
		return nil, oops.Code(CodeAccountLocked).
			With("principal_id", p.ID.String()).
			Errorf("account is locked, reset the password to unlock it")
	}

	if !s.hasher.Verify(password, p.PasswordHash) {
		return nil, s.failLogin(ctx, p)
	}

	if err := s.lockout.RecordSuccess(ctx, p); err != nil {
		RecordAuthentication(OutcomeError)
		return nil, err
	}

	if !p.Enabled {
		RecordAuthentication(OutcomeDisabled)
		return nil, oops.Code(CodeAccountDisabled).
			With("principal_id", p.ID.String()).
			Errorf("account is disabled, complete a password reset to activate it")
	}

	now := s.now().UTC()
	raw, err := s.tokens.Codec().Issue(p.ID.String(), now, s.tokenTTL)
	if err != nil {
		RecordAuthentication(OutcomeError)
		return nil, oops.Code(CodeLoginFailed).
			With("operation", "issue token").
			With("principal_id", p.ID.String()).
			Wrap(err)
	}

	if err := s.principals.RecordLogin(ctx, p.ID, now); err != nil {
		errutil.LogWarn(s.logger, "best-effort last login update failed", err,
			"operation", "record_login",
			"principal_id", p.ID.String())
	} else {
		p.Login.LastLogin = &now
	}

	RecordAuthentication(OutcomeSuccess)
	return &AuthResult{
		Token:       raw,
		ExpiresAt:   now.Add(s.tokenTTL),
		PrincipalID: p.ID.String(),
	}, nil
}

func (s *Service) failLogin(ctx context.Context, p *Principal) error {
	result, err := s.lockout.RecordFailure(ctx, p)
	if err != nil {
		RecordAuthentication(OutcomeError)
		return err
	}
	if result.Locked {
		RecordAuthentication(OutcomeLocked)
		s.logger.WarnContext(ctx, "account locked after failed logins",
			"principal_id", p.ID.String(),
			"attempts", result.Attempts)
		return oops.Code(CodeAccountLocked).
			With("principal_id", p.ID.String()).
			With(ctxRemainingAttempts, 0).
			Errorf("account locked due to too many failed login attempts")
	}
	RecordAuthentication(OutcomeInvalidCredentials)
	return invalidCredentials(result.Remaining)
}

// Logout revokes raw. The token does not need to be valid: expired, revoked
// and unparseable tokens are all accepted.
func (s *Service) Logout(ctx context.Context, raw string) error {
	if raw == "" {
		return oops.Code(CodeTokenRequired).Errorf("bearer token is required")
	}
	if err := s.tokens.Revoke(ctx, raw, s.tokenTTL); err != nil {
		return oops.Code(CodeLogoutFailed).
			With("operation", "revoke token").
			Wrap(err)
	}
	return nil
}

// Validate checks raw against the denylist, its signature and its expiry.
func (s *Service) Validate(ctx context.Context, raw string) (token.Claims, error) {
	return s.tokens.Check(ctx, raw)
}

// IsRevoked reports whether raw has been revoked.
func (s *Service) IsRevoked(ctx context.Context, raw string) (bool, error) {
	return s.tokens.IsRevoked(ctx, raw)
}
