// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/finlife/identity/pkg/errutil"
)

// ResetRequestResult describes an accepted reset request.
type ResetRequestResult struct {
	ExpiresAt  time.Time
	BlockUntil time.Time
	// Warning is set when the token was committed but the email could not be
	// handed to the mail queue. It carries RESET_EMAIL_DELIVERY_FAILED.
	Warning error
}

// PasswordResetServiceDeps holds the collaborators of PasswordResetService.
type PasswordResetServiceDeps struct {
	Principals PrincipalRepository
	Tokens     ResetTokenRepository
	History    PasswordHistoryRepository
	Hasher     PasswordHasher
	Notifier   Notifier
	Logger     *slog.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
	// Expiration defaults to DefaultResetExpiration.
	Expiration time.Duration
}

// PasswordResetService handles password reset operations.
type PasswordResetService struct {
	principals PrincipalRepository
	tokens     ResetTokenRepository
	history    PasswordHistoryRepository
	hasher     PasswordHasher
	notifier   Notifier
	logger     *slog.Logger
	now        func() time.Time
	expiration time.Duration
}

// NewPasswordResetService creates a new PasswordResetService.
func NewPasswordResetService(deps PasswordResetServiceDeps) (*PasswordResetService, error) {
	switch {
	case deps.Principals == nil:
		return nil, oops.Errorf("principal repository is required")
	case deps.Tokens == nil:
		return nil, oops.Errorf("reset token repository is required")
	case deps.History == nil:
		return nil, oops.Errorf("password history repository is required")
	case deps.Hasher == nil:
		return nil, oops.Errorf("password hasher is required")
	case deps.Notifier == nil:
		return nil, oops.Errorf("notifier is required")
	}
	s := &PasswordResetService{
		principals: deps.Principals,
		tokens:     deps.Tokens,
		history:    deps.History,
		hasher:     deps.Hasher,
		notifier:   deps.Notifier,
		logger:     deps.Logger,
		now:        deps.Clock,
		expiration: deps.Expiration,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.expiration <= 0 {
		s.expiration = DefaultResetExpiration
	}
	return s, nil
}

// RequestReset issues a reset token for the principal with email and enqueues
// the reset email.
//
// Requests are throttled: each accepted request blocks the next one for as
// many minutes as requests have been accepted since the last completed reset.
// A request inside the block fails with RESET_BLOCK_NOT_EXPIRED carrying the
// time left. Once the token and block are committed, a failure to enqueue the
// email is reported in ResetRequestResult.Warning and nothing is rolled back.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) (*ResetRequestResult, error) {
	if email == "" {
		return nil, oops.Code(CodeResetInvalidInput).Errorf("email is required")
	}

	p, err := s.principals.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			RecordResetRequest(OutcomeNotFound)
			return nil, oops.Code(CodeResetNotFound).
				With("email", NormalizeEmail(email)).
				Wrapf(ErrNotFound, "no principal with this email")
		}
		RecordResetRequest(OutcomeError)
		return nil, oops.Code(CodeResetRequestFailed).
			With("operation", "get principal by email").
			Wrap(err)
	}

	now := s.now().UTC()
	if remaining := p.Login.ResetBlockUntil.Sub(now); remaining > 0 {
		RecordResetRequest(OutcomeBlocked)
		return nil, resetBlockNotExpired(remaining)
	}

	state, err := s.principals.AdvanceResetBlock(ctx, p.ID, now)
	if err != nil {
		if errors.Is(err, ErrResetBlocked) {
			// A concurrent request won the race.
			RecordResetRequest(OutcomeBlocked)
			return nil, resetBlockNotExpired(max(time.Minute, state.ResetBlockUntil.Sub(now)))
		}
		RecordResetRequest(OutcomeError)
		return nil, oops.Code(CodeResetRequestFailed).
			With("operation", "advance reset block").
			With("principal_id", p.ID.String()).
			Wrap(err)
	}
	p.Login = state

	raw, hash, err := GenerateResetToken()
	if err != nil {
		RecordResetRequest(OutcomeError)
		return nil, err
	}
	reset, err := NewResetToken(p.ID, hash, now.Add(s.expiration))
	if err != nil {
		RecordResetRequest(OutcomeError)
		return nil, err
	}

	// Older links stop working once a new one is issued.
	if err := s.tokens.DeleteByPrincipal(ctx, p.ID); err != nil {
		RecordResetRequest(OutcomeError)
		return nil, oops.Code(CodeResetRequestFailed).
			With("operation", "delete superseded tokens").
			With("principal_id", p.ID.String()).
			Wrap(err)
	}
	if err := s.tokens.Create(ctx, reset); err != nil {
		RecordResetRequest(OutcomeError)
		return nil, oops.Code(CodeResetRequestFailed).
			With("operation", "create reset token").
			With("principal_id", p.ID.String()).
			Wrap(err)
	}

	result := &ResetRequestResult{ExpiresAt: reset.ExpiresAt, BlockUntil: state.ResetBlockUntil}
	if err := s.notifier.PasswordReset(ctx, p, raw, reset.ExpiresAt); err != nil {
		result.Warning = oops.Code(CodeResetEmailFailed).
			With("principal_id", p.ID.String()).
			Wrapf(err, "reset email could not be queued")
		errutil.LogErrorContext(ctx, s.logger, "reset email not queued", err,
			"operation", "enqueue_reset_email",
			"principal_id", p.ID.String())
		RecordResetRequest(OutcomeEmailFailed)
		return result, nil
	}

	RecordResetRequest(OutcomeSuccess)
	return result, nil
}

// ConsumeReset sets a new password using a reset token.
//
// On success the principal is unlocked and enabled, both attempt counters are
// zeroed, every outstanding reset token of the principal is deleted and the
// new hash joins the password history. All of it commits together with the
// spending of the token, so of two concurrent consumes of one token only one
// succeeds. This is the only operation that clears the locked flag.
func (s *PasswordResetService) ConsumeReset(ctx context.Context, tokenValue, password, confirmation string) error {
	if tokenValue == "" || password == "" {
		return oops.Code(CodeResetInvalidInput).Errorf("token and password are required")
	}

	reset, err := s.tokens.GetByTokenHash(ctx, HashResetToken(tokenValue))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeResetInvalidToken).Errorf("reset token is invalid or expired")
		}
		return oops.Code(CodeResetFailed).
			With("operation", "get reset token").
			Wrap(err)
	}
	if reset.IsExpired(s.now()) {
		return oops.Code(CodeResetInvalidToken).Errorf("reset token is invalid or expired")
	}

	p, err := s.principals.GetByID(ctx, reset.PrincipalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeResetInvalidToken).Errorf("reset token is invalid or expired")
		}
		return oops.Code(CodeResetFailed).
			With("operation", "get principal").
			Wrap(err)
	}

	if err := ValidatePassword(password, confirmation, p.PII()); err != nil {
		return err
	}

	entries, err := s.history.ListByPrincipal(ctx, p.ID)
	if err != nil {
		return oops.Code(CodeResetFailed).
			With("operation", "list password history").
			With("principal_id", p.ID.String()).
			Wrap(err)
	}
	for _, entry := range entries {
		if s.hasher.Verify(password, entry.PasswordHash) {
			return oops.Code(CodePasswordReused).
				With("principal_id", p.ID.String()).
				Errorf("password was used before, choose a different one")
		}
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return oops.Code(CodeResetFailed).
			With("operation", "hash password").
			Wrap(err)
	}

	err = s.principals.CompletePasswordReset(ctx, PasswordChange{
		PrincipalID:  p.ID,
		TokenHash:    reset.TokenHash,
		PasswordHash: hash,
		At:           s.now().UTC(),
	})
	if errors.Is(err, ErrNotFound) {
		return oops.Code(CodeResetInvalidToken).Errorf("reset token is invalid or expired")
	}
	if err != nil {
		return oops.Code(CodeResetFailed).
			With("operation", "complete password reset").
			With("principal_id", p.ID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "password reset completed", "principal_id", p.ID.String())
	return nil
}

// PurgeExpiredTokens deletes reset tokens that are past their expiry.
func (s *PasswordResetService) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	n, err := s.tokens.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, oops.Code(CodeResetFailed).With("operation", "delete expired tokens").Wrap(err)
	}
	return n, nil
}
