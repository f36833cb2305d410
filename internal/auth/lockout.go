// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package auth

import (
	"context"

	"github.com/samber/oops"
)

// DefaultMaxLoginAttempts is the number of consecutive failed logins that locks an account.
const DefaultMaxLoginAttempts = 6

// LockoutState is the lockout state of a principal.
type LockoutState string

// Lockout states.
const (
	StateActive LockoutState = "active"
	StateLocked LockoutState = "locked"
)

// FailureResult is the outcome of recording a failed login.
type FailureResult struct {
	Attempts  int
	Remaining int
	// Locked is true when this failure reached the threshold or the
	// account was already locked by a concurrent failure.
	Locked bool
}

// AccountLockout drives the login-attempt state machine. Unlocking is not
// reachable from here: only a completed password reset clears locked.
type AccountLockout struct {
	principals  PrincipalRepository
	maxAttempts int
}

// NewAccountLockout creates an AccountLockout. maxAttempts <= 0 uses DefaultMaxLoginAttempts.
func NewAccountLockout(principals PrincipalRepository, maxAttempts int) *AccountLockout {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxLoginAttempts
	}
	return &AccountLockout{principals: principals, maxAttempts: maxAttempts}
}

// MaxAttempts returns the configured lock threshold.
func (l *AccountLockout) MaxAttempts() int {
	return l.maxAttempts
}

// State classifies p.
func (l *AccountLockout) State(p *Principal) LockoutState {
	if p.Locked {
		return StateLocked
	}
	return StateActive
}

// RecordFailure atomically increments the attempt counter and locks the
// account on the attempt that reaches the threshold. p is updated in place.
func (l *AccountLockout) RecordFailure(ctx context.Context, p *Principal) (FailureResult, error) {
	attempts, locked, err := l.principals.IncrementLoginAttempts(ctx, p.ID, l.maxAttempts)
	if err != nil {
		return FailureResult{}, oops.Code(CodeLoginFailed).
			With("operation", "increment login attempts").
			With("principal_id", p.ID.String()).
			Wrap(err)
	}
	p.Login.Attempts = attempts
	p.Locked = locked
	if locked && attempts == l.maxAttempts {
		RecordLockout()
	}
	return FailureResult{
		Attempts:  attempts,
		Remaining: max(0, l.maxAttempts-attempts),
		Locked:    locked,
	}, nil
}

// RecordSuccess resets the attempt counter. It does not clear locked.
func (l *AccountLockout) RecordSuccess(ctx context.Context, p *Principal) error {
	if err := l.principals.ResetLoginAttempts(ctx, p.ID); err != nil {
		return oops.Code(CodeLoginFailed).
			With("operation", "reset login attempts").
			With("principal_id", p.ID.String()).
			Wrap(err)
	}
	p.Login.Attempts = 0
	return nil
}
