// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package auth

import (
	"errors"
	"time"

	"github.com/samber/oops"

	"github.com/finlife/identity/pkg/errutil"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrResetBlocked is returned by PrincipalRepository.AdvanceResetBlock when the
// principal's reset block has not elapsed at the time of the update.
var ErrResetBlocked = errors.New("reset block not expired")

// ErrEmailTaken is returned by PrincipalRepository.Create when another
// principal already uses the email.
var ErrEmailTaken = errors.New("email already registered")

// Error codes surfaced by this package. Transport layers map them to
// responses; callers should match with errutil.HasCode.
const (
	CodeInvalidInput         = "AUTH_INVALID_INPUT"
	CodeInvalidCredentials   = "AUTH_INVALID_CREDENTIALS"
	CodeAccountLocked        = "AUTH_ACCOUNT_LOCKED"
	CodeAccountDisabled      = "AUTH_ACCOUNT_DISABLED"
	CodeNotFound             = "AUTH_NOT_FOUND"
	CodeTokenRequired        = "AUTH_TOKEN_REQUIRED"
	CodeLoginFailed          = "AUTH_LOGIN_FAILED"
	CodeLogoutFailed         = "AUTH_LOGOUT_FAILED"
	CodeResetNotFound        = "RESET_NOT_FOUND"
	CodeResetBlockNotExpired = "RESET_BLOCK_NOT_EXPIRED"
	CodeResetInvalidInput    = "RESET_INVALID_INPUT"
	CodeResetInvalidToken    = "RESET_INVALID_OR_EXPIRED_TOKEN"
	CodeResetEmailFailed     = "RESET_EMAIL_DELIVERY_FAILED"
	CodeResetRequestFailed   = "RESET_REQUEST_FAILED"
	CodeResetFailed          = "RESET_PASSWORD_FAILED"
	CodePasswordInvalid      = "PASSWORD_VALIDATION_FAILED"
	CodePasswordReused       = "PASSWORD_REUSED"
	CodeProvisionFailed      = "PROVISION_FAILED"
	CodeEmailTaken           = "AUTH_EMAIL_TAKEN"
)

// Context keys attached to typed failures.
const (
	ctxRemainingAttempts = "remaining_attempts"
	ctxRetryAfter        = "retry_after"
	ctxRule              = "rule"
	ctxField             = "field"
)

func invalidCredentials(remaining int) error {
	return oops.Code(CodeInvalidCredentials).
		With(ctxRemainingAttempts, remaining).
		Errorf("invalid email or password, remaining attempts: %d", remaining)
}

func resetBlockNotExpired(remaining time.Duration) error {
	return oops.Code(CodeResetBlockNotExpired).
		With(ctxRetryAfter, remaining).
		Errorf("another password reset email can be requested in %d minutes", roundMinutes(remaining))
}

// RemainingAttempts extracts the attempts left before lockout from an
// AUTH_INVALID_CREDENTIALS failure.
func RemainingAttempts(err error) (int, bool) {
	if !errutil.HasCode(err, CodeInvalidCredentials) {
		return 0, false
	}
	v, ok := errutil.ContextValue(err, ctxRemainingAttempts)
	if !ok {
		return 0, false
	}
	n, ok := v.(int)
	return n, ok
}

// RetryAfter extracts the remaining cooldown from a RESET_BLOCK_NOT_EXPIRED failure.
func RetryAfter(err error) (time.Duration, bool) {
	if !errutil.HasCode(err, CodeResetBlockNotExpired) {
		return 0, false
	}
	v, ok := errutil.ContextValue(err, ctxRetryAfter)
	if !ok {
		return 0, false
	}
	d, ok := v.(time.Duration)
	return d, ok
}

// RetryAfterMinutes is RetryAfter rounded to whole minutes.
func RetryAfterMinutes(err error) (int, bool) {
	d, ok := RetryAfter(err)
	if !ok {
		return 0, false
	}
	return roundMinutes(d), true
}

// ViolatedRule extracts the failing rule (and PII field, when relevant) from a
// PASSWORD_VALIDATION_FAILED failure.
func ViolatedRule(err error) (rule Rule, field string, ok bool) {
	if !errutil.HasCode(err, CodePasswordInvalid) {
		return "", "", false
	}
	v, ok := errutil.ContextValue(err, ctxRule)
	if !ok {
		return "", "", false
	}
	rule, ok = v.(Rule)
	if f, found := errutil.ContextValue(err, ctxField); found {
		field, _ = f.(string)
	}
	return rule, field, ok
}

func roundMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	// A block still in force never reports 0 minutes.
	return max(1, int(d.Round(time.Minute)/time.Minute))
}
