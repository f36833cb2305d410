// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Principal is an authenticatable account.
type Principal struct {
	ID           ulid.ULID
	Email        string
	PasswordHash string
	Enabled      bool
	Locked       bool
	RoleIDs      []ulid.ULID
	Login        LoginState
	Profile      Profile
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LoginState tracks login and password reset counters for a principal.
type LoginState struct {
	Attempts        int
	LastLogin       *time.Time
	ResetAttempts   int
	ResetBlockUntil time.Time
}

// Profile holds the personal data a password must not be derived from.
type Profile struct {
	FirstName   string
	LastName    string
	DateOfBirth *time.Time
	Phone       string
	CPF         string
}

// FullName joins first and last name.
func (p Profile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// PII returns the owner data checked by ValidatePassword.
func (p *Principal) PII() OwnerPII {
	return OwnerPII{
		Email:       p.Email,
		FirstName:   p.Profile.FirstName,
		LastName:    p.Profile.LastName,
		DateOfBirth: p.Profile.DateOfBirth,
		Phone:       p.Profile.Phone,
		CPF:         p.Profile.CPF,
	}
}

// HasRole reports whether the principal holds roleID.
func (p *Principal) HasRole(roleID ulid.ULID) bool {
	for _, id := range p.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

// NewPrincipal creates a disabled, unlocked principal. Freshly provisioned
// accounts stay disabled until their owner completes a password reset.
func NewPrincipal(email, passwordHash string, profile Profile, roleIDs []ulid.ULID) (*Principal, error) {
	email = NormalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, oops.Code(CodeInvalidInput).With("email", email).Errorf("email address is invalid")
	}
	if passwordHash == "" {
		return nil, oops.Code(CodeInvalidInput).Errorf("password hash cannot be empty")
	}
	now := time.Now().UTC()
	return &Principal{
		ID:           ulid.Make(),
		Email:        email,
		PasswordHash: passwordHash,
		RoleIDs:      roleIDs,
		Profile:      profile,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NormalizeEmail lower-cases and trims an email address. Emails are unique
// case-insensitively.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// PrincipalRepository manages principal persistence. Counter mutations are
// single atomic statements so concurrent requests cannot lose updates.
type PrincipalRepository interface {
	// Create stores a new principal with its role assignments and records its
	// password hash as the first password history entry, in one commit.
	// Returns ErrEmailTaken if the email is in use.
	Create(ctx context.Context, p *Principal) error

	// GetByID retrieves a principal by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Principal, error)

	// GetByEmail retrieves a principal by email (case-insensitive).
	// Returns ErrNotFound if no principal has the given email.
	GetByEmail(ctx context.Context, email string) (*Principal, error)

	// List returns all principals ordered by creation.
	List(ctx context.Context) ([]*Principal, error)

	// IncrementLoginAttempts adds one failed attempt and sets locked when the
	// new count reaches maxAttempts. Returns the resulting count and lock flag.
	IncrementLoginAttempts(ctx context.Context, id ulid.ULID, maxAttempts int) (attempts int, locked bool, err error)

	// ResetLoginAttempts sets the attempt counter to 0. It never clears locked.
	ResetLoginAttempts(ctx context.Context, id ulid.ULID) error

	// RecordLogin stores the last successful login time.
	RecordLogin(ctx context.Context, id ulid.ULID, at time.Time) error

	// AdvanceResetBlock increments resetAttempts and sets resetBlockUntil to
	// now + resetAttempts minutes, only if the current block has elapsed.
	// Returns the current state with ErrResetBlocked when it has not.
	AdvanceResetBlock(ctx context.Context, id ulid.ULID, now time.Time) (LoginState, error)

	// CompletePasswordReset spends the reset token, deletes the principal's
	// other reset tokens, stores the new hash, unlocks and enables the
	// principal, zeroes both attempt counters and appends the hash to the
	// password history. Nothing is written unless all of it is.
	// Returns ErrNotFound if the token is already spent or expired at
	// change.At, so a token completes at most one reset.
	CompletePasswordReset(ctx context.Context, change PasswordChange) error
}

// PasswordChange is a validated reset ready to commit.
type PasswordChange struct {
	PrincipalID ulid.ULID
	// TokenHash identifies the reset token being spent.
	TokenHash    string
	PasswordHash string
	At           time.Time
}
