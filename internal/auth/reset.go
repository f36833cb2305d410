// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Reset token configuration.
const (
	ResetTokenBytes = 32 // 32 bytes = 64 hex chars

	// DefaultResetExpiration is the lifetime of a reset token when none is configured.
	DefaultResetExpiration = 30 * time.Minute
)

// ResetToken is a single-use password reset token. Only the SHA-256 of the
// token value is stored; the plaintext goes out by email.
type ResetToken struct {
	ID          ulid.ULID
	PrincipalID ulid.ULID
	TokenHash   string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// IsExpired reports whether the token is past its expiry at now.
func (r *ResetToken) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// NewResetToken creates a ResetToken for principalID from a token hash.
func NewResetToken(principalID ulid.ULID, tokenHash string, expiresAt time.Time) (*ResetToken, error) {
	if principalID.IsZero() {
		return nil, oops.Code(CodeResetRequestFailed).Errorf("principal ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code(CodeResetRequestFailed).Errorf("token hash cannot be empty")
	}
	return &ResetToken{
		ID:          ulid.Make(),
		PrincipalID: principalID,
		TokenHash:   tokenHash,
		ExpiresAt:   expiresAt,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// GenerateResetToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error).
func GenerateResetToken() (token, hash string, err error) {
	tokenBytes := make([]byte, ResetTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("RESET_TOKEN_GENERATE_FAILED").Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	return token, HashResetToken(token), nil
}

// HashResetToken computes the stored form of a reset token.
func HashResetToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// ResetTokenRepository manages reset token persistence.
type ResetTokenRepository interface {
	// Create stores a new reset token.
	Create(ctx context.Context, token *ResetToken) error

	// GetByTokenHash retrieves a reset token by its hash.
	// Returns ErrNotFound if absent.
	GetByTokenHash(ctx context.Context, tokenHash string) (*ResetToken, error)

	// DeleteByPrincipal removes every reset token of a principal.
	DeleteByPrincipal(ctx context.Context, principalID ulid.ULID) error

	// DeleteExpired removes tokens that expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// PasswordHistoryEntry records a password hash a principal has used.
type PasswordHistoryEntry struct {
	ID           ulid.ULID
	PrincipalID  ulid.ULID
	PasswordHash string
	CreatedAt    time.Time
}

// PasswordHistoryRepository is the append-only password history.
type PasswordHistoryRepository interface {
	// Append adds an entry.
	Append(ctx context.Context, entry *PasswordHistoryEntry) error

	// ListByPrincipal returns a principal's entries in creation order.
	ListByPrincipal(ctx context.Context, principalID ulid.ULID) ([]*PasswordHistoryEntry, error)
}

// NewPasswordHistoryEntry creates an entry with a fresh ID.
func NewPasswordHistoryEntry(principalID ulid.ULID, hash string, at time.Time) *PasswordHistoryEntry {
	return &PasswordHistoryEntry{
		ID:           ulid.Make(),
		PrincipalID:  principalID,
		PasswordHash: hash,
		CreatedAt:    at,
	}
}
