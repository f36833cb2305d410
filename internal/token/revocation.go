// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package token

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/samber/oops"
)

// Revocation is a denylist entry. Tokens are stored by digest only.
type Revocation struct {
	TokenHash string
	RevokedAt time.Time
	ExpiresAt time.Time
}

// RevocationStore is the append-only token denylist.
type RevocationStore interface {
	// Revoke adds raw to the denylist. Revoking twice is not an error.
	// expiresAt is when the token stops being valid on its own; stores may
	// use it to prune.
	Revoke(ctx context.Context, raw string, expiresAt time.Time) error

	// IsRevoked reports whether raw has been revoked.
	IsRevoked(ctx context.Context, raw string) (bool, error)
}

// Hash returns the digest under which a raw token is stored.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Verifier checks bearer tokens against the denylist and the codec.
type Verifier struct {
	codec *Codec
	store RevocationStore
}

// NewVerifier composes codec and store.
func NewVerifier(codec *Codec, store RevocationStore) (*Verifier, error) {
	if codec == nil {
		return nil, oops.Errorf("token codec is required")
	}
	if store == nil {
		return nil, oops.Errorf("revocation store is required")
	}
	return &Verifier{codec: codec, store: store}, nil
}

// Check returns the claims of raw if it is not revoked, correctly signed and
// unexpired. The denylist is consulted before the signature and expiry, so a
// revoked token is reported as revoked even while otherwise valid.
func (v *Verifier) Check(ctx context.Context, raw string) (Claims, error) {
	if raw == "" {
		RecordTokenCheck(ResultMalformed)
		return Claims{}, malformed(oops.Errorf("empty token"))
	}
	revoked, err := v.store.IsRevoked(ctx, raw)
	if err != nil {
		RecordTokenCheck(ResultError)
		return Claims{}, oops.Code(CodeCheckFailed).With("operation", "is revoked").Wrap(err)
	}
	if revoked {
		RecordTokenCheck(ResultRevoked)
		return Claims{}, oops.Code(CodeRevoked).Wrap(ErrRevoked)
	}
	claims, err := v.codec.Validate(raw)
	if err != nil {
		RecordTokenCheck(resultFor(err))
		return Claims{}, err
	}
	RecordTokenCheck(ResultValid)
	return claims, nil
}

// IsRevoked reports whether raw is on the denylist.
func (v *Verifier) IsRevoked(ctx context.Context, raw string) (bool, error) {
	revoked, err := v.store.IsRevoked(ctx, raw)
	if err != nil {
		return false, oops.Code(CodeCheckFailed).With("operation", "is revoked").Wrap(err)
	}
	return revoked, nil
}

// Revoke adds raw to the denylist. The entry lives until the token's own
// expiry; tokens whose expiry cannot be read are kept for fallback.
func (v *Verifier) Revoke(ctx context.Context, raw string, fallback time.Duration) error {
	expiresAt, ok := ExpiryUnverified(raw)
	if !ok {
		expiresAt = v.codec.now().Add(fallback)
	}
	return v.store.Revoke(ctx, raw, expiresAt)
}

// Codec returns the underlying codec.
func (v *Verifier) Codec() *Codec {
	return v.codec
}
