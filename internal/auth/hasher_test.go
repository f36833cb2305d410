// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlife/identity/internal/auth"
	"github.com/finlife/identity/pkg/errutil"
)

func TestHashPassword(t *testing.T) {
	hasher := auth.NewArgon2idHasher()

	t.Run("produces PHC argon2id hash", func(t *testing.T) {
		hash, err := hasher.Hash("Abc123!@#")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=1,p=4$"))
		assert.Len(t, strings.Split(hash, "$"), 6)
	})

	t.Run("same password produces different hashes (salt)", func(t *testing.T) {
		hash1, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		hash2, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("rejects empty password", func(t *testing.T) {
		_, err := hasher.Hash("")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_EMPTY_PASSWORD")
	})
}

func TestVerifyPassword(t *testing.T) {
	hasher := auth.NewArgon2idHasher()
	hash, err := hasher.Hash("correctpassword")
	require.NoError(t, err)

	t.Run("correct password verifies", func(t *testing.T) {
		assert.True(t, hasher.Verify("correctpassword", hash))
	})

	t.Run("incorrect password fails", func(t *testing.T) {
		assert.False(t, hasher.Verify("wrongpassword", hash))
	})

	malformed := map[string]string{
		"empty":             "",
		"not a hash":        "not-a-valid-hash",
		"wrong algorithm":   "$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		"bad version":       "$argon2id$vXX$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		"unknown version":   "$argon2id$v=16$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		"bad params":        "$argon2id$v=19$m=abc,t=1,p=4$c2FsdA$aGFzaA",
		"threads overflow":  "$argon2id$v=19$m=65536,t=1,p=256$c2FsdA$aGFzaA",
		"zero threads":      "$argon2id$v=19$m=65536,t=1,p=0$c2FsdA$aGFzaA",
		"bad salt encoding": "$argon2id$v=19$m=65536,t=1,p=4$!!!$aGFzaA",
		"bad key encoding":  "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$!!!",
		"empty key":         "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$",
		"bcrypt":            "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy",
	}
	for name, h := range malformed {
		t.Run("malformed hash is a non-match: "+name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.False(t, hasher.Verify("password", h))
			})
		})
	}

	t.Run("VerifyDetailed explains malformed hashes", func(t *testing.T) {
		ok, err := hasher.VerifyDetailed("password", "$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA")
		assert.False(t, ok)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_HASH")
		assert.Contains(t, err.Error(), "unsupported hash algorithm")
	})
}
