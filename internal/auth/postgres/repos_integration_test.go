// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlife/identity/internal/auth"
	"github.com/finlife/identity/internal/auth/postgres"
)

func createPrincipal(ctx context.Context, t *testing.T, email string) *auth.Principal {
	t.Helper()
	p, err := auth.NewPrincipal(email, "$argon2id$hash", auth.Profile{FirstName: "Ana", LastName: "Souza"}, nil)
	require.NoError(t, err)
	p.CreatedAt = p.CreatedAt.Truncate(time.Microsecond)
	p.UpdatedAt = p.CreatedAt
	require.NoError(t, postgres.NewPrincipalRepository(testPool).Create(ctx, p))

	t.Cleanup(func() {
		_, _ = testPool.Exec(ctx, `DELETE FROM principals WHERE id = $1`, p.ID.String())
	})
	return p
}

func issueResetToken(ctx context.Context, t *testing.T, p *auth.Principal) string {
	t.Helper()
	_, hash, err := auth.GenerateResetToken()
	require.NoError(t, err)
	rt, err := auth.NewResetToken(p.ID, hash, time.Now().Add(time.Hour).UTC())
	require.NoError(t, err)
	require.NoError(t, postgres.NewResetTokenRepository(testPool).Create(ctx, rt))
	return hash
}

func TestPrincipalRepository_Roundtrip(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewPrincipalRepository(testPool)
	p := createPrincipal(ctx, t, "roundtrip@example.com")

	stored, err := repo.GetByEmail(ctx, "RoundTrip@Example.com")
	require.NoError(t, err)
	assert.Equal(t, p.ID, stored.ID)
	assert.False(t, stored.Enabled)
	assert.Empty(t, stored.RoleIDs)
	assert.Equal(t, "Ana Souza", stored.Profile.FullName())

	dup, err := auth.NewPrincipal("ROUNDTRIP@example.com", "h", auth.Profile{}, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Create(ctx, dup), auth.ErrEmailTaken)

	at := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, repo.RecordLogin(ctx, p.ID, at))
	hash := issueResetToken(ctx, t, p)
	require.NoError(t, repo.CompletePasswordReset(ctx, auth.PasswordChange{
		PrincipalID: p.ID, TokenHash: hash, PasswordHash: "$argon2id$new", At: at,
	}))

	stored, err = repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, stored.Enabled)
	assert.Equal(t, "$argon2id$new", stored.PasswordHash)
	require.NotNil(t, stored.Login.LastLogin)
	assert.True(t, at.Equal(*stored.Login.LastLogin))
}

func TestPrincipalRepository_ConcurrentFailuresLockOnce(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewPrincipalRepository(testPool)
	p := createPrincipal(ctx, t, "concurrent@example.com")

	const workers, maxAttempts = 20, 6
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		counts   []int
		crossing int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, locked, err := repo.IncrementLoginAttempts(ctx, p.ID, maxAttempts)
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			counts = append(counts, n)
			if locked && n == maxAttempts {
				crossing++
			}
		}()
	}
	wg.Wait()

	assert.Len(t, counts, workers)
	assert.Equal(t, 1, crossing)
	stored, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, workers, stored.Login.Attempts)
	assert.True(t, stored.Locked)

	require.NoError(t, repo.ResetLoginAttempts(ctx, p.ID))
	stored, err = repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.Login.Attempts)
	assert.True(t, stored.Locked, "a successful login never clears the lock")
}

func TestPrincipalRepository_AdvanceResetBlock(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewPrincipalRepository(testPool)
	p := createPrincipal(ctx, t, "resetblock@example.com")
	now := time.Now().UTC().Truncate(time.Microsecond)

	state, err := repo.AdvanceResetBlock(ctx, p.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 1, state.ResetAttempts)
	assert.True(t, now.Add(time.Minute).Equal(state.ResetBlockUntil))

	state, err = repo.AdvanceResetBlock(ctx, p.ID, now.Add(30*time.Second))
	assert.ErrorIs(t, err, auth.ErrResetBlocked)
	assert.Equal(t, 1, state.ResetAttempts)

	state, err = repo.AdvanceResetBlock(ctx, p.ID, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, state.ResetAttempts)
	assert.True(t, now.Add(3*time.Minute).Equal(state.ResetBlockUntil))
}

func TestPrincipalRepository_ConcurrentResetsSpendTokenOnce(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewPrincipalRepository(testPool)
	p := createPrincipal(ctx, t, "claim@example.com")
	hash := issueResetToken(ctx, t, p)
	spare := issueResetToken(ctx, t, p)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		spent     int
	)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.CompletePasswordReset(ctx, auth.PasswordChange{
				PrincipalID:  p.ID,
				TokenHash:    hash,
				PasswordHash: fmt.Sprintf("$argon2id$w%d", i),
				At:           time.Now().UTC(),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, auth.ErrNotFound):
				spent++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, spent)

	_, err := postgres.NewResetTokenRepository(testPool).GetByTokenHash(ctx, spare)
	assert.ErrorIs(t, err, auth.ErrNotFound, "other tokens go with the claim")

	entries, err := postgres.NewPasswordHistoryRepository(testPool).ListByPrincipal(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestResetTokenRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewResetTokenRepository(testPool)
	p := createPrincipal(ctx, t, "tokens@example.com")

	_, hash, err := auth.GenerateResetToken()
	require.NoError(t, err)
	rt, err := auth.NewResetToken(p.ID, hash, time.Now().Add(-time.Minute).UTC().Truncate(time.Microsecond))
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, rt))

	got, err := repo.GetByTokenHash(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, rt.ID, got.ID)
	assert.True(t, got.IsExpired(time.Now()))

	n, err := repo.DeleteExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))

	_, err = repo.GetByTokenHash(ctx, hash)
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestPasswordHistoryRepository_Order(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewPasswordHistoryRepository(testPool)
	p := createPrincipal(ctx, t, "history@example.com")

	base := time.Now().UTC().Truncate(time.Microsecond)
	for i, h := range []string{"h1", "h2", "h3"} {
		require.NoError(t, repo.Append(ctx, &auth.PasswordHistoryEntry{
			ID: ulid.Make(), PrincipalID: p.ID, PasswordHash: h, CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	entries, err := repo.ListByPrincipal(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, p.PasswordHash, entries[0].PasswordHash, "creation records the first password")
	assert.Equal(t, "h1", entries[1].PasswordHash)
	assert.Equal(t, "h3", entries[3].PasswordHash)
}

func TestRevocationRepository_Idempotent(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewRevocationRepository(testPool)
	raw := "integration." + ulid.Make().String()

	revoked, err := repo.IsRevoked(ctx, raw)
	require.NoError(t, err)
	assert.False(t, revoked)

	expires := time.Now().Add(time.Hour)
	require.NoError(t, repo.Revoke(ctx, raw, expires))
	require.NoError(t, repo.Revoke(ctx, raw, expires))

	revoked, err = repo.IsRevoked(ctx, raw)
	require.NoError(t, err)
	assert.True(t, revoked)

	_, err = repo.DeleteExpired(ctx, time.Now())
	require.NoError(t, err)
	revoked, err = repo.IsRevoked(ctx, raw)
	require.NoError(t, err)
	assert.True(t, revoked, "unexpired revocations survive pruning")
}
