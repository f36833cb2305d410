// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

// Package cache holds the Redis-backed token denylist shared by every
// instance of the service.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/finlife/identity/internal/token"
)

// KeyPrefix namespaces denylist keys.
const KeyPrefix = "identity:revoked:"

// MinTTL is the shortest time a revocation is kept.
const MinTTL = time.Hour

// RevocationStore implements token.RevocationStore on Redis. Entries expire
// with the token they revoke, never sooner than MinTTL.
type RevocationStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRevocationStore creates a RevocationStore.
func NewRevocationStore(client redis.UniversalClient) *RevocationStore {
	return &RevocationStore{client: client, now: time.Now}
}

// Revoke stores the token digest. An existing entry is left as is.
func (s *RevocationStore) Revoke(ctx context.Context, raw string, expiresAt time.Time) error {
	ttl := max(expiresAt.Sub(s.now()), MinTTL)
	if err := s.client.SetNX(ctx, key(raw), s.now().UTC().Format(time.RFC3339), ttl).Err(); err != nil {
		return oops.Code("REVOCATION_INSERT_FAILED").
			With("operation", "redis setnx").
			Wrap(err)
	}
	return nil
}

// IsRevoked reports whether raw has been revoked.
func (s *RevocationStore) IsRevoked(ctx context.Context, raw string) (bool, error) {
	n, err := s.client.Exists(ctx, key(raw)).Result()
	if err != nil {
		return false, oops.Code("REVOCATION_LOOKUP_FAILED").
			With("operation", "redis exists").
			Wrap(err)
	}
	return n > 0, nil
}

// Ping checks the connection.
func (s *RevocationStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func key(raw string) string {
	return KeyPrefix + token.Hash(raw)
}

var _ token.RevocationStore = (*RevocationStore)(nil)
