// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package main

import (
	"log/slog"

	"github.com/samber/oops"

	"github.com/finlife/identity/internal/access"
	"github.com/finlife/identity/internal/auth"
	"github.com/finlife/identity/internal/config"
	"github.com/finlife/identity/internal/token"
)

// services holds the domain services wired to a backend.
type services struct {
	verifier    *token.Verifier
	authn       *auth.Service
	resets      *auth.PasswordResetService
	provisioner *auth.Provisioner
	access      *access.Service
}

// newServices wires the domain services. Account emails go to notifier.
func newServices(cfg *config.Config, b *backend, notifier auth.Notifier, logger *slog.Logger) (*services, error) {
	ttl, err := cfg.TokenTTL()
	if err != nil {
		return nil, err
	}

	codec, err := token.NewCodecFromSecret(cfg.JWT.Secret, token.WithIssuer(cfg.JWT.Issuer))
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("key", "jwt.secret").Wrap(err)
	}
	verifier, err := token.NewVerifier(codec, b.revocations)
	if err != nil {
		return nil, err
	}

	hasher := auth.NewArgon2idHasher()

	authn, err := auth.NewAuthService(auth.AuthServiceDeps{
		Principals:  b.principals,
		Hasher:      hasher,
		Tokens:      verifier,
		Logger:      logger,
		MaxAttempts: cfg.Auth.MaxLoginAttempts,
		TokenTTL:    ttl,
	})
	if err != nil {
		return nil, err
	}

	resets, err := auth.NewPasswordResetService(auth.PasswordResetServiceDeps{
		Principals: b.principals,
		Tokens:     b.resetTokens,
		History:    b.history,
		Hasher:     hasher,
		Notifier:   notifier,
		Logger:     logger,
		Expiration: cfg.ResetExpiration(),
	})
	if err != nil {
		return nil, err
	}

	provisioner, err := auth.NewProvisioner(b.principals, hasher, notifier, logger)
	if err != nil {
		return nil, err
	}

	accessSvc, err := access.NewService(access.ServiceDeps{
		Roles:       b.roles,
		Permissions: b.permissions,
		Assignments: b.assignments,
		Principals:  b.principals,
		Provisioner: provisioner,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	return &services{
		verifier:    verifier,
		authn:       authn,
		resets:      resets,
		provisioner: provisioner,
		access:      accessSvc,
	}, nil
}
