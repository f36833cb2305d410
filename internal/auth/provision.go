// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/finlife/identity/pkg/errutil"
)

// NewAccount describes a principal to provision.
type NewAccount struct {
	Email   string
	Profile Profile
	RoleIDs []ulid.ULID
}

// ProvisionResult is a provisioned principal.
type ProvisionResult struct {
	Principal *Principal
	// Warning is set when the welcome email could not be queued.
	Warning error
}

// Provisioner creates principals with generated initial passwords.
type Provisioner struct {
	principals PrincipalRepository
	hasher     PasswordHasher
	notifier   Notifier
	logger     *slog.Logger
}

// NewProvisioner creates a Provisioner.
func NewProvisioner(
	principals PrincipalRepository,
	hasher PasswordHasher,
	notifier Notifier,
	logger *slog.Logger,
) (*Provisioner, error) {
	switch {
	case principals == nil:
		return nil, oops.Errorf("principal repository is required")
	case hasher == nil:
		return nil, oops.Errorf("password hasher is required")
	case notifier == nil:
		return nil, oops.Errorf("notifier is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{
		principals: principals,
		hasher:     hasher,
		notifier:   notifier,
		logger:     logger,
	}, nil
}

// Provision creates a disabled principal with a generated password, which the
// repository records as its first history entry, and sends it the welcome
// email. The account becomes usable after a password reset.
func (p *Provisioner) Provision(ctx context.Context, acct NewAccount) (*ProvisionResult, error) {
	pii := OwnerPII{
		Email:       NormalizeEmail(acct.Email),
		FirstName:   acct.Profile.FirstName,
		LastName:    acct.Profile.LastName,
		DateOfBirth: acct.Profile.DateOfBirth,
		Phone:       acct.Profile.Phone,
		CPF:         acct.Profile.CPF,
	}
	password, err := GeneratePassword(GeneratedPasswordLength, pii)
	if err != nil {
		return nil, oops.Code(CodeProvisionFailed).With("operation", "generate password").Wrap(err)
	}
	hash, err := p.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code(CodeProvisionFailed).With("operation", "hash password").Wrap(err)
	}

	principal, err := NewPrincipal(acct.Email, hash, acct.Profile, acct.RoleIDs)
	if err != nil {
		return nil, err
	}
	if err := p.principals.Create(ctx, principal); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, oops.Code(CodeEmailTaken).
				With("email", principal.Email).
				Wrapf(ErrEmailTaken, "a principal with this email already exists")
		}
		return nil, oops.Code(CodeProvisionFailed).
			With("operation", "create principal").
			With("email", principal.Email).
			Wrap(err)
	}
	result := &ProvisionResult{Principal: principal}
	if err := p.notifier.Welcome(ctx, principal, password); err != nil {
		result.Warning = oops.Code("PROVISION_EMAIL_FAILED").
			With("principal_id", principal.ID.String()).
			Wrapf(err, "welcome email could not be queued")
		errutil.LogErrorContext(ctx, p.logger, "welcome email not queued", err,
			"operation", "enqueue_welcome_email",
			"principal_id", principal.ID.String())
	}
	p.logger.InfoContext(ctx, "principal provisioned",
		"principal_id", principal.ID.String(),
		"roles", len(principal.RoleIDs))
	return result, nil
}
