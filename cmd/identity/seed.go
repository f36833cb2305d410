// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/finlife/identity/internal/access"
	"github.com/finlife/identity/internal/auth"
	"github.com/finlife/identity/internal/config"
	"github.com/finlife/identity/internal/mail"
)

// Default timeout for seed command.
const defaultSeedTimeout = 30 * time.Second

// seedConfig holds configuration for the seed command.
type seedConfig struct {
	timeout time.Duration
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed default roles, permissions and the first administrator",
		Long: `Creates the builtin permissions, the default roles and, when
seed.admin_email is set, an administrator account. The administrator is created
disabled; the command prints its initial password and an activation link.
This command is idempotent - it will not create duplicates if run multiple times.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeedWithDeps(cmd, cfg, nil)
		},
	}

	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for database operations (e.g., 30s, 1m)")
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL")
	cmd.Flags().String("admin-email", "", "email of the administrator to create")

	return cmd
}

func runSeedWithDeps(cmd *cobra.Command, cfg *seedConfig, deps *ServeDeps) error {
	appCfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Use cmd.Context() to respect SIGINT/SIGTERM signals
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout)
	defer cancel()

	// Seeding never touches revoked tokens.
	storeOnly := *appCfg
	storeOnly.Revocation.Backend = config.BackendMemory

	cmd.Println("Connecting to store...")
	b, err := openBackend(ctx, &storeOnly, deps.withDefaults(), slog.Default())
	if err != nil {
		return err
	}
	defer b.Close()

	return seed(ctx, cmd.OutOrStdout(), appCfg, b, slog.Default())
}

// seed creates the default roles and permissions, then the administrator
// named by seed.admin_email unless it already exists.
func seed(ctx context.Context, out io.Writer, cfg *config.Config, b *backend, logger *slog.Logger) error {
	roles, err := access.SeedDefaults(ctx, b.roles, b.permissions)
	if err != nil {
		return oops.Code("SEED_FAILED").With("operation", "seed roles and permissions").Wrap(err)
	}
	fmt.Fprintf(out, "Default roles ready: %d\n", len(roles))

	email := cfg.Seed.AdminEmail
	if email == "" {
		fmt.Fprintln(out, "seed.admin_email is not set, skipping administrator")
		return nil
	}

	notifier := &consoleNotifier{out: out, baseURL: cfg.Reset.BaseURL}
	hasher := auth.NewArgon2idHasher()

	provisioner, err := auth.NewProvisioner(b.principals, hasher, notifier, logger)
	if err != nil {
		return err
	}
	_, err = provisioner.Provision(ctx, auth.NewAccount{
		Email:   email,
		RoleIDs: []ulid.ULID{roles[access.RoleAdmin].ID},
	})
	if errors.Is(err, auth.ErrEmailTaken) {
		fmt.Fprintf(out, "Administrator %s already exists, skipping\n", auth.NormalizeEmail(email))
		return nil
	}
	if err != nil {
		return oops.Code("SEED_FAILED").With("operation", "provision administrator").Wrap(err)
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
		return err
	}
	if _, err := resets.RequestReset(ctx, email); err != nil {
		return oops.Code("SEED_FAILED").With("operation", "issue activation link").Wrap(err)
	}

	logger.Info("administrator provisioned", "email", auth.NormalizeEmail(email))
	return nil
}

// consoleNotifier prints account emails for the operator running seed.
type consoleNotifier struct {
	out     io.Writer
	baseURL string
}

func (n *consoleNotifier) Welcome(_ context.Context, p *auth.Principal, password string) error {
	_, err := fmt.Fprintf(n.out, "Created administrator %s\nInitial password: %s\n", p.Email, password)
	return err
}

func (n *consoleNotifier) PasswordReset(_ context.Context, p *auth.Principal, token string, expiresAt time.Time) error {
	link := strings.TrimSuffix(n.baseURL, "/") + mail.ResetPath + "?token=" + url.QueryEscape(token)
	_, err := fmt.Fprintf(n.out, "Activate %s before %s by setting a password at:\n%s\n",
		p.Email, expiresAt.UTC().Format(time.RFC1123), link)
	return err
}

var _ auth.Notifier = (*consoleNotifier)(nil)
