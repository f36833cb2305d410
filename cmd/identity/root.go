// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/finlife/identity/internal/config"
	"github.com/finlife/identity/internal/logging"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the identity CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Identity and access control service",
		Long: `identity authenticates principals with bearer tokens, runs the
password reset flow and manages roles, permissions and users over an HTTP API.
A gRPC introspection service lets other services validate tokens.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSeedCmd())
	cmd.AddCommand(NewConfigSchemaCmd())

	return cmd
}

// loadConfig reads the configuration for cmd and installs the default logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{
		File:  configFile,
		Flags: cmd.Flags(),
	})
	if err != nil {
		return nil, err
	}
	logging.SetDefault(logging.Options{
		Service: "identity",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
	})
	return cfg, nil
}
