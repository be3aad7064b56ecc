// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/natours/natours/internal/config"
	"github.com/natours/natours/internal/logging"
)

const serviceName = "natours"

// NewRootCmd creates the root command for the Natours CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "natours",
		Short: "Natours - users and authentication API for the tours marketplace",
		Long: `Natours serves the users API of the tours marketplace: signup, login,
bearer token authentication, role checks and the password reset flow.`,
		SilenceUsage: true,
	}

	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSeedCmd())
	cmd.AddCommand(NewStatusCmd())

	return cmd
}

// loadConfig loads the layered configuration for cmd. A nil check runs the
// full validation.
func loadConfig(cmd *cobra.Command, check func(*config.Config) error) (*config.Config, error) {
	return config.Load(config.LoadOptions{Flags: cmd.Flags(), Check: check})
}

// setupLogging installs the default logger, writing to the command's
// error stream.
func setupLogging(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	return logging.SetDefault(cfg.LogOptions(serviceName, version), cmd.ErrOrStderr())
}
