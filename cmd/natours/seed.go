// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/internal/config"
	"github.com/natours/natours/internal/seed"
)

// Default timeout for seed command.
const defaultSeedTimeout = 2 * time.Minute

// seedConfig holds configuration for the seed command.
type seedConfig struct {
	timeout time.Duration
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import or delete development users",
		Long: `Manage development users from a YAML or JSON seed file.
Run "natours seed schema" for the file format.`,
	}
	cmd.PersistentFlags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for database operations (e.g., 30s, 1m)")

	cmd.AddCommand(&cobra.Command{
		Use:   "import FILE",
		Short: "Create the users in FILE",
		Long: `Create every user in FILE whose email is not registered yet.
This command is idempotent - existing users are left untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, cfg, args[0], openStore, (*seed.Importer).Import)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete FILE",
		Short: "Delete the users in FILE",
		Long:  `Delete every user whose email appears in FILE. Other users are kept.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, cfg, args[0], openStore, (*seed.Importer).Delete)
		},
	})

	var out string
	schema := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of seed files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeedSchema(cmd, out)
		},
	}
	schema.Flags().StringVarP(&out, "output", "o", "", "write the schema to this file instead of stdout")
	cmd.AddCommand(schema)

	return cmd
}

type seedAction func(im *seed.Importer, ctx context.Context, f *seed.File) (seed.Result, error)

func runSeed(cmd *cobra.Command, sc *seedConfig, path string, open StoreFactory, action seedAction) error {
	f, err := seed.ReadFile(path)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd, (*config.Config).ValidateStorage)
	if err != nil {
		return err
	}
	logger, err := setupLogging(cmd, cfg)
	if err != nil {
		return err
	}
	if cfg.Store != config.StorePostgres {
		return oops.Code("CONFIG_INVALID").
			With("key", "store").
			Errorf("seed requires the postgres store, got %q", cfg.Store)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), sc.timeout)
	defer cancel()

	res, err := seedWith(ctx, cfg, logger, open, action, f)
	if err != nil {
		return err
	}
	printSeedResult(cmd, res)
	return nil
}

// seedWith opens the store and runs action over f.
func seedWith(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	open StoreFactory,
	action seedAction,
	f *seed.File,
) (seed.Result, error) {
	st, err := open(ctx, cfg, logger)
	if err != nil {
		return seed.Result{}, oops.With("operation", "open user store").Wrap(err)
	}
	defer st.Close()

	hasher, err := auth.NewArgon2idHasherWithParams(cfg.Argon2Params())
	if err != nil {
		return seed.Result{}, err
	}
	im, err := seed.NewImporter(st.Users, hasher, seed.WithLogger(logger))
	if err != nil {
		return seed.Result{}, err
	}
	return action(im, ctx, f)
}

func printSeedResult(cmd *cobra.Command, res seed.Result) {
	switch {
	case res.Created > 0 || res.Skipped > 0:
		cmd.Printf("Created %d user(s), skipped %d existing\n", res.Created, res.Skipped)
	case res.Deleted > 0 || res.Missing > 0:
		cmd.Printf("Deleted %d user(s), %d not found\n", res.Deleted, res.Missing)
	default:
		cmd.Println("Nothing to do")
	}
}

func runSeedSchema(cmd *cobra.Command, out string) error {
	data, err := seed.GenerateSchema()
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if out == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err //nolint:wrapcheck // stdout write
	}
	if err := os.WriteFile(out, data, 0o600); err != nil {
		return oops.Code("SEED_SCHEMA_WRITE_FAILED").With("path", out).Wrap(err)
	}
	cmd.Printf("Wrote %s\n", out)
	return nil
}
