// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package main

import (
	"fmt"
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/reservd/reservd/internal/config"
	"github.com/reservd/reservd/internal/store"
)

// newMigrateCmd creates the migrate command and its subcommands.
func newMigrateCmd(flags *rootFlags, deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long: `Manage the PostgreSQL schema. Without a subcommand every pending
migration is applied.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, flags, deps, runMigrateUp)
		},
	}
	config.RegisterFlags(cmd.PersistentFlags(), config.RoleMigrate)

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, flags, deps, runMigrateUp)
		},
	})

	var confirm bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration (drops all data)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirm {
				return oops.Code("CONFIRMATION_REQUIRED").Errorf("migrate down drops every table; rerun with --yes")
			}
			return withMigrator(cmd, flags, deps, func(cmd *cobra.Command, m Migrator) error {
				cmd.Println("Rolling back all migrations...")
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("Rollback complete")
				return nil
			})
		},
	}
	down.Flags().BoolVar(&confirm, "yes", false, "confirm dropping every table")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current schema version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, flags, deps, runMigrateStatus)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it",
		Long: `Mark VERSION as applied without running it. This clears the dirty
flag left by a failed migration; fix the schema by hand first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, flags, deps, func(cmd *cobra.Command, m Migrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				cmd.Printf("Forced version %d\n", version)
				return nil
			})
		},
	})

	return cmd
}

// withMigrator loads the migrate configuration, opens a migrator and runs fn.
func withMigrator(cmd *cobra.Command, flags *rootFlags, deps *Deps, fn func(*cobra.Command, Migrator) error) error {
	cfg, err := flags.load(cmd, config.RoleMigrate)
	if err != nil {
		return err
	}
	setupLogging(cmd, cfg, config.RoleMigrate)

	m, err := deps.MigratorFactory(cfg.Database.URI)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			slog.Warn("failed to close migrator", "error", closeErr)
		}
	}()
	return fn(cmd, m)
}

func runMigrateUp(cmd *cobra.Command, m Migrator) error {
	pending, err := m.Pending()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		cmd.Println("Database is up to date")
		return nil
	}
	cmd.Printf("Applying %d migration(s)...\n", len(pending))
	if err := m.Up(); err != nil {
		return err
	}
	cmd.Println("Migrations completed successfully")
	return nil
}

func runMigrateStatus(cmd *cobra.Command, m Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	pending, err := m.Pending()
	if err != nil {
		return err
	}

	current := "none"
	if version > 0 {
		current = describeMigration(version)
	}
	cmd.Printf("Current version: %s\n", current)
	if dirty {
		cmd.Println("State: DIRTY (a migration failed; fix the schema and run 'reservd migrate force')")
	}
	if len(pending) == 0 {
		cmd.Println("Pending: none")
		return nil
	}
	cmd.Println("Pending:")
	for _, v := range pending {
		cmd.Printf("  %s\n", describeMigration(v))
	}
	return nil
}

func describeMigration(version uint) string {
	name, err := store.MigrationName(version)
	if err != nil || name == "" {
		return fmt.Sprintf("%06d", version)
	}
	return name
}

// parseForceVersion parses the VERSION argument of migrate force.
func parseForceVersion(arg string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(arg, "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("version", arg).Errorf("version must be an integer")
	}
	if version < 0 {
		return 0, oops.Code("INVALID_VERSION").With("version", arg).Errorf("version must be non-negative")
	}
	return version, nil
}

// autoMigrate applies pending migrations at service start.
func autoMigrate(databaseURL string, deps *Deps, logger *slog.Logger) error {
	m, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return oops.Code("AUTO_MIGRATE_FAILED").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	if err := m.Up(); err != nil {
		return oops.Code("AUTO_MIGRATE_FAILED").Wrap(err)
	}
	logger.Info("database schema up to date")
	return nil
}
