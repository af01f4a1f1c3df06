// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/reservd/reservd/internal/config"
	"github.com/reservd/reservd/internal/logging"
	"github.com/reservd/reservd/internal/xdg"
)

// rootFlags are the persistent flags shared by every subcommand.
type rootFlags struct {
	configFile string
	envFile    string
}

// NewRootCmd creates the root command for the reservd CLI. A nil deps uses
// the production implementations.
func NewRootCmd(deps *Deps) *cobra.Command {
	deps = deps.withDefaults()
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "reservd",
		Short: "Reservd - place reservations with paid bookings",
		Long: `Reservd runs the auth, reservation, payment and notification services.
Each service is a subcommand; they authenticate each other through the auth
service's gRPC endpoint.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flags.configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/reservd/config.yaml if present)")
	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before the environment (missing is fine)")

	cmd.AddCommand(newAuthCmd(flags, deps))
	cmd.AddCommand(newReservationCmd(flags, deps))
	cmd.AddCommand(newPaymentCmd(flags, deps))
	cmd.AddCommand(newNotificationCmd(flags, deps))
	cmd.AddCommand(newMigrateCmd(flags, deps))
	cmd.AddCommand(newCertsCmd())
	cmd.AddCommand(newConfigCmd(flags))

	return cmd
}

// load assembles and validates the configuration for role.
func (f *rootFlags) load(cmd *cobra.Command, role config.Role) (*config.Config, error) {
	cfg, err := f.assemble(cmd, role)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(role); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadUnvalidated assembles the configuration without checking it.
func (f *rootFlags) loadUnvalidated(cmd *cobra.Command) (*config.Config, error) {
	return f.assemble(cmd, "")
}

func (f *rootFlags) assemble(cmd *cobra.Command, role config.Role) (*config.Config, error) {
	configFile := f.configFile
	if configFile == "" {
		if path, err := xdg.ConfigFile(); err == nil {
			configFile = config.ExistingFile(path)
		}
	}
	return config.Load(config.LoadOptions{
		ConfigFile: configFile,
		EnvFile:    f.envFile,
		Flags:      cmd.Flags(),
		Role:       role,
	})
}

// setupLogging installs the process logger described by cfg.
func setupLogging(cmd *cobra.Command, cfg *config.Config, role config.Role) *slog.Logger {
	level, _ := logging.ParseLevel(cfg.Log.Level) //nolint:errcheck // checked by Validate
	return logging.SetDefault(logging.Options{
		Service: "reservd-" + string(role),
		Version: version,
		Format:  cfg.Log.Format,
		Level:   level,
		Writer:  cmd.ErrOrStderr(),
	})
}
