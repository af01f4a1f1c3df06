// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/reservd/reservd/internal/config"
)

func newConfigCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	var role string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration with secrets redacted",
		Long: `Print the configuration after defaults, the config file, the .env file
and the environment are merged. With --role the result is also validated for
that service.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				cfg *config.Config
				err error
			)
			if role == "" {
				cfg, err = flags.loadUnvalidated(cmd)
			} else {
				cfg, err = flags.load(cmd, config.Role(role))
			}
			if err != nil {
				return err
			}
			return writeYAML(cmd, cfg.Redacted())
		},
	}
	show.Flags().StringVar(&role, "role", "", "validate for a service (auth, reservation, payment, notification, migrate)")
	cmd.AddCommand(show)
	return cmd
}
