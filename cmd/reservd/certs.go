// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package main

import (
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/reservd/reservd/internal/tls"
	"github.com/reservd/reservd/internal/xdg"
)

// defaultServices are the services that take part in mTLS.
var defaultServices = []string{"auth", "reservation", "payment", "notification"}

func newCertsCmd() *cobra.Command {
	var certsDir string

	cmd := &cobra.Command{
		Use:   "certs",
		Short: "Manage the mTLS certificates shared by the services",
	}
	cmd.PersistentFlags().StringVar(&certsDir, "certs-dir", "", "certificate directory (default: XDG_CONFIG_HOME/reservd/certs)")

	var clusterID string
	var services []string
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Create the cluster CA and any missing service certificates",
		Long: `Create the cluster CA and a certificate for each service that lacks one.
An existing CA is kept, so certificates it already issued stay valid.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := resolveCertsDir(certsDir)
			if err != nil {
				return err
			}
			if err := xdg.EnsureDir(dir); err != nil {
				return err
			}
			id := clusterID
			if id == "" {
				if existing, err := tls.ClusterID(dir); err == nil {
					id = existing
				} else {
					id = strings.ToLower(ulid.Make().String())
				}
			}
			generated, err := tls.EnsureCertificates(dir, id, services...)
			if err != nil {
				return err
			}
			return writeYAML(cmd, map[string]any{
				"certs_dir":  dir,
				"cluster_id": id,
				"generated":  generated,
			})
		},
	}
	generate.Flags().StringVar(&clusterID, "cluster-id", "", "cluster id embedded in a new CA (default: existing CA's, else random)")
	generate.Flags().StringSliceVar(&services, "service", defaultServices, "services to issue certificates for")
	cmd.AddCommand(generate)

	cmd.AddCommand(&cobra.Command{
		Use:   "inspect",
		Short: "Describe the certificates in the certificate directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := resolveCertsDir(certsDir)
			if err != nil {
				return err
			}
			infos, err := tls.Inspect(dir)
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				return oops.Code("TLS_LOAD_FAILED").With("dir", dir).Errorf("no certificates in %s; run 'reservd certs generate'", dir)
			}
			return writeYAML(cmd, infos)
		},
	})

	return cmd
}

func resolveCertsDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return xdg.CertsDir()
}

// writeYAML prints v to the command's output as YAML.
func writeYAML(cmd *cobra.Command, v any) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return oops.Code("OUTPUT_FAILED").Wrap(err)
	}
	return enc.Close()
}
