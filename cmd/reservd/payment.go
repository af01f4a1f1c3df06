// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/reservd/reservd/internal/config"
	reservdgrpc "github.com/reservd/reservd/internal/grpc"
	"github.com/reservd/reservd/internal/notification"
	"github.com/reservd/reservd/internal/payment"
)

func newPaymentCmd(flags *rootFlags, deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payment",
		Short: "Start the payment service",
		Long: `Start the payment service. CreateCharge calls must carry a token the auth
service accepts; every charge publishes a notify_email message to Redis.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPayment(cmd, flags, deps, nil)
		},
	}
	config.RegisterFlags(cmd.Flags(), config.RolePayment)
	return cmd
}

func runPayment(cmd *cobra.Command, flags *rootFlags, deps *Deps, started func(*process)) error {
	cfg, err := flags.load(cmd, config.RolePayment)
	if err != nil {
		return err
	}
	logger := setupLogging(cmd, cfg, config.RolePayment)
	logger.Info("starting payment service", "grpc_addr", cfg.Payment.GRPCAddr, "auth_addr", cfg.AuthClient.Addr)

	p, err := newProcess(cmd.Context(), "payment", cfg, logger)
	if err != nil {
		return err
	}
	if err := startPayment(p, cfg, deps); err != nil {
		return errors.Join(err, p.shutdown())
	}
	if started != nil {
		started(p)
	}
	return p.wait()
}

func startPayment(p *process, cfg *config.Config, deps *Deps) error {
	db, err := openBackend(p, cfg, deps)
	if err != nil {
		return err
	}

	rdb, err := deps.RedisConnector(p.ctx, cfg.Redis.URL)
	if err != nil {
		return err
	}
	p.onStop(func(context.Context) error { return rdb.Close() })
	producer, err := notification.NewProducer(rdb, cfg.Notification.Stream)
	if err != nil {
		return err
	}

	g, err := dialGate(p, cfg, "payment")
	if err != nil {
		return err
	}

	svc, err := payment.NewService(repositoryFor(db, payment.ChargeSchema()), producer, p.logger)
	if err != nil {
		return err
	}

	tlsCfg, err := serverTLS(cfg, "payment")
	if err != nil {
		return err
	}
	srv := reservdgrpc.NewServer(reservdgrpc.ServerConfig{TLSConfig: tlsCfg, Logger: p.logger},
		g.UnaryServerInterceptor(payment.CreateChargeMethod))
	payment.NewServer(svc, p.logger).Register(srv)
	return p.serveGRPC("grpc", cfg.Payment.GRPCAddr, srv)
}
