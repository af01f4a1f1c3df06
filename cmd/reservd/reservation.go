// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/reservd/reservd/internal/config"
	"github.com/reservd/reservd/internal/gate"
	reservdgrpc "github.com/reservd/reservd/internal/grpc"
	"github.com/reservd/reservd/internal/httpapi"
	"github.com/reservd/reservd/internal/payment"
	"github.com/reservd/reservd/internal/reservation"
)

func newReservationCmd(flags *rootFlags, deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reservation",
		Short: "Start the reservation service",
		Long: `Start the reservation service. Every route requires the Authentication
cookie, which is validated by the auth service; bookings are paid through the
payment service before they are stored.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReservation(cmd, flags, deps, nil)
		},
	}
	config.RegisterFlags(cmd.Flags(), config.RoleReservation)
	return cmd
}

func runReservation(cmd *cobra.Command, flags *rootFlags, deps *Deps, started func(*process)) error {
	cfg, err := flags.load(cmd, config.RoleReservation)
	if err != nil {
		return err
	}
	logger := setupLogging(cmd, cfg, config.RoleReservation)
	logger.Info("starting reservation service",
		"http_addr", cfg.Reservation.HTTPAddr,
		"auth_addr", cfg.AuthClient.Addr,
		"payment_addr", cfg.PaymentClient.Addr,
		"payment_timeout", cfg.PaymentClient.Timeout,
	)

	p, err := newProcess(cmd.Context(), "reservation", cfg, logger)
	if err != nil {
		return err
	}
	if err := startReservation(p, cfg, deps); err != nil {
		return errors.Join(err, p.shutdown())
	}
	if started != nil {
		started(p)
	}
	return p.wait()
}

func startReservation(p *process, cfg *config.Config, deps *Deps) error {
	db, err := openBackend(p, cfg, deps)
	if err != nil {
		return err
	}

	g, err := dialGate(p, cfg, "reservation")
	if err != nil {
		return err
	}

	payTLS, err := clientTLS(cfg, "reservation", "payment")
	if err != nil {
		return err
	}
	payConn, err := reservdgrpc.Dial(reservdgrpc.ClientConfig{Address: cfg.PaymentClient.Addr, TLSConfig: payTLS})
	if err != nil {
		return err
	}
	p.onStop(func(context.Context) error { return payConn.Close() })

	payClient := payment.NewClient(payConn, payment.WithClientTimeout(cfg.PaymentClient.Timeout))
	svc, err := reservation.NewService(repositoryFor(db, reservation.Schema()), payClient, p.logger)
	if err != nil {
		return err
	}

	router := httpapi.NewRouter("reservation", p.logger, p.metrics)
	router.Mount("/", reservation.NewHandler(svc, g, p.logger).Routes())
	return p.serveHTTP("http", httpapi.NewServer(cfg.Reservation.HTTPAddr, router))
}

// dialGate connects service to the auth service and returns a gate that
// validates tokens through it.
func dialGate(p *process, cfg *config.Config, service string) (*gate.Gate, error) {
	authTLS, err := clientTLS(cfg, service, "auth")
	if err != nil {
		return nil, err
	}
	client, err := reservdgrpc.NewClient(reservdgrpc.ClientConfig{Address: cfg.AuthClient.Addr, TLSConfig: authTLS})
	if err != nil {
		return nil, err
	}
	p.onStop(func(context.Context) error { return client.Close() })

	return gate.New(client,
		gate.WithTimeout(cfg.Gate.Timeout),
		gate.WithLogger(p.logger),
		gate.WithMetrics(p.metrics),
	)
}
