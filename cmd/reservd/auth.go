// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/reservd/reservd/internal/auth"
	"github.com/reservd/reservd/internal/config"
	reservdgrpc "github.com/reservd/reservd/internal/grpc"
	"github.com/reservd/reservd/internal/httpapi"
	"github.com/reservd/reservd/internal/token"
)

// limiterSweepInterval is how often idle login limiter entries are dropped.
const limiterSweepInterval = 10 * time.Minute

// revocationKeyPrefix namespaces revoked token ids in Redis.
const revocationKeyPrefix = "reservd:revoked:"

func newAuthCmd(flags *rootFlags, deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Start the auth service (accounts, login, token validation)",
		Long: `Start the auth service. It serves registration, login and logout over
HTTP and answers token validation calls from the other services over gRPC.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAuth(cmd, flags, deps, nil)
		},
	}
	config.RegisterFlags(cmd.Flags(), config.RoleAuth)
	return cmd
}

// runAuth runs the auth service until shutdown. started, when set, is called
// once every server is listening.
func runAuth(cmd *cobra.Command, flags *rootFlags, deps *Deps, started func(*process)) error {
	cfg, err := flags.load(cmd, config.RoleAuth)
	if err != nil {
		return err
	}
	logger := setupLogging(cmd, cfg, config.RoleAuth)
	logger.Info("starting auth service", "http_addr", cfg.Auth.HTTPAddr, "grpc_addr", cfg.Auth.GRPCAddr)

	p, err := newProcess(cmd.Context(), "auth", cfg, logger)
	if err != nil {
		return err
	}
	if err := startAuth(p, cfg, deps); err != nil {
		return errors.Join(err, p.shutdown())
	}
	if started != nil {
		started(p)
	}
	return p.wait()
}

func startAuth(p *process, cfg *config.Config, deps *Deps) error {
	db, err := openBackend(p, cfg, deps)
	if err != nil {
		return err
	}

	revocations, err := revocationStore(p, cfg, deps)
	if err != nil {
		return err
	}
	ttl, _ := cfg.JWTTTL() //nolint:errcheck // checked by Validate
	tokens, err := token.NewManager(cfg.Auth.JWTSecret, ttl, token.WithRevocationStore(revocations))
	if err != nil {
		return err
	}

	hasher, err := auth.NewPasswordHasher(cfg.Auth.Hasher)
	if err != nil {
		return err
	}
	users := auth.NewRepositoryUserStore(repositoryFor(db, auth.UserSchema()))
	accounts, err := auth.NewService(users, hasher,
		auth.WithMinPasswordLength(cfg.Auth.MinPasswordLength),
		auth.WithLogger(p.logger),
	)
	if err != nil {
		return err
	}
	authn, err := auth.NewAuthenticator(tokens, users)
	if err != nil {
		return err
	}

	limiter := httpapi.NewLimiter(cfg.Auth.LoginRate, cfg.Auth.LoginBurst)
	p.background("login-limiter-sweep", func(ctx context.Context) error {
		limiter.Run(ctx, limiterSweepInterval)
		return nil
	})

	handler, err := httpapi.NewAuthHandler(accounts, tokens, authn, httpapi.AuthOptions{
		SecureCookie: cfg.SecureCookie(),
		LoginLimiter: limiter,
		Metrics:      p.metrics,
		Logger:       p.logger,
	})
	if err != nil {
		return err
	}
	router := httpapi.NewRouter("auth", p.logger, p.metrics)
	router.Mount("/", handler.Routes())
	if err := p.serveHTTP("http", httpapi.NewServer(cfg.Auth.HTTPAddr, router)); err != nil {
		return err
	}

	tlsCfg, err := serverTLS(cfg, "auth")
	if err != nil {
		return err
	}
	srv := reservdgrpc.NewServer(reservdgrpc.ServerConfig{TLSConfig: tlsCfg, Logger: p.logger})
	reservdgrpc.NewAuthServer(authn, reservdgrpc.WithLogger(p.logger)).Register(srv)
	return p.serveGRPC("grpc", cfg.Auth.GRPCAddr, srv)
}

// revocationStore picks the store logout writes revoked token ids to.
func revocationStore(p *process, cfg *config.Config, deps *Deps) (token.RevocationStore, error) {
	if cfg.Auth.Revocation != config.RevocationRedis {
		return token.NewMemoryRevocationStore(), nil
	}
	client, err := deps.RedisConnector(p.ctx, cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	p.onStop(func(context.Context) error { return client.Close() })
	return token.NewRedisRevocationStore(client, revocationKeyPrefix), nil
}
