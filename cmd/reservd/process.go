// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package main

import (
	"context"
	cryptotls "crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"google.golang.org/grpc"

	"github.com/reservd/reservd/internal/config"
	"github.com/reservd/reservd/internal/observability"
	"github.com/reservd/reservd/internal/repository"
	"github.com/reservd/reservd/internal/repository/memory"
	"github.com/reservd/reservd/internal/repository/postgres"
	"github.com/reservd/reservd/internal/tls"
	"github.com/reservd/reservd/pkg/errutil"
)

// shutdownTimeout bounds a graceful shutdown.
const shutdownTimeout = 10 * time.Second

// memoryScheme selects in-memory repositories instead of PostgreSQL.
const memoryScheme = "memory://"

// process owns the servers and background tasks of one running service and
// shuts them down together.
type process struct {
	name    string
	logger  *slog.Logger
	metrics *observability.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	ready atomic.Bool
	errCh chan error
	tasks sync.WaitGroup

	mu    sync.Mutex
	stops []func(context.Context) error
	addrs map[string]string
}

// newProcess starts the observability server when cfg names an address.
func newProcess(ctx context.Context, name string, cfg *config.Config, logger *slog.Logger) (*process, error) {
	ctx, cancel := context.WithCancel(ctx)
	p := &process{
		name:   name,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		errCh:  make(chan error, 8),
		addrs:  make(map[string]string),
	}

	if cfg.MetricsAddr != "" {
		obs := observability.NewServer(cfg.MetricsAddr, p.ready.Load, observability.WithLogger(logger))
		obsErr, err := obs.Start()
		if err != nil {
			cancel()
			return nil, oops.Code("OBSERVABILITY_START_FAILED").With("addr", cfg.MetricsAddr).Wrap(err)
		}
		p.metrics = obs.Metrics()
		p.addrs["metrics"] = obs.Addr()
		p.watch("observability", obsErr)
		p.onStop(obs.Stop)
	}
	return p, nil
}

// onStop registers fn to run at shutdown. Functions run in reverse order.
func (p *process) onStop(fn func(context.Context) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops = append(p.stops, fn)
}

// watch forwards the first error of a server's error channel.
func (p *process) watch(server string, errCh <-chan error) {
	p.tasks.Add(1)
	go func() {
		defer p.tasks.Done()
		select {
		case err, ok := <-errCh:
			if ok && err != nil {
				p.fail(oops.With("server", server).Wrap(err))
			}
		case <-p.ctx.Done():
		}
	}()
}

// background runs task until shutdown. A task error stops the process.
func (p *process) background(name string, task func(ctx context.Context) error) {
	p.tasks.Add(1)
	go func() {
		defer p.tasks.Done()
		if err := task(p.ctx); err != nil && p.ctx.Err() == nil {
			p.fail(oops.With("task", name).Wrap(err))
		}
	}()
}

func (p *process) fail(err error) {
	select {
	case p.errCh <- err:
	default:
	}
}

// serveHTTP binds srv.Addr and serves srv until shutdown.
func (p *process) serveHTTP(name string, srv *http.Server) error {
	lis, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return oops.Code("LISTEN_FAILED").With("server", name).With("addr", srv.Addr).Wrap(err)
	}
	p.record(name, lis.Addr().String())

	p.tasks.Add(1)
	go func() {
		defer p.tasks.Done()
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.fail(oops.With("server", name).Wrap(err))
		}
	}()
	p.onStop(srv.Shutdown)
	return nil
}

// serveGRPC binds addr and serves srv until shutdown.
func (p *process) serveGRPC(name, addr string, srv *grpc.Server) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return oops.Code("LISTEN_FAILED").With("server", name).With("addr", addr).Wrap(err)
	}
	p.record(name, lis.Addr().String())

	p.tasks.Add(1)
	go func() {
		defer p.tasks.Done()
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			p.fail(oops.With("server", name).Wrap(err))
		}
	}()
	p.onStop(func(ctx context.Context) error {
		done := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			srv.Stop()
			<-done
		}
		return nil
	})
	return nil
}

func (p *process) record(name, addr string) {
	p.mu.Lock()
	p.addrs[name] = addr
	p.mu.Unlock()
	p.logger.Info("listening", "server", name, "addr", addr)
}

// Addr returns the bound address of the named server, or "".
func (p *process) Addr(name string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addrs[name]
}

// wait marks the process ready and blocks until a signal, a server failure
// or the end of the parent context, then shuts everything down.
func (p *process) wait() error {
	p.ready.Store(true)
	p.logger.Info(p.name+" ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		p.logger.Info("received shutdown signal", "signal", sig.String())
	case runErr = <-p.errCh:
		errutil.LogError(p.ctx, p.logger, "server failed, shutting down", runErr)
	case <-p.ctx.Done():
		p.logger.Info("context cancelled, shutting down")
	}

	return errors.Join(runErr, p.shutdown())
}

// shutdown stops everything registered with onStop and waits for the
// background tasks.
func (p *process) shutdown() error {
	p.ready.Store(false)
	p.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	p.mu.Lock()
	stops := p.stops
	p.stops = nil
	p.mu.Unlock()

	var errs []error
	for i := len(stops) - 1; i >= 0; i-- {
		if err := stops[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	p.tasks.Wait()
	p.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

// backend is where a process keeps its records: a PostgreSQL pool, or
// process memory when the database URI is memory://.
type backend struct {
	pool *pgxpool.Pool
}

// openBackend connects to the database named by cfg and applies pending
// migrations when auto-migrate is on.
func openBackend(p *process, cfg *config.Config, deps *Deps) (*backend, error) {
	if strings.HasPrefix(cfg.Database.URI, memoryScheme) {
		p.logger.Warn("using in-memory storage, records are lost on exit")
		return &backend{}, nil
	}

	pool, err := deps.PostgresConnector(p.ctx, cfg.Database.URI)
	if err != nil {
		return nil, err
	}
	p.onStop(func(context.Context) error {
		pool.Close()
		return nil
	})

	if cfg.Database.AutoMigrate {
		if err := autoMigrate(cfg.Database.URI, deps, p.logger); err != nil {
			return nil, err
		}
	}
	return &backend{pool: pool}, nil
}

// repositoryFor returns the repository for schema on b.
func repositoryFor[T any](b *backend, schema repository.Schema[T]) repository.Repository[T] {
	if b.pool == nil {
		return memory.New(schema)
	}
	return postgres.New(b.pool, schema)
}

// serverTLS returns the mTLS server config for service, or nil with TLS off.
func serverTLS(cfg *config.Config, service string) (*cryptotls.Config, error) {
	if !cfg.TLS.Enabled {
		return nil, nil
	}
	return tls.LoadServerTLS(cfg.TLS.CertsDir, service)
}

// clientTLS returns the mTLS client config service uses to reach peer, or
// nil with TLS off.
func clientTLS(cfg *config.Config, service, peer string) (*cryptotls.Config, error) {
	if !cfg.TLS.Enabled {
		return nil, nil
	}
	return tls.LoadClientTLS(cfg.TLS.CertsDir, service, peer)
}
