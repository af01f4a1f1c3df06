// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

// Package observability exposes Prometheus metrics and health probes for
// reservd processes.
package observability

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// ReadinessChecker reports whether the process is ready for traffic.
type ReadinessChecker func() bool

// Gate decision outcomes.
const (
	OutcomeAuthenticated = "authenticated"
	OutcomeRejected      = "rejected"
	OutcomeUnavailable   = "channel_unavailable"
)

// Metrics contains the reservd Prometheus metrics.
type Metrics struct {
	GateDecisions *prometheus.CounterVec
	HTTPRequests  *prometheus.CounterVec
	LoginAttempts *prometheus.CounterVec
	Notifications *prometheus.CounterVec
}

// NewMetrics creates and registers the reservd metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		GateDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservd_gate_decisions_total",
				Help: "Total number of auth gate decisions by transport and outcome",
			},
			[]string{"transport", "outcome"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservd_http_requests_total",
				Help: "Total number of HTTP requests by service, method and status",
			},
			[]string{"service", "method", "status"},
		),
		LoginAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservd_login_attempts_total",
				Help: "Total number of login attempts by result",
			},
			[]string{"result"},
		),
		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservd_notifications_total",
				Help: "Total number of notification messages handled by pattern and result",
			},
			[]string{"pattern", "result"},
		),
	}

	reg.MustRegister(m.GateDecisions, m.HTTPRequests, m.LoginAttempts, m.Notifications)
	return m
}

// RecordGateDecision counts one gate decision. A nil receiver is a no-op.
func (m *Metrics) RecordGateDecision(transport, outcome string) {
	if m == nil {
		return
	}
	m.GateDecisions.WithLabelValues(transport, outcome).Inc()
}

// RecordHTTPRequest counts one served HTTP request. A nil receiver is a no-op.
func (m *Metrics) RecordHTTPRequest(service, method string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(service, method, strconv.Itoa(status)).Inc()
}

// RecordLogin counts one login attempt. A nil receiver is a no-op.
func (m *Metrics) RecordLogin(result string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(result).Inc()
}

// RecordNotification counts one handled notification. A nil receiver is a no-op.
func (m *Metrics) RecordNotification(pattern, result string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(pattern, result).Inc()
}

// Server serves /metrics and the liveness and readiness probes of one
// reservd process.
type Server struct {
	addr     string
	registry *prometheus.Registry
	metrics  *Metrics
	isReady  ReadinessChecker
	logger   *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	srv      *http.Server
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the logger for server lifecycle events.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates an observability server for addr ("host:port"; port 0
// picks a free port). A nil readiness checker always reports ready.
func NewServer(addr string, isReady ReadinessChecker, opts ...ServerOption) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Server{
		addr:     addr,
		registry: registry,
		metrics:  NewMetrics(registry),
		isReady:  isReady,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Metrics returns the metrics registered on this server.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Handler returns the probe and metrics routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("GET /healthz/liveness", func(w http.ResponseWriter, _ *http.Request) {
		writeProbe(w, http.StatusOK, "alive")
	})
	mux.HandleFunc("GET /healthz/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if s.isReady == nil || s.isReady() {
			writeProbe(w, http.StatusOK, "ready")
			return
		}
		writeProbe(w, http.StatusServiceUnavailable, "not_ready")
	})
	return mux
}

// Start listens on the configured address and serves in the background. The
// returned channel yields a serve failure, if any, and is closed when the
// server stops.
func (s *Server) Start() (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil, oops.Code("OBSERVABILITY_RUNNING").Errorf("observability server already running")
	}

	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, oops.Code("LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.listener, s.srv = lis, srv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- oops.With("addr", lis.Addr().String()).Wrap(err)
		}
	}()

	s.logger.Info("observability server started", "addr", lis.Addr().String())
	return errCh, nil
}

// Stop shuts the server down. Stopping a server that is not running is a
// no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return oops.With("operation", "stop observability server").Wrap(err)
	}
	s.logger.Info("observability server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func writeProbe(w http.ResponseWriter, status int, state string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": state})
}
