// Package server exposes the HTTP API: session connect/disconnect, transfer
// submission, the transfer ledger, cached balances, and SSE event streams.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jasong-03/lazorkit-gateway/service/config"
	"github.com/jasong-03/lazorkit-gateway/service/db"
	"github.com/jasong-03/lazorkit-gateway/service/metrics"
	natspkg "github.com/jasong-03/lazorkit-gateway/service/nats"
	"github.com/jasong-03/lazorkit-gateway/service/temporal"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the HTTP server for the transfer gateway.
type Server struct {
	addr         string
	cfg          *config.Config
	store        *db.Store
	scheduler    temporal.Scheduler
	engine       TransferEngine
	connector    WalletConnector
	balances     BalanceTracker
	publisher    natspkg.Publisher
	ssePublisher *SSEPublisher
	sessions     *SessionStore
	metrics      *metrics.Metrics
	logger       *slog.Logger
	server       *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The ssePublisher is optional; if nil, SSE endpoints won't be available.
// The metrics is optional; if nil, the metrics endpoint won't be available.
func New(addr string, cfg *config.Config, store *db.Store, scheduler temporal.Scheduler, engine TransferEngine, connector WalletConnector, balances BalanceTracker, publisher natspkg.Publisher, ssePublisher *SSEPublisher, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:         addr,
		cfg:          cfg,
		store:        store,
		scheduler:    scheduler,
		engine:       engine,
		connector:    connector,
		balances:     balances,
		publisher:    publisher,
		ssePublisher: ssePublisher,
		sessions:     NewSessionStore(),
		metrics:      m,
		logger:       logger,
	}
}

// Start starts the HTTP server. It blocks until Shutdown is called.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Session routes
	mux.Handle("POST /api/v1/sessions", handleConnect(s.connector, s.sessions, s.store, s.scheduler, s.balances, s.cfg.DefaultPollInterval, s.cfg.MinPollInterval, s.logger))
	mux.Handle("DELETE /api/v1/sessions/{address}", handleDisconnect(s.connector, s.sessions, s.store, s.balances, s.logger))

	// Transfer routes
	mux.Handle("POST /api/v1/transfers", handleSubmitTransfer(s.engine, s.sessions, s.store, s.publisher, s.balances, s.logger))
	mux.Handle("GET /api/v1/transfers", handleListTransfers(s.store, s.logger))

	// Wallet routes
	mux.Handle("GET /api/v1/wallets", handleListWallets(s.store, s.logger))
	mux.Handle("GET /api/v1/wallets/{address}", handleGetWallet(s.store, s.logger))
	mux.Handle("DELETE /api/v1/wallets/{address}", handleDeleteWallet(s.store, s.scheduler, s.sessions, s.balances, s.logger))

	// Balance routes
	mux.Handle("GET /api/v1/balances/{address}", handleGetBalances(s.balances, s.logger))

	// SSE streaming endpoints (if SSE publisher is configured)
	if s.ssePublisher != nil {
		mux.Handle("GET /api/v1/stream/transfers", handleStreamTransfers(s.ssePublisher, s.logger))
		mux.Handle("GET /api/v1/stream/transfers/{address}", handleStreamTransfers(s.ssePublisher, s.logger))
		mux.Handle("GET /api/v1/stream/balances", handleStreamBalances(s.ssePublisher, s.logger))
		mux.Handle("GET /api/v1/stream/balances/{address}", handleStreamBalances(s.ssePublisher, s.logger))
		s.logger.Info("SSE streaming endpoints enabled")
	} else {
		s.logger.Warn("SSE publisher not configured, streaming endpoints disabled")
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	var handler http.Handler = corsMiddleware(mux)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		handler = metrics.HTTPMetricsMiddleware(s.metrics, "api")(corsMiddleware(mux))
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE connections stay open
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if s.ssePublisher != nil {
		s.ssePublisher.Close()
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS
// preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
