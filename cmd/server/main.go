package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jasong-03/lazorkit-gateway/service/balance"
	"github.com/jasong-03/lazorkit-gateway/service/config"
	"github.com/jasong-03/lazorkit-gateway/service/db"
	"github.com/jasong-03/lazorkit-gateway/service/lazorkit"
	"github.com/jasong-03/lazorkit-gateway/service/metrics"
	natspkg "github.com/jasong-03/lazorkit-gateway/service/nats"
	"github.com/jasong-03/lazorkit-gateway/service/server"
	"github.com/jasong-03/lazorkit-gateway/service/solana"
	"github.com/jasong-03/lazorkit-gateway/service/temporal"
	"github.com/jasong-03/lazorkit-gateway/service/transfer"
)

func main() {
	// Load and validate configuration from environment.
	// This fails fast if any required config is missing or invalid.
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Prometheus metrics collector
	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	store := db.NewStore(dbPool, metricsCollector)

	// Solana RPC client
	mint := solanago.MustPublicKeyFromBase58(cfg.USDCMintAddress)
	chain := solana.NewClient(solana.NewRPCClient(cfg.SolanaRPCURL), cfg.SolanaRPCURL, metricsCollector, logger)
	logger.Info("initialized solana RPC client", "url", cfg.SolanaRPCURL, "usdc_mint", cfg.USDCMintAddress)

	// Lazorkit portal/paymaster client
	connector := lazorkit.NewClient(cfg.PaymasterURL, cfg.PortalURL, nil, metricsCollector, logger)

	// Transfer engine
	engine := transfer.NewEngine(chain, connector, mint, int32(cfg.USDCDecimals), cfg.RentExemptMinimumLamports, metricsCollector, logger)

	// Balance tracking
	balances := balance.NewManager(chain, mint, cfg.DefaultPollInterval, metricsCollector, logger)
	defer balances.Close()

	// NATS publisher
	publisher, err := natspkg.NewPublisher(cfg.NATSURL, logger)
	if err != nil {
		logger.Error("failed to create NATS publisher", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	// SSE publisher (separate NATS connection)
	ssePublisher, err := server.NewSSEPublisher(cfg.NATSURL, metricsCollector, logger)
	if err != nil {
		logger.Error("failed to create SSE publisher", "error", err)
		os.Exit(1)
	}

	// Temporal client for schedule management
	temporalClient, err := temporal.NewClient(cfg.TemporalHost, cfg.TemporalNamespace, cfg.TemporalTaskQueue, logger)
	if err != nil {
		logger.Error("failed to connect to temporal", "error", err)
		os.Exit(1)
	}
	defer temporalClient.Close()

	httpServer := server.New(cfg.ServerAddr, cfg, store, temporalClient, engine, connector, balances, publisher, ssePublisher, metricsCollector, logger)

	logger.Info("server initialized, all dependencies ready",
		"solana_rpc", cfg.SolanaRPCURL,
		"nats_url", cfg.NATSURL,
		"temporal_host", cfg.TemporalHost,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
