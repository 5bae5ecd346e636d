package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace_ledger/internal/api"
	"marketplace_ledger/internal/config"
	"marketplace_ledger/internal/ledger"
	"marketplace_ledger/internal/notify"
	"marketplace_ledger/internal/repository/memory"
	"marketplace_ledger/pkg/crypto"
	"marketplace_ledger/pkg/metrics"
)

const (
	appName = "marketplace_ledger"
)

func main() {
	logger := setupLogger()
	logger.Info("Starting application",
		slog.String("name", appName))

	configPath := os.Getenv("LEDGER_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	timing, err := ledger.ParseDisputeTiming(cfg.DisputeTiming)
	if err != nil {
		logger.Error("Invalid dispute timing policy", slog.String("error", err.Error()))
		os.Exit(1)
	}

	accountRepo := memory.NewAccountRepository()
	txRepo := memory.NewTransactionRepository()
	escrowRepo := memory.NewEscrowRepository()
	feeRepo := memory.NewFeeRepository()

	engine, err := ledger.New(accountRepo, txRepo, escrowRepo, feeRepo, ledger.Config{
		FeeRateBasisPoints: cfg.FeeRateBasisPoints,
		DisputeTiming:      timing,
	}, logger)
	if err != nil {
		logger.Error("Failed to build ledger engine", slog.String("error", err.Error()))
		os.Exit(1)
	}

	metricsCollector := metrics.NewCollector(logger)
	signer := crypto.NewSigner(cfg.SigningSecret, logger)
	notifier := setupNotifier(cfg, logger)

	apiHandler := api.NewHandler(engine, metricsCollector, signer, notifier, api.Options{
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}, logger)

	metricsServer := metricsCollector.StartMetricsServer(cfg.MetricsAddr)
	httpServer := startHTTPServer(cfg.HTTPAddr, apiHandler, logger)

	statsDone := make(chan struct{})
	go refreshGauges(engine, metricsCollector, logger, statsDone)

	waitForShutdown(logger, httpServer, metricsServer, notifier, metricsCollector, statsDone)
	logger.Info("Application shutdown complete")
}

func setupLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}

func setupNotifier(cfg config.Config, logger *slog.Logger) *notify.Notifier {
	emailSender := &notify.MockEmailSender{}
	slackSender := &notify.MockSlackSender{}

	return notify.NewNotifier(emailSender, slackSender, cfg.NotifyWorkers, logger)
}

func startHTTPServer(addr string, apiHandler *api.Handler, logger *slog.Logger) *http.Server {
	server := &http.Server{
		Addr:         addr,
		Handler:      apiHandler.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	return server
}

// refreshGauges keeps the point-in-time Prometheus gauges in step with
// the ledger.
func refreshGauges(engine *ledger.Ledger, collector *metrics.Collector, logger *slog.Logger, done <-chan struct{}) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			stats, err := engine.Stats(ctx)
			if err != nil {
				cancel()
				logger.Error("Failed to collect ledger stats", slog.String("error", err.Error()))
				continue
			}
			fees, err := engine.PlatformFeeStats(ctx)
			cancel()
			if err != nil {
				logger.Error("Failed to collect fee stats", slog.String("error", err.Error()))
				continue
			}
			collector.UpdateLedgerGauges(
				stats.TotalBalance,
				stats.TotalEscrowAmount,
				stats.ActiveEscrows,
				fees.TotalFees,
				fees.CollectedFees,
			)
		case <-done:
			return
		}
	}
}

func waitForShutdown(
	logger *slog.Logger,
	httpServer *http.Server,
	metricsServer *http.Server,
	notifier *notify.Notifier,
	collector *metrics.Collector,
	statsDone chan struct{},
) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("Shutdown signal received")
	close(statsDone)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", slog.String("error", err.Error()))
	}

	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Error("Metrics server shutdown failed", slog.String("error", err.Error()))
	}

	if err := notifier.Shutdown(ctx); err != nil {
		logger.Error("Notifier shutdown failed", slog.String("error", err.Error()))
	}

	if err := collector.Shutdown(ctx); err != nil {
		logger.Error("Metrics collector shutdown failed", slog.String("error", err.Error()))
	}
}
