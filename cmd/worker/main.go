package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/splitledger/payment-confirm/internal/adapter/secondary/database"
	"github.com/splitledger/payment-confirm/internal/adapter/secondary/gateway"
	"github.com/splitledger/payment-confirm/internal/adapter/secondary/ledger"
	"github.com/splitledger/payment-confirm/internal/adapter/secondary/messaging"
	"github.com/splitledger/payment-confirm/internal/config"
	"github.com/splitledger/payment-confirm/internal/constant/model/db"
	"github.com/splitledger/payment-confirm/internal/core"
	"github.com/splitledger/payment-confirm/internal/core/service"
	"github.com/splitledger/payment-confirm/internal/port/output"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	// Initialize secondary adapter: pending-operation and outcome stores
	var (
		pendingStore output.PendingOperationStore
		outcomeStore output.OutcomeStore
	)
	if cfg.DatabaseURL != "" {
		dbConn, err := db.NewDB(cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbConn.Close()
		store := database.NewGormStore(dbConn.DB)
		pendingStore, outcomeStore = store, store
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory store (development only)")
		store := database.NewMemoryStore()
		pendingStore, outcomeStore = store, store
	}

	// Initialize secondary adapters: status sources and effect applier
	gatewayClient := gateway.NewClient(cfg.GatewayURL, cfg.GatewayAPIKey)
	ledgerClient := ledger.NewClient(cfg.LedgerURL, cfg.LedgerAPIKey)

	// Initialize secondary adapter: messaging (concrete type for worker)
	msgClient, err := messaging.NewRabbitMQClientConcrete(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer msgClient.Close()

	// Initialize core services: reconciler and loop runner
	reconciler := service.NewReconciler(
		pendingStore,
		outcomeStore,
		gatewayClient,
		ledgerClient,
		ledgerClient,
		logger,
	)
	runner := service.NewRunner(pendingStore, reconciler, service.LoopConfig{
		PollInterval:      cfg.PollInterval,
		ConfirmTimeout:    cfg.ConfirmTimeout,
		SourceErrorBudget: cfg.SourceErrorBudget,
	}, logger).WithOutcomeHandler(func(outcome *core.ConfirmationOutcome) {
		if err := msgClient.PublishOutcome(outcome); err != nil {
			logger.Warn("failed to publish outcome",
				"reference", outcome.Reference, "error", err)
		}
	})

	// Start consuming confirmation requests
	err = msgClient.ConsumeConfirmationRequests(func(msg messaging.ConfirmationRequestedMessage) error {
		return runner.Ensure(context.Background(), msg.Reference)
	})
	if err != nil {
		logger.Error("failed to start consuming confirmation requests", "error", err)
		os.Exit(1)
	}

	// Adopt whatever a previous run left behind, then keep sweeping: the
	// user who never returned, operations that timed out, worker restarts.
	runner.Sweep(context.Background(), 0, cfg.SweepLimit)
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.SweepEvery, func() {
		runner.Sweep(context.Background(), cfg.SweepAfter, cfg.SweepLimit)
	}); err != nil {
		logger.Error("failed to schedule sweep", "error", err)
		os.Exit(1)
	}
	scheduler.Start()

	// Metrics listener
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		addr := ":" + cfg.MetricsPort
		logger.Info("starting metrics listener", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Warn("metrics listener stopped", "error", err)
		}
	}()

	logger.Info("confirmation worker started")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logger.Warn("loops did not drain before deadline", "error", err)
	}
}
