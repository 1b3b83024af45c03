package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httphandler "github.com/splitledger/payment-confirm/internal/adapter/primary/http"
	"github.com/splitledger/payment-confirm/internal/adapter/secondary/database"
	"github.com/splitledger/payment-confirm/internal/adapter/secondary/gateway"
	"github.com/splitledger/payment-confirm/internal/adapter/secondary/messaging"
	"github.com/splitledger/payment-confirm/internal/config"
	"github.com/splitledger/payment-confirm/internal/constant/model/db"
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

	// Initialize secondary adapters: gateway client and messaging
	gatewayClient := gateway.NewClient(cfg.GatewayURL, cfg.GatewayAPIKey)
	msgClient, err := messaging.NewRabbitMQClient(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer msgClient.Close()

	// Initialize core service (implements input port)
	confirmations := service.NewConfirmationService(
		pendingStore,
		outcomeStore,
		gatewayClient,
		msgClient,
		cfg.PublicBaseURL,
		logger,
	)

	// Initialize primary adapter: HTTP handler (uses input port)
	handler := httphandler.NewConfirmationHandler(confirmations)

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Routes
	api := e.Group("/api/v1")
	api.POST("/operations", handler.BeginOperation)
	api.GET("/operations/return", handler.Return)
	api.GET("/operations/:reference", handler.GetOperation)

	// Observability
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	logger.Info("starting API server", "addr", addr)
	if err := e.Start(addr); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
