package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/clinic-frontdesk/internal/api/router"
	"github.com/wolfman30/clinic-frontdesk/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinic-frontdesk/internal/config"
	"github.com/wolfman30/clinic-frontdesk/internal/observability/metrics"
	"github.com/wolfman30/clinic-frontdesk/pkg/logging"
)

func main() {
	// .env is optional outside local development
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic front desk API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"timezone", cfg.ClinicTimezone,
	)

	ctx := context.Background()

	// Initialize storage
	pool, err := bootstrap.BuildPostgresPool(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
	}
	sqlDB, err := bootstrap.OpenSQLDB(cfg)
	if err != nil {
		logger.Error("failed to open audit database", "error", err)
		os.Exit(1)
	}
	if sqlDB != nil {
		defer sqlDB.Close()
	}
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}
	stores := bootstrap.BuildStores(cfg, pool, sqlDB, redisClient, logger)

	mediaStore, err := bootstrap.BuildMediaStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to configure media store", "error", err)
		os.Exit(1)
	}

	// Initialize services and handlers
	frontDeskMetrics := metrics.NewFrontDeskMetrics(nil)
	svc, err := bootstrap.BuildServices(cfg, stores, mediaStore, frontDeskMetrics, logger)
	if err != nil {
		logger.Error("failed to build services", "error", err)
		os.Exit(1)
	}
	routerCfg := bootstrap.RouterConfig(cfg, svc, stores, bootstrap.BuildHealthChecks(pool, redisClient), promhttp.Handler(), logger)
	r := router.New(routerCfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr, "backend", stores.Backend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}
