package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anonto42/nano-midea/social/internal/bootstrap"
	"github.com/anonto42/nano-midea/social/internal/router"
	"github.com/anonto42/nano-midea/social/pkg/config"
	"github.com/anonto42/nano-midea/social/pkg/logger"
	"github.com/anonto42/nano-midea/social/pkg/safego"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	zl, err := logger.NewZap(logger.Options{Level: cfg.Log.Level, ServiceName: "social-api", File: cfg.Log.File})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer zl.Sync() //nolint:errcheck
	var log logger.Logger = zl

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := bootstrap.NewContainer(ctx, cfg, log)
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	router.SetupMiddleware(e, log)
	router.SetupRoutes(e, container)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.Server.MetricsPort,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	safego.Go(ctx, log, "metrics-server", func() {
		log.Info(ctx, "Metrics server listening", "port", cfg.Server.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "Metrics server failed", "error", err.Error())
		}
	})

	serveErr := make(chan error, 1)
	safego.Go(ctx, log, "api-server", func() {
		log.Info(ctx, "API server listening", "port", cfg.Server.Port, "env", cfg.Server.Env)
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	})

	select {
	case <-ctx.Done():
		log.Info(context.Background(), "Shutdown signal received, draining")
	case err := <-serveErr:
		log.Error(context.Background(), "API server failed", "error", err.Error())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "API server graceful shutdown failed", "error", err.Error())
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "Metrics server graceful shutdown failed", "error", err.Error())
	}
	container.Close(shutdownCtx)

	log.Info(shutdownCtx, "Server stopped")
	return nil
}
