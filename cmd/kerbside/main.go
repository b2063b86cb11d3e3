// Kerbside - Parking Reservation Telemetry and Analytics Pipeline
// Copyright 2026 Kerbside Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openkerb/kerbside

// Package main is the entry point for the Kerbside telemetry daemon.
//
// Kerbside collects interaction events from a parking reservation client
// (searches, result clicks, spot interactions, search latency samples),
// batches them, and forwards them to an analytics ingestion backend. It
// also serves cached analytics query results and locally aggregated
// search-pattern insights to the client.
//
// # Startup Order
//
//  1. Configuration: layered load from defaults, config.yaml, and
//     environment variables (Koanf v2)
//  2. Logging: zerolog initialized from the loaded configuration
//  3. Pipeline: session provider, event buffer, connectivity monitor,
//     HTTP transport with circuit breaker, batch dispatcher, query
//     cache, analytics service, search history and insights aggregator
//  4. Supervisor: the dispatch loop runs under suture with restart
//     backoff
//  5. Admin HTTP server: /healthz and Prometheus /metrics
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (ANALYTICS_BASE_URL, LOG_LEVEL, ...)
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// # Signal Handling
//
// The daemon handles graceful shutdown on SIGINT and SIGTERM:
//   - Stops the admin HTTP server
//   - Cancels the supervisor, stopping the dispatch loop
//   - Performs one final best-effort flush of buffered events
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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openkerb/kerbside/internal/config"
	"github.com/openkerb/kerbside/internal/logging"
	"github.com/openkerb/kerbside/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("base_url", cfg.Transport.BaseURL).
		Int("batch_threshold", cfg.Telemetry.BatchThreshold).
		Dur("flush_interval", cfg.Telemetry.FlushInterval).
		Msg("Configuration loaded")

	p, err := pipeline.New(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to construct pipeline")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	supErr := p.ServeBackground(ctx)
	logging.Info().Msg("Dispatch supervisor started")

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	httpErr := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", addr).Msg("Admin server listening")
		httpErr <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	supDone := false
	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-httpErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Msg("Admin server failed")
		}
	case err := <-supErr:
		supDone = true
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor terminated")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("Error shutting down admin server")
	}

	// Stop the dispatch loop before the final flush so they do not race.
	cancel()
	if !supDone {
		<-supErr
	}

	if err := p.Destroy(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("Final flush did not complete")
	}

	logging.Info().Msg("Shutdown complete")
}
