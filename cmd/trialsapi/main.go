// Package main provides the trialsapi command: a read-only HTTP API over the
// stored trials.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eutrials/internal/api"
	"eutrials/internal/config"
	"eutrials/internal/logger"
	"eutrials/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	addr := flag.String("addr", "", "Listen address (defaults to api.addr)")
	configPath := flag.String("config", "", "YAML configuration file")
	uri := flag.String("mongodb-uri", "", "Document store URI")
	database := flag.String("mongodb-database", "", "Document store database name")
	verbose := flag.Bool("verbose", false, "Enable debug logging")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	cfg.Storage.Enabled = true

	if *uri != "" {
		cfg.Storage.URI = *uri
	}

	if *database != "" {
		cfg.Storage.Database = *database
	}

	if *addr != "" {
		cfg.API.Addr = *addr
	}

	if *verbose {
		cfg.Logging.Level = "debug"
	}

	log := logger.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr := storage.NewManager(cfg.Storage, log)
	if !mgr.Connect(ctx) {
		log.Warn("storage unavailable, data routes will answer 503", "uri", cfg.Storage.URI)
	}

	defer mgr.Close(context.WithoutCancel(ctx))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           api.New(mgr, log, registry).Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(log.Slog().Handler(), slog.LevelError),
	}

	errCh := make(chan error, 1)

	go func() {
		log.Info("api listening", "addr", cfg.API.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("api server failed", "error", err)
			return 1
		}
	case <-ctx.Done():
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown failed", "error", err)
		}
	}

	return 0
}
