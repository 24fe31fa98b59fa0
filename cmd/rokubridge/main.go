package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maaxton/roku-integration/internal/actions"
	"github.com/maaxton/roku-integration/internal/config"
	"github.com/maaxton/roku-integration/internal/db"
	"github.com/maaxton/roku-integration/internal/discovery"
	"github.com/maaxton/roku-integration/internal/events"
	"github.com/maaxton/roku-integration/internal/httpapi"
	"github.com/maaxton/roku-integration/internal/logging"
	"github.com/maaxton/roku-integration/internal/metrics"
	"github.com/maaxton/roku-integration/internal/poller"
	"github.com/maaxton/roku-integration/internal/reconcile"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		l := logging.New("info")
		l.Fatal().Err(err).Msg("failed to load config")
	}

	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("database_url is required")
	}
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	queries := pool.Queries()
	if err := queries.Bootstrap(ctx); err != nil {
		logger.Fatal().Err(err).Msg("schema bootstrap failed")
	}

	m := metrics.New()
	hub := events.NewHub(logger)
	defer hub.Close()

	rec := reconcile.New(logger, queries, hub, nil)

	// An empty device table with historical entity rows means the local
	// store was wiped; try to rebuild it before syncing.
	count, err := queries.CountRokuDevices(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to count devices")
	}
	if count == 0 {
		recovered, err := rec.Recover(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("device recovery failed")
		} else if len(recovered) > 0 {
			logger.Info().Int("devices", len(recovered)).Msg("recovered devices from entity history")
		}
	}
	if err := rec.Sync(ctx); err != nil {
		logger.Error().Err(err).Msg("registry sync failed")
	}

	worker := poller.New(logger, queries, hub, poller.Options{Interval: cfg.PollInterval}, m)
	go worker.Run(ctx)

	intake := discovery.New(logger, queries, rec, hub, nil, m)

	registry := actions.NewRegistry()
	actions.New(logger, queries, worker, nil).RegisterAll(registry)

	h := httpapi.NewHandler(logger, pool, httpapi.Options{
		Hub:     hub,
		Intake:  intake,
		Poller:  worker,
		Actions: registry,
		Metrics: m,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("roku-bridge listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info().Msg("shutdown complete")
}
