package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/feast-correlation/internal/adapter/httpapi"
	"github.com/couchcryptid/feast-correlation/internal/adapter/jsonstore"
	kafkaadapter "github.com/couchcryptid/feast-correlation/internal/adapter/kafka"
	"github.com/couchcryptid/feast-correlation/internal/analysis"
	"github.com/couchcryptid/feast-correlation/internal/cache"
	"github.com/couchcryptid/feast-correlation/internal/config"
	"github.com/couchcryptid/feast-correlation/internal/observability"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional; env overrides apply)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	store, err := jsonstore.Open(cfg.Store.EventsPath, cfg.Store.FeastsPath)
	if err != nil {
		logger.Error("failed to open snapshot store", "error", err)
		os.Exit(1)
	}

	results := cache.New(cfg.Cache.TTL, clock, metrics)

	// Every collaborator is constructed here, eagerly. A missing one fails
	// startup instead of surfacing as a nil access mid-request.
	engine, err := analysis.NewEngine(store, store, results, clock, logger, metrics,
		cfg.Analysis.Budget, cfg.Analysis.Workers)
	if err != nil {
		logger.Error("failed to construct engine", "error", err)
		os.Exit(1)
	}

	srv := httpapi.NewServer(cfg.HTTP.Addr, engine, cfg.Analysis, logger)

	var signals *kafkaadapter.SignalConsumer
	if cfg.Kafka.Enabled {
		signals = kafkaadapter.NewSignalConsumer(cfg, results, logger)
		logger.Info("ingestion signal consumer enabled", "topic", cfg.Kafka.Topic)
	} else {
		logger.Info("ingestion signal consumer disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	if signals != nil {
		go func() {
			if err := signals.Run(ctx); err != nil {
				logger.Error("signal consumer error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if signals != nil {
		if err := signals.Close(); err != nil {
			logger.Error("signal consumer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
