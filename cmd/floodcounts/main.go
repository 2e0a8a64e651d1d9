package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/floodwatch/floodcounts/internal/adapter/feed"
	"github.com/floodwatch/floodcounts/internal/adapter/httpadapter"
	kafkaadapter "github.com/floodwatch/floodcounts/internal/adapter/kafka"
	"github.com/floodwatch/floodcounts/internal/adapter/localcsv"
	"github.com/floodwatch/floodcounts/internal/adapter/postgres"
	"github.com/floodwatch/floodcounts/internal/config"
	"github.com/floodwatch/floodcounts/internal/observability"
	"github.com/floodwatch/floodcounts/internal/poller"
	"github.com/floodwatch/floodcounts/internal/service"
	"github.com/floodwatch/floodcounts/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	primary, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect primary backend", "error", err)
		os.Exit(1)
	}
	defer primary.Close()

	fallback, err := localcsv.New(cfg.FallbackDir)
	if err != nil {
		logger.Error("failed to prepare fallback backend", "error", err)
		os.Exit(1)
	}

	recordStore := store.New(primary, fallback, store.Options{
		RetryAttempts: cfg.StoreRetryAttempts,
		RetryDelay:    cfg.StoreRetryDelay,
		ProbeInterval: cfg.StoreProbeInterval,
	}, logger, metrics)

	// Snapshot publishing is feature-flagged via KAFKA_ENABLED / KAFKA_BROKERS.
	var publisher poller.Publisher
	if cfg.KafkaEnabled {
		kp := kafkaadapter.NewPublisher(cfg, logger)
		defer func() {
			if err := kp.Close(); err != nil {
				logger.Error("kafka publisher close error", "error", err)
			}
		}()
		publisher = kp
		logger.Info("snapshot publishing enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("snapshot publishing disabled")
	}

	feedClient := feed.NewClient(cfg.FeedURL, cfg.FeedTimeout, logger)
	p := poller.New(feedClient, recordStore, publisher, cfg.PollInterval, nil, logger, metrics)
	svc := service.New(recordStore, logger)

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, p, nil, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start backend recovery probe.
	go recordStore.RunProbe(ctx)

	// Start the fetch-and-store loop.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("poller error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
