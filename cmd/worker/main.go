// Command worker settles queued reservation intents.  Run as many copies as
// needed: they compete for the same queue and each intent is settled by
// one of them at a time.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/iliyamo/class-seat-booking/internal/app"
	"github.com/iliyamo/class-seat-booking/internal/config"
	"github.com/iliyamo/class-seat-booking/internal/middleware"
	"github.com/iliyamo/class-seat-booking/internal/observability"
)

const serviceName = "class-booking-worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	logger, err := observability.NewLogger(cfg.Env, cfg.LogLevel, serviceName)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.StorageDriver == config.DriverMemory {
		logger.Fatal("a standalone worker cannot share in-memory storage with the API; use STORAGE_DRIVER=mysql or EMBEDDED_WORKER=true on the server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTLPEndpoint, serviceName)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	// Settlements change availability behind the API's response cache.
	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		logger.Warn("redis unavailable; cached class listings expire by TTL only", zap.Error(err))
	} else {
		defer func() { _ = rdb.Close() }()
	}

	a, err := app.New(ctx, cfg, logger,
		app.WithSeatsChanged(middleware.CachePurger(config.LoadCacheConfig(), rdb, logger.Named("cache"))))
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer func() { _ = a.Close() }()

	logger.Info("settlement worker starting", zap.String("queue", cfg.Queue))
	if err := a.Consumer().Run(ctx); err != nil {
		logger.Error("worker stopped", zap.Error(err))
	}
	logger.Info("worker stopped")
}
