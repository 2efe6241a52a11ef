// Command server runs the booking API.  With EMBEDDED_WORKER=true it also
// settles queued reservation intents in the same process.
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
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/class-seat-booking/internal/app"
	"github.com/iliyamo/class-seat-booking/internal/config"
	"github.com/iliyamo/class-seat-booking/internal/handler"
	"github.com/iliyamo/class-seat-booking/internal/middleware"
	"github.com/iliyamo/class-seat-booking/internal/observability"
	"github.com/iliyamo/class-seat-booking/internal/router"
)

const serviceName = "class-booking-api"

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTLPEndpoint, serviceName)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		logger.Warn("redis unavailable; rate limiting and caching disabled", zap.Error(err))
	} else {
		defer func() { _ = rdb.Close() }()
	}
	cacheCfg := config.LoadCacheConfig()

	a, err := app.New(ctx, cfg, logger,
		app.WithSeatsChanged(middleware.CachePurger(cacheCfg, rdb, logger.Named("cache"))))
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("closing resources", zap.Error(err))
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(logger.Named("http")))

	router.RegisterRoutes(e, router.Deps{
		Classes:   handler.NewClassHandler(a.Classes, logger),
		Bookings:  handler.NewBookingHandler(a.Bookings, logger),
		Admin:     handler.NewAdminHandler(cfg.JWTSecret, cfg.AdminSecretHash, time.Duration(cfg.AccessTTLMin)*time.Minute, logger),
		JWTSecret: cfg.JWTSecret,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     cacheCfg,
		Redis:     rdb,
		Logger:    logger,
	})

	g, runCtx := errgroup.WithContext(ctx)

	if cfg.EmbeddedWorker {
		g.Go(func() error {
			logger.Info("starting embedded settlement worker")
			return a.Consumer().Run(runCtx)
		})
	}

	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env),
			zap.String("storage", cfg.StorageDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-runCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down http server")
		if err := e.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
