// Package app assembles the storage, ledger, queue and coordinator from
// configuration.  Both the API server and the standalone worker start from
// here so they agree on how the pieces fit together.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/class-seat-booking/internal/config"
	"github.com/iliyamo/class-seat-booking/internal/database"
	"github.com/iliyamo/class-seat-booking/internal/handler"
	"github.com/iliyamo/class-seat-booking/internal/ledgerclient"
	"github.com/iliyamo/class-seat-booking/internal/memstore"
	"github.com/iliyamo/class-seat-booking/internal/queue"
	"github.com/iliyamo/class-seat-booking/internal/repository"
	"github.com/iliyamo/class-seat-booking/internal/service"
)

// App holds the assembled components.
type App struct {
	// Classes is the local ledger, which also owns the class catalogue.
	Classes   handler.ClassLedger
	Bookings  *service.BookingService
	Publisher *queue.Publisher

	cfg     config.Config
	logger  *zap.Logger
	closers []func() error
}

// Option adjusts how New assembles the App.
type Option func(*options)

type options struct {
	seatsChanged func(ctx context.Context, classID string)
}

// WithSeatsChanged registers fn to run after a settlement confirms a
// booking.  A nil fn is ignored.
func WithSeatsChanged(fn func(ctx context.Context, classID string)) Option {
	return func(o *options) { o.seatsChanged = fn }
}

// New builds an App.  With the mysql driver it waits for the database and
// ensures the schema.  The booking saga reserves through a remote ledger
// when LEDGER_URL is set and through the local one otherwise.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, logger: logger}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var store service.BookingStore
	switch cfg.StorageDriver {
	case config.DriverMemory:
		logger.Warn("using in-memory storage; state is lost on restart")
		a.Classes = memstore.NewLedger()
		store = memstore.NewBookingStore()
	default:
		db, err := database.WaitForDB(ctx, cfg.DB, 30, 2*time.Second)
		if err != nil {
			return nil, fmt.Errorf("connect mysql: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := database.EnsureSchema(ctx, db); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		a.Classes = repository.NewClassRepo(db)
		store = repository.NewBookingRepo(db)
	}

	var seats service.SeatLedger = a.Classes
	if cfg.LedgerURL != "" {
		logger.Info("using remote seat ledger", zap.String("url", cfg.LedgerURL))
		seats = ledgerclient.New(ledgerclient.Config{
			BaseURL: cfg.LedgerURL,
			Token:   cfg.LedgerToken,
			Timeout: cfg.LedgerTimeout,
		})
	}

	a.Publisher = queue.NewPublisher(cfg.RabbitURL, cfg.Queue, logger.Named("publisher"))
	a.closers = append(a.closers, a.Publisher.Close)

	a.Bookings = service.New(service.Deps{
		Ledger:       seats,
		Store:        store,
		Publisher:    a.Publisher,
		Logger:       logger.Named("bookings"),
		Timeout:      cfg.CallTimeout,
		SeatsChanged: o.seatsChanged,
	})
	return a, nil
}

// Consumer returns a queue consumer that settles intents with the booking
// service.
func (a *App) Consumer() *queue.Consumer {
	return queue.NewConsumer(queue.ConsumerConfig{
		URL:      a.cfg.RabbitURL,
		Queue:    a.cfg.Queue,
		Prefetch: a.cfg.Prefetch,
		Workers:  a.cfg.Workers,
	}, a.Bookings.Settle, a.logger.Named("worker"))
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() error {
	var errs error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = errors.Join(errs, a.closers[i]())
	}
	a.closers = nil
	return errs
}
