package app

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/amirasaad/unitconv/pkg/commands"
	"github.com/amirasaad/unitconv/pkg/config"
	"github.com/amirasaad/unitconv/pkg/eventbus"
	"github.com/amirasaad/unitconv/pkg/exchange"
)

// Deps contains the infrastructure the application is built from. Store and
// EventBus are optional.
type Deps struct {
	Fetcher  exchange.Fetcher
	Store    exchange.SnapshotStore
	EventBus eventbus.Bus
	Logger   *slog.Logger
	// Closers are released by App.Close in reverse order.
	Closers []io.Closer
}

// App owns the single rate cache of the process and the command executor
// built on it.
type App struct {
	Deps     *Deps
	Config   *config.App
	Rates    *exchange.RateCache
	Executor *commands.Executor
}

func New(deps *Deps, cfg *config.App) *App {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	app := &App{
		Deps:   deps,
		Config: cfg,
	}
	app.Rates = exchange.NewRateCache(deps.Fetcher, exchange.Options{
		Expiration:      cfg.Cache.Expiration,
		StrictTimestamp: cfg.Cache.StrictTimestamp,
		Store:           deps.Store,
		Bus:             deps.EventBus,
		Logger:          deps.Logger,
	})
	app.Executor = commands.NewExecutor(app.Rates, deps.Logger)
	app.setupEventBus()
	return app
}

// Start restores the last snapshot. It never fails: without a snapshot the
// first currency lookup refreshes.
func (a *App) Start(ctx context.Context) {
	a.Rates.Restore(ctx)
}

// Close releases every closer, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.Deps.Closers) - 1; i >= 0; i-- {
		if err := a.Deps.Closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.Deps.Closers = nil
	return errors.Join(errs...)
}
