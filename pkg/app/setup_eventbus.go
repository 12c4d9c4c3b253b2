// Package app wires the rate cache, the command executor and the event bus
// into one application context.
package app

import (
	"context"
	"log/slog"

	"github.com/amirasaad/unitconv/pkg/eventbus"
	"github.com/amirasaad/unitconv/pkg/exchange"
)

// setupEventBus registers the event handlers of the application.
func (a *App) setupEventBus() {
	bus := a.Deps.EventBus
	if bus == nil {
		return
	}
	bus.Register(
		exchange.EventRatesRefreshed,
		HandleRatesRefreshed(a.Rates, a.Deps.Store != nil, a.Deps.Logger),
	)
}

// HandleRatesRefreshed adopts refreshes announced by other processes. Events
// this process emitted itself carry the timestamp already in memory and are
// ignored. Without a shared store there is nothing to adopt.
func HandleRatesRefreshed(rates *exchange.RateCache, shared bool, logger *slog.Logger) eventbus.HandlerFunc {
	logger = logger.With(slog.String("handler", "rates_refreshed"))
	return func(ctx context.Context, e eventbus.Event) error {
		var evt exchange.RatesRefreshed
		switch v := e.(type) {
		case exchange.RatesRefreshed:
			evt = v
		case *exchange.RatesRefreshed:
			evt = *v
		default:
			logger.Warn("Unexpected event", "type", e.Type())
			return nil
		}

		if !evt.Timestamp.After(rates.LastRefreshed()) {
			return nil
		}
		logger.Info("Peer refreshed exchange rates",
			"refresh_id", evt.ID.String(),
			"source", evt.Source,
			"count", evt.Count,
		)
		if !shared {
			return nil
		}
		rates.Sync(ctx)
		return nil
	}
}
