// Package exchange holds the currency rate cache: the latest known exchange
// rates for every supported currency, priced against units.BaseCurrency,
// refreshed as one table from a remote pricing source and mirrored to an
// optional durable snapshot.
package exchange

import (
	"context"
	"time"

	"github.com/amirasaad/unitconv/pkg/eventbus"
	"github.com/amirasaad/unitconv/pkg/units"
	"github.com/google/uuid"
)

// Quote is one "latest, all rates" response from a pricing source.
type Quote struct {
	// Timestamp is when the source priced the rates. It is zero when the
	// source sent no usable timestamp.
	Timestamp time.Time
	// Rates maps currency codes to units per base currency. Codes the
	// application does not know are kept here and dropped by the cache.
	Rates map[string]float64
	// Source names the provider that produced the quote.
	Source string
}

// Fetcher retrieves the full rate table in a single request.
type Fetcher interface {
	FetchLatest(ctx context.Context) (*Quote, error)
	Name() string
}

// Snapshot is the durable form of the rate table.
type Snapshot struct {
	Rates         map[units.Currency]float64
	LastRefreshed time.Time
}

// SnapshotStore persists the rate table between runs. Load returns a nil
// snapshot and a nil error when nothing has been saved yet.
type SnapshotStore interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}

// EventRatesRefreshed is the event type emitted after a committed refresh.
const EventRatesRefreshed = "exchange.rates_refreshed"

// RatesRefreshed announces a committed refresh.
type RatesRefreshed struct {
	ID        uuid.UUID `json:"id"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count"`
	// LocalClock is set when the source timestamp was unusable and the
	// refresh was stamped with the local clock instead.
	LocalClock bool `json:"local_clock"`
}

// Type implements eventbus.Event.
func (RatesRefreshed) Type() string { return EventRatesRefreshed }

// EventFactories lets buses that cross a process boundary decode the events
// this package emits.
func EventFactories() eventbus.Factories {
	return eventbus.Factories{
		EventRatesRefreshed: func() eventbus.Event { return &RatesRefreshed{} },
	}
}
