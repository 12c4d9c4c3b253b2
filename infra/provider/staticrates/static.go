// Package staticrates is an offline pricing source that serves a fixed table.
package staticrates

import (
	"context"
	"maps"
	"time"

	"github.com/amirasaad/unitconv/pkg/exchange"
)

// Name identifies this provider in logs and events.
const Name = "static"

// DefaultRates are indicative units-per-USD rates for every supported
// currency.
var DefaultRates = map[string]float64{
	"USD": 1,
	"EUR": 0.92,
	"JPY": 151.3,
	"KRW": 1371.5,
	"GBP": 0.79,
	"AUD": 1.52,
	"CAD": 1.37,
	"CHF": 0.9,
	"CNY": 7.24,
	"INR": 83.4,
	"KWD": 0.307,
	"EGP": 47.1,
}

// Fetcher implements exchange.Fetcher over an in-memory table. Each fetch is
// stamped with the current time.
type Fetcher struct {
	rates map[string]float64
	now   func() time.Time
}

// New returns a Fetcher serving rates, or DefaultRates when rates is nil.
func New(rates map[string]float64) *Fetcher {
	if rates == nil {
		rates = DefaultRates
	}
	return &Fetcher{rates: maps.Clone(rates), now: time.Now}
}

func (f *Fetcher) Name() string { return Name }

func (f *Fetcher) FetchLatest(ctx context.Context) (*exchange.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, exchange.NewAPIError(exchange.ErrTransport, "Failed to fetch exchange rates: %v", err)
	}
	return &exchange.Quote{
		Timestamp: f.now().UTC().Truncate(time.Second),
		Rates:     maps.Clone(f.rates),
		Source:    Name,
	}, nil
}

var _ exchange.Fetcher = (*Fetcher)(nil)
