package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"sync"
	"time"

	"github.com/amirasaad/unitconv/pkg/eventbus"
	"github.com/amirasaad/unitconv/pkg/units"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// DefaultExpiration is how long a refreshed table stays fresh.
const DefaultExpiration = 7 * 24 * time.Hour

const refreshKey = "latest"

// Options configures a RateCache. Zero values select the defaults.
type Options struct {
	// Expiration is the freshness window. Defaults to DefaultExpiration.
	Expiration time.Duration
	// StrictTimestamp fails a refresh whose response timestamp is unusable
	// instead of stamping it with the local clock.
	StrictTimestamp bool
	// Store receives a snapshot after every committed refresh. Optional.
	Store SnapshotStore
	// Bus receives a RatesRefreshed event after every committed refresh. Optional.
	Bus    eventbus.Bus
	Logger *slog.Logger
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// RateCache is the process-wide table of exchange rates.
//
// The table and its single freshness timestamp are replaced together by a
// refresh and never updated per currency. mu guards only reads and the swap;
// concurrent refreshes are coalesced so that one network call serves every
// waiting caller.
type RateCache struct {
	fetcher    Fetcher
	store      SnapshotStore
	bus        eventbus.Bus
	logger     *slog.Logger
	expiration time.Duration
	strict     bool
	now        func() time.Time

	mu            sync.RWMutex
	rates         map[units.Currency]float64
	lastRefreshed time.Time
	generation    uint64

	group singleflight.Group
}

// NewRateCache creates an empty, stale cache backed by fetcher.
func NewRateCache(fetcher Fetcher, opts Options) *RateCache {
	if opts.Expiration <= 0 {
		opts.Expiration = DefaultExpiration
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &RateCache{
		fetcher:    fetcher,
		store:      opts.Store,
		bus:        opts.Bus,
		logger:     opts.Logger.With(slog.String("component", "rate_cache")),
		expiration: opts.Expiration,
		strict:     opts.StrictTimestamp,
		now:        opts.Now,
		rates:      map[units.Currency]float64{},
	}
}

// Restore loads the durable snapshot into memory. It reports whether a
// snapshot was loaded; when none exists or it cannot be read the cache stays
// empty and stale, so the first lookup refreshes.
func (c *RateCache) Restore(ctx context.Context) bool {
	return c.load(ctx, false)
}

// Sync adopts the durable snapshot when it is newer than the table in
// memory. It is used when another process announces a refresh.
func (c *RateCache) Sync(ctx context.Context) bool {
	return c.load(ctx, true)
}

func (c *RateCache) load(ctx context.Context, onlyNewer bool) bool {
	if c.store == nil {
		return false
	}
	snap, err := c.store.Load(ctx)
	if err != nil {
		c.logger.Warn("Failed to load rate snapshot", "error", err)
		return false
	}
	if snap == nil || snap.LastRefreshed.IsZero() || len(snap.Rates) == 0 {
		c.logger.Info("No rate snapshot found")
		return false
	}

	c.mu.Lock()
	if onlyNewer && !snap.LastRefreshed.After(c.lastRefreshed) {
		c.mu.Unlock()
		c.logger.Debug("Rate snapshot is not newer than memory, keeping table",
			"snapshot", snap.LastRefreshed.Format(time.RFC3339))
		return false
	}
	c.rates = maps.Clone(snap.Rates)
	c.lastRefreshed = snap.LastRefreshed
	c.generation++
	c.mu.Unlock()

	c.logger.Info("Rate snapshot restored",
		"count", len(snap.Rates),
		"last_refreshed", snap.LastRefreshed.Format(time.RFC3339),
		"stale", c.IsStale(),
	)
	return true
}

// BaseRate returns how many units of cur buy one unit of the base currency.
//
// A stale table is refreshed first. A fresh table that lacks cur is also
// refreshed, since the source may have omitted the code last time. Refresh
// failures are returned as *APIError and leave the previous table in place.
func (c *RateCache) BaseRate(ctx context.Context, cur units.Currency) (float64, error) {
	if cur == units.BaseCurrency {
		return 1, nil
	}

	rate, ok, gen := c.lookup(cur)
	if ok {
		return rate, nil
	}

	if err := c.refresh(ctx, gen); err != nil {
		return 0, err
	}

	c.mu.RLock()
	rate, ok = c.rates[cur]
	c.mu.RUnlock()
	if !ok {
		return 0, NewAPIError(ErrRateNotFound, "No rate found for currency %s", cur)
	}
	return rate, nil
}

// Refresh replaces the table from the pricing source regardless of freshness.
func (c *RateCache) Refresh(ctx context.Context) error {
	c.mu.RLock()
	gen := c.generation
	c.mu.RUnlock()
	return c.refresh(ctx, gen)
}

// IsStale reports whether the next lookup will refresh.
func (c *RateCache) IsStale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.staleLocked()
}

// LastRefreshed returns the timestamp of the current table, zero if empty.
func (c *RateCache) LastRefreshed() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRefreshed
}

// Expiration returns the freshness window.
func (c *RateCache) Expiration() time.Duration {
	return c.expiration
}

// Snapshot returns a copy of the current table.
func (c *RateCache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{Rates: maps.Clone(c.rates), LastRefreshed: c.lastRefreshed}
}

func (c *RateCache) lookup(cur units.Currency) (float64, bool, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.staleLocked() {
		return 0, false, c.generation
	}
	rate, ok := c.rates[cur]
	return rate, ok, c.generation
}

func (c *RateCache) staleLocked() bool {
	if c.lastRefreshed.IsZero() {
		return true
	}
	return c.now().Sub(c.lastRefreshed) >= c.expiration
}

// refresh runs at most one fetch at a time. seen is the table generation the
// caller based its decision on; if another refresh has committed since, the
// caller reuses that table instead of fetching again.
func (c *RateCache) refresh(ctx context.Context, seen uint64) error {
	ch := c.group.DoChan(refreshKey, func() (any, error) {
		c.mu.RLock()
		current := c.generation
		c.mu.RUnlock()
		if current != seen {
			return nil, nil
		}
		return nil, c.fetchAndSwap(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("waiting for rate refresh: %w", ctx.Err())
	}
}

func (c *RateCache) fetchAndSwap(ctx context.Context) error {
	id := uuid.New()
	logger := c.logger.With("refresh_id", id.String(), "source", c.fetcher.Name())
	logger.Info("Refreshing exchange rates")

	quote, err := c.fetcher.FetchLatest(ctx)
	if err != nil {
		logger.Warn("Exchange rate refresh failed", "error", err)
		if IsAPIError(err) {
			return err
		}
		return &APIError{Message: fmt.Sprintf("Failed to fetch exchange rates: %v", err), Err: ErrTransport}
	}

	rates := c.recognized(quote, logger)

	stamp := quote.Timestamp
	localClock := false
	if stamp.IsZero() {
		if c.strict {
			logger.Warn("Rejecting refresh with unusable timestamp")
			return NewAPIError(ErrInvalidTimestamp, "Pricing source returned no usable timestamp")
		}
		logger.Warn("Pricing source returned no usable timestamp, using local clock")
		stamp = c.now()
		localClock = true
	}

	c.mu.Lock()
	c.rates = rates
	c.lastRefreshed = stamp
	c.generation++
	c.mu.Unlock()

	logger.Info("Exchange rates refreshed",
		"count", len(rates),
		"timestamp", stamp.Format(time.RFC3339),
	)

	c.persist(ctx, Snapshot{Rates: maps.Clone(rates), LastRefreshed: stamp}, logger)
	c.publish(ctx, RatesRefreshed{
		ID:         id,
		Source:     quote.Source,
		Timestamp:  stamp,
		Count:      len(rates),
		LocalClock: localClock,
	}, logger)
	return nil
}

// recognized keeps the entries whose code is a supported currency and whose
// rate can price a conversion.
func (c *RateCache) recognized(quote *Quote, logger *slog.Logger) map[units.Currency]float64 {
	rates := make(map[units.Currency]float64, len(units.Currencies()))
	for code, rate := range quote.Rates {
		cur, ok := units.ParseCurrency(code)
		if !ok {
			continue
		}
		if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
			logger.Warn("Skipping unusable rate", "currency", code, "rate", rate)
			continue
		}
		rates[cur] = rate
	}
	return rates
}

func (c *RateCache) persist(ctx context.Context, snap Snapshot, logger *slog.Logger) {
	if c.store == nil {
		return
	}
	if err := c.store.Save(ctx, snap); err != nil {
		logger.Warn("Failed to persist rate snapshot", "error", err)
		return
	}
	logger.Debug("Rate snapshot persisted", "count", len(snap.Rates))
}

func (c *RateCache) publish(ctx context.Context, evt RatesRefreshed, logger *slog.Logger) {
	if c.bus == nil {
		return
	}
	if err := c.bus.Emit(ctx, evt); err != nil {
		logger.Warn("Failed to publish refresh event", "error", err)
	}
}

var _ units.RateSource = (*RateCache)(nil)
