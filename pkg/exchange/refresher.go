package exchange

import (
	"context"
	"time"
)

// refreshThreshold is the fraction of the expiration window after which the
// background refresher replaces the table ahead of lookups.
const refreshThreshold = 0.8

// DueForRefresh reports whether the table is empty or has used up most of its
// freshness window.
func (c *RateCache) DueForRefresh() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastRefreshed.IsZero() {
		return true
	}
	age := c.now().Sub(c.lastRefreshed)
	return age >= time.Duration(float64(c.expiration)*refreshThreshold)
}

// StartAutoRefresh checks the table every interval and refreshes it when it is
// due, until ctx is cancelled. The returned channel is closed once the loop
// has exited.
func (c *RateCache) StartAutoRefresh(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	if interval <= 0 {
		interval = time.Hour
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		c.logger.Info("Starting background rate refresh", "interval", interval.String())
		c.tick(ctx)
		for {
			select {
			case <-ctx.Done():
				c.logger.Info("Background rate refresh stopped")
				return
			case <-ticker.C:
				c.tick(ctx)
			}
		}
	}()
	return done
}

func (c *RateCache) tick(ctx context.Context) {
	if !c.DueForRefresh() {
		return
	}
	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn("Background rate refresh failed", "error", err)
	}
}
