// Package rates exposes the exchange-rate cache over HTTP.
package rates

import (
	"context"
	"time"

	"github.com/amirasaad/unitconv/pkg/exchange"
	"github.com/amirasaad/unitconv/pkg/units"
	"github.com/amirasaad/unitconv/webapi/common"
	"github.com/gofiber/fiber/v2"
)

// Cache is the part of exchange.RateCache these handlers need.
type Cache interface {
	Snapshot() exchange.Snapshot
	IsStale() bool
	Expiration() time.Duration
	Refresh(ctx context.Context) error
}

// RatesResponse is the current table. LastRefreshed is nil before the first
// refresh.
type RatesResponse struct {
	Base          string             `json:"base"`
	Rates         map[string]float64 `json:"rates"`
	LastRefreshed *time.Time         `json:"last_refreshed"`
	Stale         bool               `json:"stale"`
	Expiration    string             `json:"expiration"`
}

// Routes registers the rate endpoints.
func Routes(app *fiber.App, cache Cache) {
	group := app.Group("/api/rates")
	group.Get("/", GetRates(cache))
	group.Post("/refresh", RefreshRates(cache))
}

// GetRates returns the table in memory without refreshing it.
func GetRates(cache Cache) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Rates fetched successfully", toResponse(cache))
	}
}

// RefreshRates forces a refresh. On failure the previous table is kept and
// the pricing-source error is reported.
func RefreshRates(cache Cache) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := cache.Refresh(c.UserContext()); err != nil {
			return common.ProblemDetailsJSON(c, "Failed to refresh exchange rates", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Rates refreshed successfully", toResponse(cache))
	}
}

func toResponse(cache Cache) RatesResponse {
	snap := cache.Snapshot()
	out := RatesResponse{
		Base:       units.BaseCurrency.Code(),
		Rates:      make(map[string]float64, len(snap.Rates)+1),
		Stale:      cache.IsStale(),
		Expiration: cache.Expiration().String(),
	}
	out.Rates[units.BaseCurrency.Code()] = 1
	for cur, rate := range snap.Rates {
		out.Rates[cur.Code()] = rate
	}
	if !snap.LastRefreshed.IsZero() {
		ts := snap.LastRefreshed.UTC()
		out.LastRefreshed = &ts
	}
	return out
}
