// Package webapi provides the HTTP front end of the converter.
// It is organized into sub-packages:
// - conversion: unit listing and value conversion
// - rates: exchange-rate inspection and refresh
package webapi

import (
	"errors"
	"strings"

	"github.com/amirasaad/unitconv/pkg/app"
	"github.com/amirasaad/unitconv/webapi/common"
	"github.com/amirasaad/unitconv/webapi/conversion"
	"github.com/amirasaad/unitconv/webapi/rates"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// SetupApp builds the fiber application over a.
func SetupApp(a *app.App) *fiber.App {
	fiberApp := fiber.New(fiber.Config{
		AppName:               "unitconv",
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return common.ProblemDetailsJSON(c, "Internal Server Error", err)
		},
	})

	fiberApp.Use(limiter.New(limiter.Config{
		Max:          a.Config.RateLimit.MaxRequests,
		Expiration:   a.Config.RateLimit.Window,
		KeyGenerator: clientKey,
		LimitReached: func(c *fiber.Ctx) error {
			return common.ProblemDetailsJSON(
				c,
				"Too Many Requests",
				errors.New("rate limit exceeded"),
				fiber.StatusTooManyRequests,
			)
		},
	}))
	fiberApp.Use(recover.New())
	if a.Config.IsDevelopment() {
		fiberApp.Use(logger.New())
	}

	fiberApp.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("unitconv API is running")
	})

	conversion.Routes(fiberApp, a.Rates)
	rates.Routes(fiberApp, a.Rates)
	return fiberApp
}

// clientKey uses X-Forwarded-For when behind a proxy, then X-Real-IP, then
// the peer address.
func clientKey(c *fiber.Ctx) string {
	if forwardedFor := c.Get("X-Forwarded-For"); forwardedFor != "" {
		if first, _, found := strings.Cut(forwardedFor, ","); found {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(forwardedFor)
	}
	if realIP := c.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return c.IP()
}
