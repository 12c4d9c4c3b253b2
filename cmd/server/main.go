package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirasaad/unitconv/infra/initializer"
	"github.com/amirasaad/unitconv/pkg/app"
	"github.com/amirasaad/unitconv/pkg/config"
	"github.com/amirasaad/unitconv/webapi"
	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return fmt.Errorf("failed to load application configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, fiberApp, err := setup(ctx, cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.Deps.Logger.Warn("Failed to release dependencies", "error", err)
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	a.Deps.Logger.Info("Starting server",
		"env", cfg.Env,
		"address", addr,
		"auto_refresh", cfg.Cache.AutoRefresh,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- fiberApp.Listen(addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.Deps.Logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := fiberApp.ShutdownWithContext(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// setup builds the application and its HTTP front end. Background refresh
// runs until ctx ends when the configuration enables it.
func setup(ctx context.Context, cfg *config.App, logOutput io.Writer) (*app.App, *fiber.App, error) {
	deps, err := initializer.InitializeDependencies(cfg, logOutput)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	a := app.New(deps, cfg)
	a.Start(ctx)
	if cfg.Cache.AutoRefresh {
		a.Rates.StartAutoRefresh(ctx, cfg.Cache.RefreshInterval)
	}
	return a, webapi.SetupApp(a), nil
}
