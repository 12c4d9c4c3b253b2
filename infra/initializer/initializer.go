package initializer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	infra_eventbus "github.com/amirasaad/unitconv/infra/eventbus"
	"github.com/amirasaad/unitconv/infra/provider/openexchangerates"
	"github.com/amirasaad/unitconv/infra/provider/staticrates"
	"github.com/amirasaad/unitconv/infra/snapshot"
	"github.com/amirasaad/unitconv/pkg/app"
	"github.com/amirasaad/unitconv/pkg/config"
	"github.com/amirasaad/unitconv/pkg/eventbus"
	"github.com/amirasaad/unitconv/pkg/exchange"
)

const storeSetupTimeout = 10 * time.Second

// InitializeDependencies builds every dependency named by cfg. Logs go to
// logOutput (stdout when nil).
//
// A snapshot store that cannot be opened is logged and left out: the cache
// then starts empty and refreshes on first use. An event bus that cannot be
// reached is an error.
func InitializeDependencies(cfg *config.App, logOutput io.Writer) (deps *app.Deps, err error) {
	logger := SetupLogger(cfg.Log, logOutput)
	deps = &app.Deps{Logger: logger}

	deps.Fetcher, err = newFetcher(cfg.Exchange, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeSetupTimeout)
	defer cancel()
	store, closer, err := newSnapshotStore(ctx, cfg, logger)
	if err != nil {
		logger.Warn("Snapshot store unavailable, continuing without persistence",
			"driver", cfg.Snapshot.Driver, "error", err)
	} else {
		deps.Store = store
		if closer != nil {
			deps.Closers = append(deps.Closers, closer)
		}
	}

	bus, err := newEventBus(cfg, logger)
	if err != nil {
		closeAll(deps.Closers, logger)
		return nil, fmt.Errorf("failed to create %s event bus: %w", cfg.EventBus.Driver, err)
	}
	deps.EventBus = bus
	deps.Closers = append(deps.Closers, bus)

	logger.Debug("Dependencies initialized",
		"provider", deps.Fetcher.Name(),
		"snapshot_driver", cfg.Snapshot.Driver,
		"event_bus_driver", cfg.EventBus.Driver,
	)
	return deps, nil
}

func newFetcher(cfg config.Exchange, logger *slog.Logger) (exchange.Fetcher, error) {
	switch cfg.Provider {
	case openexchangerates.Name, "":
		return openexchangerates.New(openexchangerates.Config{
			URL:           cfg.APIURL,
			CredentialEnv: cfg.CredentialEnv,
			HTTPTimeout:   cfg.HTTPTimeout,
		}, logger), nil
	case staticrates.Name:
		logger.Info("Using static exchange rates")
		return staticrates.New(nil), nil
	}
	return nil, fmt.Errorf("unknown exchange rate provider %q", cfg.Provider)
}

func newSnapshotStore(ctx context.Context, cfg *config.App, logger *slog.Logger) (exchange.SnapshotStore, io.Closer, error) {
	switch cfg.Snapshot.Driver {
	case "none", "":
		return nil, nil, nil
	case "memory":
		return snapshot.NewMemoryStore(), nil, nil
	case "sqlite":
		db, err := snapshot.OpenSQLite(cfg.Snapshot.Path, cfg.Env)
		if err != nil {
			return nil, nil, err
		}
		return migrated(ctx, snapshot.NewSQLStore(db, logger))
	case "postgres":
		db, err := snapshot.OpenPostgres(cfg.Snapshot.DSN, cfg.Env)
		if err != nil {
			return nil, nil, err
		}
		return migrated(ctx, snapshot.NewSQLStore(db, logger))
	case "redis":
		store, err := snapshot.NewRedisStore(cfg.Redis.URL, cfg.Redis.KeyPrefix, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	}
	return nil, nil, fmt.Errorf("unknown snapshot driver %q", cfg.Snapshot.Driver)
}

func migrated(ctx context.Context, store *snapshot.SQLStore) (exchange.SnapshotStore, io.Closer, error) {
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("migrate snapshot table: %w", err)
	}
	return store, store, nil
}

type closableBus interface {
	eventbus.Bus
	io.Closer
}

func newEventBus(cfg *config.App, logger *slog.Logger) (closableBus, error) {
	var (
		bus closableBus
		err error
	)
	switch cfg.EventBus.Driver {
	case "memory", "":
		bus = infra_eventbus.NewWithMemory(logger)
	case "kafka":
		bus, err = infra_eventbus.NewWithKafka(cfg.Kafka.Brokers, logger, infra_eventbus.KafkaEventBusConfig{
			Topic:     cfg.Kafka.Topic,
			GroupID:   cfg.Kafka.GroupID,
			Factories: exchange.EventFactories(),
		})
	case "redis":
		bus, err = infra_eventbus.NewWithRedis(cfg.Redis.URL, cfg.EventBus.RedisStream, exchange.EventFactories(), logger)
	default:
		err = fmt.Errorf("unknown event bus driver %q", cfg.EventBus.Driver)
	}
	if err != nil {
		return nil, err
	}
	return bus, nil
}

func closeAll(closers []io.Closer, logger *slog.Logger) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			logger.Warn("Failed to close dependency", "error", err)
		}
	}
}
