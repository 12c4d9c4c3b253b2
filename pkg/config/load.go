package config

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var validate = validator.New()

// Load reads an optional .env file and then the process environment. The
// first of envFilePath found (searching upward from the working directory)
// is loaded; with none given, .env in the working directory is tried.
// Variables already set in the environment win over the file.
func Load(envFilePath ...string) (*App, error) {
	logger := slog.Default()

	if len(envFilePath) == 0 {
		if err := godotenv.Load(); err != nil {
			logger.Debug("No .env file found in current directory")
		}
		return loadFromEnv(logger)
	}

	for _, path := range envFilePath {
		foundPath, err := FindEnvFile(path)
		if err != nil {
			logger.Debug("Environment file not found", "path", path, "error", err)
			continue
		}
		if err := godotenv.Load(foundPath); err != nil {
			logger.Warn("Failed to load environment file", "path", foundPath, "error", err)
			continue
		}
		logger.Debug("Environment loaded from file", "path", foundPath)
		return loadFromEnv(logger)
	}

	logger.Debug("No environment file found, using process environment")
	return loadFromEnv(logger)
}

func loadFromEnv(logger *slog.Logger) (*App, error) {
	var cfg App
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", describe(err))
	}

	logger.Debug("App config loaded",
		"env", cfg.Env,
		"exchange_provider", cfg.Exchange.Provider,
		"exchange_api_url", cfg.Exchange.APIURL,
		"exchange_credential_env", cfg.Exchange.CredentialEnv,
		"cache_expiration", cfg.Cache.Expiration,
		"snapshot_driver", cfg.Snapshot.Driver,
		"snapshot_dsn", maskValue(cfg.Snapshot.DSN),
		"redis_url", maskValue(cfg.Redis.URL),
		"event_bus_driver", cfg.EventBus.Driver,
	)
	return &cfg, nil
}

// describe flattens validator errors into one line naming each bad field.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, fmt.Errorf("%s failed %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return errors.Join(errs...)
}

func maskValue(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 6 {
		return "****"
	}
	return key[:2] + "****" + key[len(key)-4:]
}
