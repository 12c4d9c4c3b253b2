package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "openexchangerates", cfg.Exchange.Provider)
	assert.Equal(t, "https://openexchangerates.org/api/latest.json", cfg.Exchange.APIURL)
	assert.Equal(t, "OPENEXCHANGERATES_APP_ID", cfg.Exchange.CredentialEnv)
	assert.Equal(t, time.Duration(0), cfg.Exchange.HTTPTimeout)
	assert.Equal(t, 7*24*time.Hour, cfg.Cache.Expiration)
	assert.False(t, cfg.Cache.StrictTimestamp)
	assert.Equal(t, time.Hour, cfg.Cache.RefreshInterval)
	assert.Equal(t, "sqlite", cfg.Snapshot.Driver)
	assert.Equal(t, "rates.db", cfg.Snapshot.Path)
	assert.Equal(t, "memory", cfg.EventBus.Driver)
	assert.Equal(t, "unitconv.rates.refreshed", cfg.Kafka.Topic)
	assert.Equal(t, "unitconv:", cfg.Redis.KeyPrefix)
	assert.Equal(t, 100, cfg.RateLimit.MaxRequests)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("EXCHANGE_RATE_PROVIDER", "static")
	t.Setenv("EXCHANGE_RATE_CACHE_EXPIRATION", "30m")
	t.Setenv("EXCHANGE_RATE_CACHE_STRICT_TIMESTAMP", "true")
	t.Setenv("SNAPSHOT_DRIVER", "postgres")
	t.Setenv("SNAPSHOT_DSN", "postgres://u:secret@db:5432/rates")
	t.Setenv("EVENT_BUS_DRIVER", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SERVER_PORT", "8080")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "static", cfg.Exchange.Provider)
	assert.Equal(t, 30*time.Minute, cfg.Cache.Expiration)
	assert.True(t, cfg.Cache.StrictTimestamp)
	assert.Equal(t, "postgres", cfg.Snapshot.Driver)
	assert.Equal(t, "postgres://u:secret@db:5432/rates", cfg.Snapshot.DSN)
	assert.Equal(t, "kafka", cfg.EventBus.Driver)
	assert.Equal(t, "k1:9092,k2:9092", cfg.Kafka.Brokers)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("SNAPSHOT_DRIVER=memory\nEXCHANGE_RATE_CACHE_REFRESH_INTERVAL=5m\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("SNAPSHOT_DRIVER")
		_ = os.Unsetenv("EXCHANGE_RATE_CACHE_REFRESH_INTERVAL")
	})

	cfg, err := Load("does-not-exist.env", path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Snapshot.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Cache.RefreshInterval)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"SNAPSHOT_DRIVER":                "mongo",
		"EXCHANGE_RATE_PROVIDER":         "yahoo",
		"EVENT_BUS_DRIVER":               "nats",
		"EXCHANGE_RATE_CACHE_EXPIRATION": "0s",
		"SERVER_PORT":                    "70000",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid configuration")
		})
	}
}

func TestLoad_Unparsable(t *testing.T) {
	t.Setenv("EXCHANGE_RATE_CACHE_EXPIRATION", "a week")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading configuration")
}

func TestFindEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	found, err := FindEnvFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, found)

	_, err = FindEnvFile(filepath.Join(dir, "missing.env"))
	assert.Error(t, err)

	_, err = FindEnvFile("surely-not-a-file-anywhere.env")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMaskValue(t *testing.T) {
	assert.Equal(t, "", maskValue(""))
	assert.Equal(t, "****", maskValue("abc"))
	assert.Equal(t, "re****6379", maskValue("redis://localhost:6379"))
}

func TestApp_IsDevelopment(t *testing.T) {
	assert.True(t, (&App{Env: "development"}).IsDevelopment())
	assert.False(t, (&App{Env: "production"}).IsDevelopment())
}
