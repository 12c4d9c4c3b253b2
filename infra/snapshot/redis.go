package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/unitconv/pkg/exchange"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces the snapshot keys.
const DefaultKeyPrefix = "unitconv:"

// RedisStore keeps the snapshot in one hash: field = currency code, value =
// JSON {rate, last_update}.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

type redisEntry struct {
	Rate       float64   `json:"rate"`
	LastUpdate time.Time `json:"last_update"`
}

// NewRedisStore parses a redis:// URL and connects lazily.
func NewRedisStore(redisURL, prefix string, log *slog.Logger) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisStoreWithClient(redis.NewClient(opt), prefix, log), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string, log *slog.Logger) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisStore{client: client, prefix: prefix, logger: log.With(slog.String("store", "redis"))}
}

func (r *RedisStore) key() string {
	return r.prefix + "rates"
}

// Save replaces the hash atomically.
func (r *RedisStore) Save(ctx context.Context, snap exchange.Snapshot) error {
	fields := make(map[string]any, len(snap.Rates))
	for cur, rate := range snap.Rates {
		data, err := json.Marshal(redisEntry{Rate: rate, LastUpdate: snap.LastRefreshed.UTC()})
		if err != nil {
			return fmt.Errorf("marshal rate %s: %w", cur, err)
		}
		fields[cur.Code()] = string(data)
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key())
		if len(fields) > 0 {
			pipe.HSet(ctx, r.key(), fields)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Redis snapshot save error", "key", r.key(), "error", err)
		return fmt.Errorf("save rate snapshot: %w", err)
	}
	r.logger.Debug("Redis snapshot saved", "key", r.key(), "count", len(fields))
	return nil
}

// Load reads the hash. A missing key yields a nil snapshot.
func (r *RedisStore) Load(ctx context.Context) (*exchange.Snapshot, error) {
	vals, err := r.client.HGetAll(ctx, r.key()).Result()
	if err != nil {
		r.logger.Error("Redis snapshot load error", "key", r.key(), "error", err)
		return nil, fmt.Errorf("load rate snapshot: %w", err)
	}

	rows := make([]rateRow, 0, len(vals))
	for code, raw := range vals {
		var entry redisEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("decode rate %s: %w", code, err)
		}
		rows = append(rows, rateRow{Currency: code, Rate: entry.Rate, LastUpdate: entry.LastUpdate})
	}
	return fromRows(rows, r.logger), nil
}

// Close closes the client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

var _ exchange.SnapshotStore = (*RedisStore)(nil)
