package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/amirasaad/unitconv/pkg/eventbus"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisEventBus publishes events to a Redis stream. Each process reads the
// stream through its own consumer group, so every process sees every event.
type RedisEventBus struct {
	client    *redis.Client
	stream    string
	group     string
	factories eventbus.Factories
	logger    *slog.Logger

	handlers    map[string][]eventbus.HandlerFunc
	handlersMtx sync.RWMutex
	startOnce   sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWithRedis connects to url and uses stream for all events.
func NewWithRedis(url, stream string, factories eventbus.Factories, logger *slog.Logger) (*RedisEventBus, error) {
	if url == "" || stream == "" {
		return nil, fmt.Errorf("redis event bus: url and stream are required")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis event bus: invalid URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis event bus: connection failed: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &RedisEventBus{
		client:    client,
		stream:    stream,
		group:     "unitconv-" + uuid.NewString(),
		factories: factories,
		logger:    logger.With("bus", "redis"),
		handlers:  make(map[string][]eventbus.HandlerFunc),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Emit appends the event to the stream.
func (b *RedisEventBus) Emit(ctx context.Context, event eventbus.Event) error {
	envBytes, err := encode(event)
	if err != nil {
		return fmt.Errorf("redis event bus: %w", err)
	}
	err = b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream,
		MaxLen: 1000,
		Approx: true,
		Values: map[string]any{"event": string(envBytes)},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis event bus: emit failed: %w", err)
	}
	b.logger.Debug("event emitted", "type", event.Type())
	return nil
}

// Register adds a handler and starts the consumer on first use.
func (b *RedisEventBus) Register(eventType string, handler eventbus.HandlerFunc) {
	b.handlersMtx.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.handlersMtx.Unlock()

	b.startOnce.Do(func() {
		if err := b.client.XGroupCreateMkStream(b.ctx, b.stream, b.group, "$").Err(); err != nil {
			b.logger.Error("failed to create consumer group", "error", err, "group", b.group)
			return
		}
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.consumeLoop(b.ctx)
		}()
	})
}

// Close stops the consumer, drops its group and closes the client.
func (b *RedisEventBus) Close() error {
	b.cancel()
	b.wg.Wait()
	_ = b.client.XGroupDestroy(context.Background(), b.stream, b.group).Err()
	return b.client.Close()
}

func (b *RedisEventBus) consumeLoop(ctx context.Context) {
	for {
		res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    b.group,
			Consumer: b.group,
			Streams:  []string{b.stream, ">"},
			Count:    10,
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !errors.Is(err, redis.Nil) {
				b.logger.Error("error reading from stream", "error", err)
				time.Sleep(time.Second)
			}
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				if raw, ok := msg.Values["event"].(string); ok {
					b.dispatch(ctx, []byte(raw))
				}
				if err := b.client.XAck(ctx, b.stream, b.group, msg.ID).Err(); err != nil && ctx.Err() == nil {
					b.logger.Error("failed to acknowledge message", "error", err, "msg_id", msg.ID)
				}
			}
		}
	}
}

func (b *RedisEventBus) dispatch(ctx context.Context, raw []byte) {
	evt, err := decode(raw, b.factories)
	if err != nil {
		b.logger.Error("dropping undecodable message", "error", err)
		return
	}
	b.handlersMtx.RLock()
	handlers := append([]eventbus.HandlerFunc(nil), b.handlers[evt.Type()]...)
	b.handlersMtx.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("handler panic recovered", "panic", r, "event_type", evt.Type())
				}
			}()
			if err := h(ctx, evt); err != nil {
				b.logger.Error("handler error", "error", err, "event_type", evt.Type())
			}
		}()
	}
}

var _ eventbus.Bus = (*RedisEventBus)(nil)
