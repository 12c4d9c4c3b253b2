package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/amirasaad/unitconv/pkg/eventbus"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// DefaultKafkaTopic carries every event; the envelope type routes it.
const DefaultKafkaTopic = "unitconv.rates.refreshed"

// KafkaEventBusConfig holds configuration for the Kafka event bus.
type KafkaEventBusConfig struct {
	Topic string
	// GroupID defaults to a unique id so every process sees every event.
	GroupID   string
	Factories eventbus.Factories
}

// KafkaEventBus publishes events to one Kafka topic and, once a handler is
// registered, consumes that topic in the background.
type KafkaEventBus struct {
	brokers []string
	writer  *kafka.Writer
	dialer  *kafka.Dialer
	config  KafkaEventBusConfig
	logger  *slog.Logger

	handlers    map[string][]eventbus.HandlerFunc
	handlersMtx sync.RWMutex

	readerOnce sync.Once
	reader     *kafka.Reader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWithKafka connects to the comma-separated broker list.
func NewWithKafka(brokers string, logger *slog.Logger, config KafkaEventBusConfig) (*KafkaEventBus, error) {
	parsedBrokers := parseBrokers(brokers)
	if len(parsedBrokers) == 0 {
		return nil, fmt.Errorf("kafka event bus: brokers are required")
	}
	if strings.TrimSpace(config.Topic) == "" {
		config.Topic = DefaultKafkaTopic
	}
	if config.GroupID == "" {
		config.GroupID = "unitconv-" + uuid.NewString()
	}
	if logger == nil {
		logger = slog.Default()
	}

	dialer := &kafka.Dialer{Timeout: 5 * time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	bus := &KafkaEventBus{
		brokers: parsedBrokers,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(parsedBrokers...),
			Topic:                  config.Topic,
			AllowAutoTopicCreation: true,
			RequiredAcks:           kafka.RequireOne,
			Balancer:               &kafka.Hash{},
		},
		dialer:   dialer,
		config:   config,
		logger:   logger.With("bus", "kafka"),
		handlers: make(map[string][]eventbus.HandlerFunc),
		ctx:      ctx,
		cancel:   cancel,
	}

	if err := bus.ping(ctx); err != nil {
		_ = bus.Close()
		return nil, err
	}
	bus.logger.Info("Kafka event bus initialized", "brokers", parsedBrokers, "topic", config.Topic)
	return bus, nil
}

// Emit publishes an event.
func (b *KafkaEventBus) Emit(ctx context.Context, event eventbus.Event) error {
	envBytes, err := encode(event)
	if err != nil {
		return fmt.Errorf("kafka event bus: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(event.Type()),
		Value: envBytes,
		Time:  time.Now(),
	}
	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka event bus: publish failed: %w", err)
	}
	return nil
}

// Register adds a handler and starts the consumer on first use.
func (b *KafkaEventBus) Register(eventType string, handler eventbus.HandlerFunc) {
	b.handlersMtx.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.handlersMtx.Unlock()

	b.readerOnce.Do(func() {
		b.reader = kafka.NewReader(kafka.ReaderConfig{
			Brokers:     b.brokers,
			GroupID:     b.config.GroupID,
			Topic:       b.config.Topic,
			StartOffset: kafka.LastOffset,
			MinBytes:    1,
			MaxBytes:    1e6,
			MaxWait:     time.Second,
			Dialer:      b.dialer,
		})
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.consumeLoop(b.ctx)
		}()
	})
}

// Close stops the consumer and flushes the writer.
func (b *KafkaEventBus) Close() error {
	b.cancel()
	if b.reader != nil {
		_ = b.reader.Close()
	}
	b.wg.Wait()
	return b.writer.Close()
}

func (b *KafkaEventBus) ping(ctx context.Context) error {
	conn, err := b.dialer.DialContext(ctx, "tcp", b.brokers[0])
	if err != nil {
		return fmt.Errorf("kafka event bus: connection failed: %w", err)
	}
	_ = conn.Close()
	return nil
}

func (b *KafkaEventBus) consumeLoop(ctx context.Context) {
	for {
		msg, err := b.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			b.logger.Error("kafka consume error", "error", err, "topic", b.config.Topic)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		b.dispatch(ctx, msg.Value)
		if err := b.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			b.logger.Error("kafka commit error", "error", err, "offset", msg.Offset)
		}
	}
}

func (b *KafkaEventBus) dispatch(ctx context.Context, raw []byte) {
	evt, err := decode(raw, b.config.Factories)
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

func parseBrokers(brokers string) []string {
	parts := strings.Split(brokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

var _ eventbus.Bus = (*KafkaEventBus)(nil)
