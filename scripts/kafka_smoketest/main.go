// Command kafka_smoketest publishes a rates-refreshed event through the Kafka
// event bus and waits for a second bus instance to receive it.
//
//	BROKERS=localhost:9092 go run ./scripts/kafka_smoketest
package main

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	infra_eventbus "github.com/amirasaad/unitconv/infra/eventbus"
	"github.com/amirasaad/unitconv/pkg/eventbus"
	"github.com/amirasaad/unitconv/pkg/exchange"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// RunSmokeTest checks the Kafka round trip for refresh events.
func RunSmokeTest(ctx context.Context, logger *slog.Logger) error {
	brokers := strings.TrimSpace(os.Getenv("BROKERS"))
	if brokers == "" {
		brokers = "localhost:9092"
	}
	topic := strings.TrimSpace(os.Getenv("TOPIC"))
	if topic == "" {
		topic = infra_eventbus.DefaultKafkaTopic
	}

	if err := ensureTopic(ctx, strings.Split(brokers, ",")[0], topic); err != nil {
		logger.Error("create topic failed", "topic", topic, "error", err)
		return err
	}
	logger.Info("topic ready", "topic", topic)

	config := infra_eventbus.KafkaEventBusConfig{Topic: topic, Factories: exchange.EventFactories()}
	publisher, err := infra_eventbus.NewWithKafka(brokers, logger, config)
	if err != nil {
		return err
	}
	defer func() { _ = publisher.Close() }()
	subscriber, err := infra_eventbus.NewWithKafka(brokers, logger, config)
	if err != nil {
		return err
	}
	defer func() { _ = subscriber.Close() }()

	want := uuid.New()
	received := make(chan exchange.RatesRefreshed, 1)
	subscriber.Register(exchange.EventRatesRefreshed, func(_ context.Context, e eventbus.Event) error {
		if evt, ok := e.(*exchange.RatesRefreshed); ok && evt.ID == want {
			select {
			case received <- *evt:
			default:
			}
		}
		return nil
	})

	// the subscriber starts at the newest offset once its group is joined,
	// so keep publishing until one copy arrives
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		err := publisher.Emit(ctx, exchange.RatesRefreshed{
			ID:        want,
			Source:    "smoketest",
			Timestamp: time.Now().UTC(),
			Count:     1,
		})
		if err != nil {
			logger.Error("emit failed", "error", err)
			return err
		}
		select {
		case evt := <-received:
			logger.Info("kafka smoke test passed", "id", evt.ID.String(), "timestamp", evt.Timestamp)
			return nil
		case <-ctx.Done():
			logger.Error("no event received", "error", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func ensureTopic(ctx context.Context, broker, topic string) error {
	dialer := &kafka.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", broker)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	err = conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return err
	}
	return nil
}

// main runs the smoke test and exits non-zero on failure.
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if err := RunSmokeTest(ctx, logger); err != nil {
		os.Exit(1)
	}
}
