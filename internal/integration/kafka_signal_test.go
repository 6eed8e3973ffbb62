//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/feast-correlation/internal/adapter/kafka"
	"github.com/couchcryptid/feast-correlation/internal/cache"
	"github.com/couchcryptid/feast-correlation/internal/config"
	"github.com/couchcryptid/feast-correlation/internal/domain"
	"github.com/couchcryptid/feast-correlation/internal/observability"

	"github.com/jonboulle/clockwork"
)

const signalTopic = "test-ingestion-signals"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka launches a single-node Kafka broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("test-cluster"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err, "resolve brokers")
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err, "dial broker")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "find controller")

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err, "dial controller")
	defer controllerConn.Close()

	require.NoError(t, controllerConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// TestIngestionSignalInvalidatesCache wires the signal consumer against real
// Kafka and verifies that a notice drops exactly the cache entries whose
// queries touched the announced event type, while malformed messages are
// skipped without wedging the partition.
func TestIngestionSignalInvalidatesCache(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, signalTopic)

	results := cache.New(10*time.Minute, clockwork.NewRealClock(), observability.NewMetricsForTesting())

	// Pre-populate one entry per event type family the notice should and
	// should not affect.
	_, _, err := results.GetOrCompute(ctx, "quake-query", []domain.EventType{domain.EventEarthquake},
		func(context.Context) (any, error) { return "quake-result", nil })
	require.NoError(t, err)
	_, _, err = results.GetOrCompute(ctx, "solar-query", []domain.EventType{domain.EventSolar},
		func(context.Context) (any, error) { return "solar-result", nil })
	require.NoError(t, err)
	require.Equal(t, 2, results.Len())

	cfg := &config.Config{
		Kafka: config.KafkaConfig{
			Enabled: true,
			Brokers: []string{broker},
			Topic:   signalTopic,
			GroupID: fmt.Sprintf("test-signals-%d", time.Now().UnixNano()),
		},
	}

	consumer := kafka.NewSignalConsumer(cfg, results, discardLogger())
	t.Cleanup(func() { _ = consumer.Close() })

	consumerCtx, consumerCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- consumer.Run(consumerCtx) }()

	producer := &kafkago.Writer{
		Addr:  kafkago.TCP(broker),
		Topic: signalTopic,
	}
	t.Cleanup(func() { _ = producer.Close() })

	notice, err := json.Marshal(domain.IngestionNotice{
		EventType: domain.EventEarthquake,
		From:      time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		To:        time.Date(2025, time.March, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	// A poison pill and an unknown type precede the real notice; both must be
	// committed and skipped.
	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{")},
		kafkago.Message{Key: []byte("unknown"), Value: []byte(`{"event_type":"meteor"}`)},
		kafkago.Message{Key: []byte("good"), Value: notice},
	))

	require.Eventually(t, func() bool {
		_, ok := results.Lookup("quake-query")
		return !ok
	}, 60*time.Second, 250*time.Millisecond, "earthquake entry should be invalidated")

	// The untouched entry survives.
	payload, ok := results.Lookup("solar-query")
	assert.True(t, ok)
	assert.Equal(t, "solar-result", payload)

	consumerCancel()
	require.NoError(t, <-errCh)
}
