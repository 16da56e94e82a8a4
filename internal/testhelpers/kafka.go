//go:build integration

// Package testhelpers starts the infrastructure integration tests need.
package testhelpers

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	kafkatc "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const (
	kafkaImage        = "confluentinc/confluent-local:7.7.0"
	brokerDialBackoff = 500 * time.Millisecond
	brokerReadyWithin = 30 * time.Second
)

// StartKafka runs a single-node broker for the lifetime of t, creates topics
// and returns the broker address. The test is skipped when no container
// runtime is available.
func StartKafka(t *testing.T, ctx context.Context, topics ...string) string {
	t.Helper()

	container, err := kafkatc.Run(ctx, kafkaImage)
	if err != nil {
		t.Skipf("kafka container unavailable (requires Docker): %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	brokers, err := container.Brokers(ctx)
	if err != nil {
		t.Fatalf("obtain broker addresses: %v", err)
	}
	if len(brokers) == 0 {
		t.Fatal("kafka container returned no brokers")
	}

	broker := brokers[0]
	if err := waitForBroker(ctx, broker); err != nil {
		t.Fatalf("wait for broker: %v", err)
	}
	for _, topic := range topics {
		if err := createTopic(ctx, broker, topic); err != nil {
			t.Fatalf("create topic %s: %v", topic, err)
		}
	}
	return broker
}

func waitForBroker(ctx context.Context, broker string) error {
	ctx, cancel := context.WithTimeout(ctx, brokerReadyWithin)
	defer cancel()

	for {
		conn, err := kafkago.DialContext(ctx, "tcp", broker)
		if err == nil {
			return conn.Close()
		}

		select {
		case <-time.After(brokerDialBackoff):
		case <-ctx.Done():
			return fmt.Errorf("kafka broker %q not ready: %w", broker, ctx.Err())
		}
	}
}

// createTopic issues CreateTopics against the cluster controller; the broker
// the client happens to reach may not be it.
func createTopic(ctx context.Context, broker, topic string) error {
	conn, err := kafkago.DialContext(ctx, "tcp", broker)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("controller: %w", err)
	}

	addr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	ctrlConn, err := kafkago.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer ctrlConn.Close()

	return ctrlConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
}
