package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"cppide/internal/domain/execution"
	"cppide/internal/ports"
)

const (
	defaultGroupID  = "cppide-worker"
	defaultMaxBytes = 10 << 20
	defaultMaxWait  = time.Second
)

// Config describes how to connect to a Kafka cluster for consuming build requests.
type Config struct {
	Brokers  []string
	Topic    string
	GroupID  string
	MinBytes int
	MaxBytes int
	MaxWait  time.Duration

	// SkipInvalid drops messages that do not decode into a request instead
	// of returning the decode error. Each dropped message is logged.
	SkipInvalid bool
	Logger      *slog.Logger
}

var _ ports.RequestProducer = (*Consumer)(nil)

// Consumer reads build requests from a topic.
type Consumer struct {
	reader      messageReader
	skipInvalid bool
	logger      *slog.Logger
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafkago.Message, error)
	Close() error
}

// NewConsumer validates cfg and opens a group reader on the request topic.
func NewConsumer(cfg Config) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker must be provided")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic must be provided")
	}

	readerConfig := kafkago.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  valueOr(cfg.GroupID, defaultGroupID),
		MinBytes: max(cfg.MinBytes, 1),
		MaxBytes: cfg.MaxBytes,
		MaxWait:  cfg.MaxWait,
	}
	if readerConfig.MaxBytes <= 0 {
		readerConfig.MaxBytes = defaultMaxBytes
	}
	if readerConfig.MaxWait <= 0 {
		readerConfig.MaxWait = defaultMaxWait
	}

	consumer := newConsumer(kafkago.NewReader(readerConfig))
	consumer.skipInvalid = cfg.SkipInvalid
	if cfg.Logger != nil {
		consumer.logger = cfg.Logger
	}
	return consumer, nil
}

func newConsumer(reader messageReader) *Consumer {
	return &Consumer{
		reader: reader,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// NextRequest blocks until the next request message is available or the
// context is cancelled. A done marker yields io.EOF.
func (c *Consumer) NextRequest(ctx context.Context) (execution.BuildRequest, error) {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			return execution.BuildRequest{}, err
		}

		req, err := decodeRequestMessage(msg)
		if err == nil || errors.Is(err, io.EOF) || !c.skipInvalid {
			return req, err
		}

		c.logger.Warn("skipping invalid request message",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
	}
}

// Close releases the underlying Kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
