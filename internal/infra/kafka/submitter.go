package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"cppide/internal/domain/execution"
)

// Submitter enqueues build requests for workers consuming the request topic.
type Submitter struct {
	writer messageWriter
}

// NewSubmitter constructs a Submitter writing to cfg.Topic.
func NewSubmitter(cfg PublisherConfig) (*Submitter, error) {
	writer, err := newWriter(cfg)
	if err != nil {
		return nil, err
	}
	return newSubmitter(writer), nil
}

func newSubmitter(writer messageWriter) *Submitter {
	return &Submitter{writer: writer}
}

// Submit writes req and returns the ID it was submitted under.
func (s *Submitter) Submit(ctx context.Context, req execution.BuildRequest) (string, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	payload, err := encodeRequest(req)
	if err != nil {
		return "", err
	}

	msg := kafkago.Message{
		Key:   []byte(req.ID),
		Value: payload,
		Time:  time.Now(),
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return "", fmt.Errorf("write message: %w", err)
	}
	return req.ID, nil
}

// Done tells consumers that no further requests follow.
func (s *Submitter) Done(ctx context.Context) error {
	payload, err := json.Marshal(requestEnvelope{Type: messageTypeDone})
	if err != nil {
		return fmt.Errorf("marshal done marker: %w", err)
	}
	if err := s.writer.WriteMessages(ctx, kafkago.Message{Value: payload, Time: time.Now()}); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Close releases the underlying Kafka writer.
func (s *Submitter) Close() error {
	return s.writer.Close()
}
