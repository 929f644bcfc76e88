package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/VKev/registration-saga/internal/contracts"
)

// Publisher routes typed saga events to their per-topic writers. Messages
// are keyed by correlation id so all events of one saga land on the same
// partition, and carry the event type and correlation id as headers.
type Publisher struct {
	writers map[string]Producer
	logger  *zap.Logger
}

// NewPublisher creates a publisher over writers keyed by event type.
func NewPublisher(writers map[string]Producer, logger *zap.Logger) *Publisher {
	return &Publisher{writers: writers, logger: logger}
}

// Publish implements contracts.Publisher.
func (p *Publisher) Publish(ctx context.Context, event contracts.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("kafka: refusing to publish invalid event: %w", err)
	}

	writer, ok := p.writers[event.EventType()]
	if !ok {
		return fmt.Errorf("kafka: no writer registered for event type %q", event.EventType())
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka: encoding %s event: %w", event.EventType(), err)
	}

	correlationID := event.Correlation().String()
	msg := kafkago.Message{
		Key:   []byte(correlationID),
		Value: payload,
		Headers: []kafkago.Header{
			{Key: contracts.HeaderEventType, Value: []byte(event.EventType())},
			{Key: contracts.HeaderCorrelationID, Value: []byte(correlationID)},
		},
	}

	if err := writer.WriteMessage(ctx, msg); err != nil {
		return fmt.Errorf("kafka: publishing %s event: %w", event.EventType(), err)
	}

	p.logger.Info("Published event",
		zap.String("event_type", event.EventType()),
		zap.String("correlation_id", correlationID))
	return nil
}

// Close closes every writer, returning the first error encountered.
func (p *Publisher) Close() error {
	var firstErr error
	for _, writer := range p.writers {
		if err := writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
