// Package kafka wraps the Kafka client with the producer/consumer surfaces
// the services use: traced per-topic writers, manually-committed readers,
// and a dispatcher that routes events to registered handlers.
package kafka

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"
)

// Producer writes messages to a single topic.
type Producer interface {
	WriteMessage(ctx context.Context, msg kafkago.Message) error
	Close() error
}

// Consumer reads messages from a single topic. Messages are acknowledged
// explicitly with CommitMessages; an unacknowledged message is redelivered
// by the broker.
type Consumer interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}
