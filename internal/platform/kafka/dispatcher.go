package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/VKev/registration-saga/internal/contracts"
)

// HandlerFunc processes one decoded message. A returned error leaves the
// message uncommitted so the broker redelivers it; handlers must therefore
// be idempotent.
type HandlerFunc func(ctx context.Context, msg kafkago.Message) error

// Dispatcher binds event types to handler functions through an explicit
// registration table resolved at process start, and runs one fetch/commit
// loop per subscribed topic. Malformed or unrecognized events are logged
// and committed; they never reach a handler.
type Dispatcher struct {
	handlers      map[string]HandlerFunc
	subscriptions []subscription
	logger        *zap.Logger
}

type subscription struct {
	topic    string
	consumer Consumer
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// Handle registers the handler for an event type. Registering the same
// type twice is a programming error.
func (d *Dispatcher) Handle(eventType string, handler HandlerFunc) {
	if _, ok := d.handlers[eventType]; ok {
		panic(fmt.Sprintf("kafka: handler already registered for event type %q", eventType))
	}
	d.handlers[eventType] = handler
}

// Subscribe attaches a consumer whose messages feed the registration table.
func (d *Dispatcher) Subscribe(topic string, consumer Consumer) {
	d.subscriptions = append(d.subscriptions, subscription{topic: topic, consumer: consumer})
}

// Run consumes all subscriptions until ctx is canceled. In-flight handlers
// finish before Run returns; uncommitted messages are redelivered.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, sub := range d.subscriptions {
		s := sub
		g.Go(func() error {
			return d.consume(ctx, s)
		})
	}
	return g.Wait()
}

func (d *Dispatcher) consume(ctx context.Context, sub subscription) error {
	d.logger.Info("Consumer started", zap.String("topic", sub.topic))

	for {
		msg, err := sub.consumer.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				d.logger.Info("Context done, exiting consume loop", zap.String("topic", sub.topic))
				return nil
			}
			d.logger.Error("Error fetching from Kafka",
				zap.String("topic", sub.topic), zap.Error(err))
			continue
		}

		msgCtx := extractTraceContext(ctx, msg.Headers)

		handler, ok := d.handlers[eventType(msg)]
		if !ok {
			d.logger.Warn("No handler for event, dropping",
				zap.String("topic", sub.topic),
				zap.String("event_type", eventType(msg)))
			d.commit(ctx, sub, msg)
			continue
		}

		if err := handler(msgCtx, msg); err != nil {
			// Leave the message uncommitted so the broker redelivers it.
			d.logger.Error("Handler failed, message will be redelivered",
				zap.String("topic", sub.topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			continue
		}

		d.commit(ctx, sub, msg)
	}
}

func (d *Dispatcher) commit(ctx context.Context, sub subscription, msg kafkago.Message) {
	if err := sub.consumer.CommitMessages(ctx, msg); err != nil {
		d.logger.Error("Failed to commit offset",
			zap.String("topic", sub.topic),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
	}
}

// Close closes every subscribed consumer.
func (d *Dispatcher) Close() error {
	var firstErr error
	for _, sub := range d.subscriptions {
		if err := sub.consumer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// eventType reads the event-type header, falling back to the topic name
// for messages produced by older publishers.
func eventType(msg kafkago.Message) string {
	for _, header := range msg.Headers {
		if header.Key == contracts.HeaderEventType {
			return string(header.Value)
		}
	}
	return msg.Topic
}

// extractTraceContext connects consumer spans to the producer's trace via
// the message headers.
func extractTraceContext(ctx context.Context, headers []kafkago.Header) context.Context {
	propagator := otel.GetTextMapPropagator()
	carrier := propagation.MapCarrier{}
	for _, header := range headers {
		carrier[string(header.Key)] = string(header.Value)
	}
	return propagator.Extract(ctx, carrier)
}

// Decode unmarshals a message payload into a typed event and validates it.
func Decode[E contracts.Event](msg kafkago.Message) (E, error) {
	var event E
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return event, fmt.Errorf("kafka: decoding %s payload: %w", eventType(msg), err)
	}
	if err := event.Validate(); err != nil {
		return event, err
	}
	return event, nil
}

// TypedHandler adapts a typed event handler to a HandlerFunc. Payloads that
// fail to decode or validate are logged and acknowledged; redelivering a
// malformed message can never succeed.
func TypedHandler[E contracts.Event](logger *zap.Logger, handle func(ctx context.Context, event E) error) HandlerFunc {
	return func(ctx context.Context, msg kafkago.Message) error {
		event, err := Decode[E](msg)
		if err != nil {
			logger.Warn("Dropping malformed event",
				zap.String("event_type", eventType(msg)),
				zap.Error(err))
			return nil
		}
		return handle(ctx, event)
	}
}
