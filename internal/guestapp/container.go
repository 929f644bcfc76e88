// Package guestapp wires and runs the guest service: the idempotent
// provisioner consuming the user service's creation events.
package guestapp

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/VKev/registration-saga/internal/config"
	"github.com/VKev/registration-saga/internal/contracts"
	"github.com/VKev/registration-saga/internal/guest"
	"github.com/VKev/registration-saga/internal/platform/kafka"
	"github.com/VKev/registration-saga/internal/platform/observability"
)

// Container holds the guest service's singletons.
type Container struct {
	cfg    *config.GuestService
	logger *zap.Logger

	otelLogShutdown   func(context.Context) error
	otelTraceShutdown func(context.Context) error

	publisher  *kafka.Publisher
	dispatcher *kafka.Dispatcher
}

// NewContainer loads configuration and initializes all components.
func NewContainer(ctx context.Context) (*Container, error) {
	cfg, err := config.LoadGuestService()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	c := &Container{cfg: cfg}

	tp := c.setupObservability(ctx)

	db, err := gorm.Open(mysql.Open(cfg.DatabaseDSN), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if err := db.AutoMigrate(&guest.Guest{}); err != nil {
		return nil, fmt.Errorf("failed to migrate guest schema: %w", err)
	}
	repo := guest.NewRepository(db)

	if err := c.setupMessaging(tp, repo); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Container) setupObservability(ctx context.Context) trace.TracerProvider {
	if !c.cfg.TracingEnabled() {
		c.logger = observability.NewLogger(config.GuestServiceName, false)
		return otel.GetTracerProvider()
	}

	otlp := observability.OTLPConfig{
		Endpoint:       c.cfg.OtelEndpoint,
		AuthHeader:     c.cfg.OtelAuthHeader,
		ServiceName:    config.GuestServiceName,
		ServiceVersion: config.ServiceVersion,
	}

	bootstrap := observability.NewLogger(config.GuestServiceName, false)

	logShutdown, err := observability.SetupLoggingSDK(ctx, otlp)
	if err != nil {
		bootstrap.Error("Failed to setup OpenTelemetry logging", zap.Error(err))
	}
	c.otelLogShutdown = logShutdown

	tp, traceShutdown, err := observability.SetupTracingSDK(ctx, otlp)
	if err != nil {
		bootstrap.Error("Failed to setup OpenTelemetry tracing", zap.Error(err))
	}
	c.otelTraceShutdown = traceShutdown

	c.logger = observability.NewLogger(config.GuestServiceName, true)
	if tp != nil {
		return tp
	}
	return otel.GetTracerProvider()
}

func (c *Container) setupMessaging(tp trace.TracerProvider, repo guest.Repository) error {
	writers := make(map[string]kafka.Producer)
	for _, topic := range []string{
		contracts.TopicGuestCreated,
		contracts.TopicGuestCreationFailed,
	} {
		writer, err := kafka.NewWriter(c.cfg.KafkaBroker, topic, config.GuestServiceName, tp)
		if err != nil {
			return fmt.Errorf("failed to create writer for %s: %w", topic, err)
		}
		writers[topic] = writer
	}
	c.publisher = kafka.NewPublisher(writers, c.logger)

	provisioner := guest.NewProvisioner(repo, c.publisher, c.logger)
	c.dispatcher = kafka.NewDispatcher(c.logger)
	c.dispatcher.Handle(contracts.TopicUserCreated,
		kafka.TypedHandler(c.logger, provisioner.HandleUserCreated))
	c.dispatcher.Subscribe(contracts.TopicUserCreated,
		kafka.NewReader(c.cfg.KafkaBroker, contracts.TopicUserCreated, c.cfg.GroupID))

	return nil
}

// Logger returns the service logger.
func (c *Container) Logger() *zap.Logger { return c.logger }

// Shutdown releases all resources.
func (c *Container) Shutdown(ctx context.Context) {
	c.logger.Info("Shutting down infrastructure...")

	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close consumers", zap.Error(err))
		}
	}
	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			c.logger.Error("Failed to close producers", zap.Error(err))
		}
	}
	if c.otelTraceShutdown != nil {
		if err := c.otelTraceShutdown(ctx); err != nil {
			c.logger.Error("Failed to shutdown OTel tracing", zap.Error(err))
		}
	}
	if c.otelLogShutdown != nil {
		if err := c.otelLogShutdown(ctx); err != nil {
			c.logger.Error("Failed to shutdown OTel logging", zap.Error(err))
		}
	}
	_ = c.logger.Sync()
}
