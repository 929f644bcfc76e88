// Package userapp wires and runs the user service: the registration
// service, the saga orchestrator, and the guest-created consumer.
package userapp

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
	"github.com/VKev/registration-saga/internal/platform/kafka"
	"github.com/VKev/registration-saga/internal/platform/observability"
	"github.com/VKev/registration-saga/internal/saga"
	"github.com/VKev/registration-saga/internal/sagastore"
	"github.com/VKev/registration-saga/internal/user"
)

// Container holds the user service's singletons and wires them together.
type Container struct {
	cfg    *config.UserService
	logger *zap.Logger

	otelLogShutdown   func(context.Context) error
	otelTraceShutdown func(context.Context) error

	publisher *kafka.Publisher
	store     *sagastore.RedisStore
	service   *user.Service

	// sagaDispatcher consumes the orchestrator's event streams;
	// provisionDispatcher consumes guest.created in its own consumer
	// group so both the orchestrator and the reverse consumer see every
	// completion event.
	sagaDispatcher      *kafka.Dispatcher
	provisionDispatcher *kafka.Dispatcher
}

// NewContainer loads configuration and initializes all components.
func NewContainer(ctx context.Context) (*Container, error) {
	cfg, err := config.LoadUserService()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	c := &Container{cfg: cfg}

	tp := c.setupObservability(ctx)

	db, err := gorm.Open(mysql.Open(cfg.DatabaseDSN), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if err := db.AutoMigrate(&user.User{}); err != nil {
		return nil, fmt.Errorf("failed to migrate user schema: %w", err)
	}
	repo := user.NewRepository(db)

	c.store = sagastore.NewRedisStore(sagastore.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		TTL:      cfg.SagaTTL,
	})
	if err := c.store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to reach saga store: %w", err)
	}

	if err := c.setupMessaging(tp, repo); err != nil {
		return nil, err
	}

	c.service = user.NewService(repo, c.publisher, c.logger)
	return c, nil
}

// setupObservability configures tracing and logging, falling back to plain
// stdout logging when no OTLP endpoint is configured.
func (c *Container) setupObservability(ctx context.Context) trace.TracerProvider {
	if !c.cfg.TracingEnabled() {
		c.logger = observability.NewLogger(config.UserServiceName, false)
		return otel.GetTracerProvider()
	}

	otlp := observability.OTLPConfig{
		Endpoint:       c.cfg.OtelEndpoint,
		AuthHeader:     c.cfg.OtelAuthHeader,
		ServiceName:    config.UserServiceName,
		ServiceVersion: config.ServiceVersion,
	}

	bootstrap := observability.NewLogger(config.UserServiceName, false)

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

	c.logger = observability.NewLogger(config.UserServiceName, true)
	if tp != nil {
		return tp
	}
	return otel.GetTracerProvider()
}

// setupMessaging builds the traced writers, the handler registration
// tables, and the topic subscriptions.
func (c *Container) setupMessaging(tp trace.TracerProvider, repo user.Repository) error {
	writers := make(map[string]kafka.Producer)
	for _, topic := range []string{
		contracts.TopicRegistrationStarted,
		contracts.TopicUserCreated,
		contracts.TopicGuestCreationFailed,
	} {
		writer, err := kafka.NewWriter(c.cfg.KafkaBroker, topic, config.UserServiceName, tp)
		if err != nil {
			return fmt.Errorf("failed to create writer for %s: %w", topic, err)
		}
		writers[topic] = writer
	}
	c.publisher = kafka.NewPublisher(writers, c.logger)

	orchestrator := saga.NewOrchestrator(c.store, c.publisher, c.logger)
	c.sagaDispatcher = kafka.NewDispatcher(c.logger)
	c.sagaDispatcher.Handle(contracts.TopicRegistrationStarted,
		kafka.TypedHandler(c.logger, orchestrator.HandleRegistrationStarted))
	c.sagaDispatcher.Handle(contracts.TopicGuestCreated,
		kafka.TypedHandler(c.logger, orchestrator.HandleGuestCreated))
	c.sagaDispatcher.Handle(contracts.TopicGuestCreationFailed,
		kafka.TypedHandler(c.logger, orchestrator.HandleGuestCreationFailed))

	sagaGroup := c.cfg.GroupID + "-saga"
	for _, topic := range []string{
		contracts.TopicRegistrationStarted,
		contracts.TopicGuestCreated,
		contracts.TopicGuestCreationFailed,
	} {
		c.sagaDispatcher.Subscribe(topic, kafka.NewReader(c.cfg.KafkaBroker, topic, sagaGroup))
	}

	consumer := user.NewGuestCreatedConsumer(repo, c.publisher, c.logger)
	c.provisionDispatcher = kafka.NewDispatcher(c.logger)
	c.provisionDispatcher.Handle(contracts.TopicGuestCreated,
		kafka.TypedHandler(c.logger, consumer.HandleGuestCreated))
	c.provisionDispatcher.Subscribe(contracts.TopicGuestCreated,
		kafka.NewReader(c.cfg.KafkaBroker, contracts.TopicGuestCreated, c.cfg.GroupID))

	return nil
}

// Service exposes the synchronous registration entry point for the HTTP
// layer hosted around this service.
func (c *Container) Service() *user.Service { return c.service }

// Logger returns the service logger.
func (c *Container) Logger() *zap.Logger { return c.logger }

// Shutdown releases all resources in reverse dependency order.
func (c *Container) Shutdown(ctx context.Context) {
	c.logger.Info("Shutting down infrastructure...")

	for _, d := range []*kafka.Dispatcher{c.sagaDispatcher, c.provisionDispatcher} {
		if d != nil {
			if err := d.Close(); err != nil {
				c.logger.Error("Failed to close consumers", zap.Error(err))
			}
		}
	}
	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			c.logger.Error("Failed to close producers", zap.Error(err))
		}
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.logger.Error("Failed to close saga store", zap.Error(err))
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
