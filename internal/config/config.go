// Package config loads service configuration from the process environment.
// Components never read the environment themselves; a loaded config is
// injected at construction time.
package config

import (
	"fmt"
	"os"
	"time"
)

// Service identities used for consumer groups, tracing and logging.
const (
	UserServiceName  = "user-service"
	GuestServiceName = "guest-service"
	ServiceVersion   = "0.1.0"
)

// Common holds the settings both services share.
type Common struct {
	KafkaBroker    string
	GroupID        string
	DatabaseDSN    string
	OtelEndpoint   string
	OtelAuthHeader string
}

// TracingEnabled reports whether an OTLP endpoint was configured.
func (c Common) TracingEnabled() bool {
	return c.OtelEndpoint != ""
}

// UserService is the user-service configuration. The user service hosts the
// saga orchestrator, so it also carries the saga store settings.
type UserService struct {
	Common
	RedisAddr     string
	RedisPassword string
	SagaTTL       time.Duration
}

// GuestService is the guest-service configuration.
type GuestService struct {
	Common
}

// LoadUserService reads the user-service configuration from the
// environment.
func LoadUserService() (*UserService, error) {
	common, err := loadCommon(UserServiceName)
	if err != nil {
		return nil, err
	}

	ttl, err := durationOrDefault("SAGA_TTL", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	cfg := &UserService{
		Common:        common,
		RedisAddr:     getOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		SagaTTL:       ttl,
	}
	return cfg, nil
}

// LoadGuestService reads the guest-service configuration from the
// environment.
func LoadGuestService() (*GuestService, error) {
	common, err := loadCommon(GuestServiceName)
	if err != nil {
		return nil, err
	}
	return &GuestService{Common: common}, nil
}

func loadCommon(serviceName string) (Common, error) {
	cfg := Common{
		KafkaBroker:    os.Getenv("KAFKA_BROKER"),
		GroupID:        getOrDefault("KAFKA_GROUP_ID", serviceName+"-group"),
		DatabaseDSN:    os.Getenv("DATABASE_DSN"),
		OtelEndpoint:   os.Getenv("OTEL_ENDPOINT"),
		OtelAuthHeader: os.Getenv("OTEL_AUTH_HEADER"),
	}

	if cfg.KafkaBroker == "" {
		return Common{}, fmt.Errorf("KAFKA_BROKER environment variable is required")
	}
	if cfg.DatabaseDSN == "" {
		return Common{}, fmt.Errorf("DATABASE_DSN environment variable is required")
	}
	return cfg, nil
}

func getOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func durationOrDefault(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return parsed, nil
}
