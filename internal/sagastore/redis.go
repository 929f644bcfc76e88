package sagastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/VKev/registration-saga/internal/saga"
)

// DefaultKeyPrefix namespaces saga records in Redis.
const DefaultKeyPrefix = "user-creating-saga:"

// DefaultTTL is the retention window for saga records. After expiry any
// further correlated events are orphaned.
const DefaultTTL = 10 * time.Minute

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix namespaces saga keys; DefaultKeyPrefix when empty.
	KeyPrefix string
	// TTL is the record retention window; DefaultTTL when zero.
	TTL time.Duration
}

// RedisStore persists saga records in Redis under
// {prefix}saga:{correlation_id} with a retention TTL applied on every
// write. Update uses a WATCH transaction for compare-and-set, so
// concurrent redeliveries for the same id cannot clobber each other.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStore connects a RedisStore using cfg.
func NewRedisStore(cfg RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisStoreWithClient(client, cfg)
}

// NewRedisStoreWithClient wraps an existing client, mainly for tests.
func NewRedisStoreWithClient(client redis.UniversalClient, cfg RedisConfig) *RedisStore {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, keyPrefix: prefix, ttl: ttl}
}

// Ping verifies connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Get returns the record for id, or saga.ErrNotFound once it has expired
// or was never created.
func (s *RedisStore) Get(ctx context.Context, id uuid.UUID) (*saga.State, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, saga.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sagastore: redis get: %w", err)
	}
	var state saga.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("sagastore: decoding state: %w", err)
	}
	return &state, nil
}

// Create stores a new record with SET NX, failing with
// saga.ErrAlreadyExists when a live record is present.
func (s *RedisStore) Create(ctx context.Context, state *saga.State) error {
	state.Version = 1
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("sagastore: encoding state: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(state.CorrelationID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("sagastore: redis setnx: %w", err)
	}
	if !ok {
		return saga.ErrAlreadyExists
	}
	return nil
}

// Update replaces the record under WATCH so the write only lands if the
// stored version still matches the version the caller read.
func (s *RedisStore) Update(ctx context.Context, state *saga.State) error {
	key := s.key(state.CorrelationID)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return saga.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("sagastore: redis get: %w", err)
		}

		var stored saga.State
		if err := json.Unmarshal(data, &stored); err != nil {
			return fmt.Errorf("sagastore: decoding state: %w", err)
		}
		if stored.Version != state.Version {
			return saga.ErrConflict
		}

		state.Version++
		updated, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("sagastore: encoding state: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, s.ttl)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		// The key changed between read and write; same outcome as a
		// version mismatch.
		return saga.ErrConflict
	}
	return err
}

func (s *RedisStore) key(id uuid.UUID) string {
	return fmt.Sprintf("%ssaga:%s", s.keyPrefix, id)
}
