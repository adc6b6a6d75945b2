package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const backendRedis = "redis"

// RedisStore keeps documents in Redis.
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisStore creates a Redis-backed store. Documents expire after ttl;
// zero keeps them until deleted.
func NewRedisStore(redisClient *redis.Client, ttl time.Duration) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisStore{
		redis: redisClient,
		ttl:   ttl,
	}
}

// Save stores doc under key.
func (s *RedisStore) Save(ctx context.Context, key Key, doc *Document) error {
	if doc == nil {
		return fmt.Errorf("document cannot be nil")
	}
	if err := key.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		storeErrors.WithLabelValues(backendRedis, "save").Inc()
		return fmt.Errorf("marshal document: %w", err)
	}

	if err := s.redis.Set(ctx, key.String(), data, s.ttl).Err(); err != nil {
		storeErrors.WithLabelValues(backendRedis, "save").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	storeWrites.WithLabelValues(backendRedis).Inc()
	return nil
}

// Load retrieves the document stored under key.
// Returns ErrNotFound if the key doesn't exist or has expired.
func (s *RedisStore) Load(ctx context.Context, key Key) (*Document, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	data, err := s.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		storeErrors.WithLabelValues(backendRedis, "load").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		storeErrors.WithLabelValues(backendRedis, "load").Inc()
		return nil, fmt.Errorf("decode document %s: %w", key, err)
	}
	return &doc, nil
}

// Delete removes the document stored under key.
func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	if err := s.redis.Del(ctx, key.String()).Err(); err != nil {
		storeErrors.WithLabelValues(backendRedis, "delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// TTL returns the remaining lifetime of the document under key.
func (s *RedisStore) TTL(ctx context.Context, key Key) (time.Duration, error) {
	ttl, err := s.redis.TTL(ctx, key.String()).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ttl: %w", err)
	}
	return ttl, nil
}
