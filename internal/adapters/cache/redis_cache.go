package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-classifier/internal/core"
)

// keyPrefix namespaces classification entries in a shared Redis instance.
const keyPrefix = "mail-classifier:result:"

// RedisCache is a Redis implementation of the ResultCache interface. TTL
// handling is delegated to Redis itself.
type RedisCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisCache creates a new Redis cache
func NewRedisCache(addr, password string, db int, logger *zap.Logger) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisCache{
		client: client,
		logger: logger,
	}
}

// Get retrieves a cached result for a message
func (c *RedisCache) Get(ctx context.Context, messageID string) (*core.ClassificationResult, error) {
	raw, err := c.client.Get(ctx, keyPrefix+messageID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var result core.ClassificationResult
	if err := json.Unmarshal(raw, &result); err != nil {
		// A corrupt entry behaves like a miss; the durable store is
		// authoritative anyway.
		c.logger.Warn("Dropping corrupt cache entry",
			zap.String("message_id", messageID),
			zap.Error(err))
		c.client.Del(ctx, keyPrefix+messageID)
		return nil, core.ErrNotFound
	}
	return &result, nil
}

// Set stores a result with the given TTL
func (c *RedisCache) Set(ctx context.Context, result *core.ClassificationResult, ttl time.Duration) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+result.MessageID, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Evict removes a cached result
func (c *RedisCache) Evict(ctx context.Context, messageID string) error {
	if err := c.client.Del(ctx, keyPrefix+messageID).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
