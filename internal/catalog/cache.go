package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const snapshotKey = "catalog:snapshot"

// Cache holds the compiled snapshot in Redis so hot readers skip the blob
// repository round-trip. It is strictly a read accelerator: misses and Redis
// failures fall through to the persisted snapshot document.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache connects to Redis and verifies the connection.
func NewCache(redisURL string, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Cache{client: client, ttl: ttl}, nil
}

// NewCacheWithClient wraps an existing Redis client.
func NewCacheWithClient(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Get returns the cached snapshot, reporting whether one was present. A
// decode failure counts as a miss and the stale key is dropped.
func (c *Cache) Get(ctx context.Context) (*Snapshot, bool) {
	payload, err := c.client.Get(ctx, snapshotKey).Result()
	if err != nil {
		return nil, false
	}
	var snapshot Snapshot
	if err := json.Unmarshal([]byte(payload), &snapshot); err != nil {
		_ = c.client.Del(ctx, snapshotKey).Err()
		return nil, false
	}
	return &snapshot, true
}

// Set stores the snapshot under the configured TTL.
func (c *Cache) Set(ctx context.Context, snapshot *Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := c.client.Set(ctx, snapshotKey, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache snapshot: %w", err)
	}
	return nil
}

// Invalidate drops the cached snapshot.
func (c *Cache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, snapshotKey).Err(); err != nil {
		return fmt.Errorf("drop cached snapshot: %w", err)
	}
	return nil
}

// Ping checks if Redis is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
