package trending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// CacheKey is where the keyword list is kept in either cache backend.
const CacheKey = "trending:keywords"

// Cache stores keyword lists with a time to live.
type Cache interface {
	Get(ctx context.Context, key string) ([]string, bool, error)
	Set(ctx context.Context, key string, value []string, ttl time.Duration) error
}

const memoryCacheSize = 16

// MemoryCache is an in-process cache. The ttl passed to Set is ignored in
// favour of the one fixed at construction.
type MemoryCache struct {
	lru *expirable.LRU[string, []string]
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{lru: expirable.NewLRU[string, []string](memoryCacheSize, nil, ttl)}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]string, bool, error) {
	value, ok := c.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	return append([]string(nil), value...), true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []string, _ time.Duration) error {
	c.lru.Add(key, append([]string(nil), value...))
	return nil
}

// RedisCache shares the keyword list between processes using the redis
// persistence connection.
type RedisCache struct {
	client redis.UniversalClient
}

func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]string, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	var value []string
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return value, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []string, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
