// internal/snapshot/cache.go
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tool-evaluator/internal/engine"

	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("rule set not cached")

const cacheKeyPrefix = "ruleset:"

func CacheKey(projectID string) string {
	return cacheKeyPrefix + projectID
}

type cachedDefinition struct {
	Definition  *engine.Definition `json:"definition"`
	PublishedAt time.Time          `json:"publishedAt"`
}

// Cache stores the latest published definition of each project in Redis.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) Get(ctx context.Context, projectID string) (*engine.Definition, time.Time, error) {
	val, err := c.client.Get(ctx, CacheKey(projectID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, time.Time{}, ErrCacheMiss
		}
		return nil, time.Time{}, fmt.Errorf("redis get: %w", err)
	}

	var entry cachedDefinition
	if err := json.Unmarshal(val, &entry); err != nil || entry.Definition == nil {
		return nil, time.Time{}, ErrCacheMiss
	}
	return entry.Definition, entry.PublishedAt, nil
}

func (c *Cache) Set(ctx context.Context, def *engine.Definition, publishedAt time.Time) error {
	data, err := json.Marshal(cachedDefinition{Definition: def, PublishedAt: publishedAt})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := c.client.Set(ctx, CacheKey(def.ProjectID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *Cache) Invalidate(ctx context.Context, projectID string) error {
	return c.client.Del(ctx, CacheKey(projectID)).Err()
}
