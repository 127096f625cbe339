package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResultCache caches search result pages so repeated scrolling through the
// same query doesn't re-scan the full history.
type ResultCache interface {
	Get(ctx context.Context, query string, page int) (*Page, error)
	Set(ctx context.Context, query string, page int, result *Page) error
}

type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a search result cache backed by Redis.
func NewRedisCache(client *redis.Client) ResultCache {
	return &redisCache{
		client: client,
		ttl:    10 * time.Minute,
	}
}

func (c *redisCache) key(query string, page int) string {
	return fmt.Sprintf("archive:search:%s:%d", query, page)
}

func (c *redisCache) Get(ctx context.Context, query string, page int) (*Page, error) {
	data, err := c.client.Get(ctx, c.key(query, page)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var result Page
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *redisCache) Set(ctx context.Context, query string, page int, result *Page) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(query, page), data, c.ttl).Err()
}
