package middleware

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores cached responses in Redis so several servers can share them.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCache creates a cache using the given client and key prefix (e.g. "quill:cache:").
func NewRedisCache(client redis.UniversalClient, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "quill:cache:"
	}
	return &RedisCache{client: client, prefix: prefix}
}

// Get implements Cache. Redis errors are treated as a miss.
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

// Set implements Cache.
func (r *RedisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return r.client.Set(ctx, r.prefix+key, val, ttl).Err()
}
