package middleware

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_UnreachableIsMiss(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()
	c := NewRedisCache(rdb, "")

	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
	assert.Error(t, c.Set(context.Background(), "k", []byte("v"), time.Minute))
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("QUILL_TEST_REDIS")
	if addr == "" {
		t.Skip("QUILL_TEST_REDIS not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	prefix := fmt.Sprintf("quill-test:cache:%d:", time.Now().UnixNano())
	defer rdb.Del(context.Background(), prefix+"k")

	ctx := context.Background()
	c := NewRedisCache(rdb, prefix)
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	require.NoError(t, c.Set(ctx, "k", []byte(`{"Content":"x"}`), time.Minute))
	v, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, `{"Content":"x"}`, string(v))
	ttl, err := rdb.TTL(ctx, prefix+"k").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
