package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/klejdi94/quill/core"
	"github.com/klejdi94/quill/provider"
)

// DefaultCacheEntries bounds NewInMemoryCache.
const DefaultCacheEntries = 1024

// Cache stores encoded completions by key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

type cacheProvider struct {
	passthrough
	cache Cache
	ttl   time.Duration
}

// CacheMiddleware serves repeated identical requests from cache. Only
// successful responses are stored, and when the request carries an output
// shape only responses that conform to it. A nil cache disables caching.
func CacheMiddleware(cache Cache, ttl time.Duration) Middleware {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return func(p provider.Provider) provider.Provider {
		if cache == nil {
			return p
		}
		return &cacheProvider{passthrough: passthrough{next: p}, cache: cache, ttl: ttl}
	}
}

func (c *cacheProvider) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	key := CacheKey(req)
	if raw, ok := c.cache.Get(ctx, key); ok {
		var hit provider.CompletionResponse
		if json.Unmarshal(raw, &hit) == nil {
			return &hit, nil
		}
	}
	resp, err := c.next.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(req.Shape) > 0 {
		if _, err := core.ParseOutput(req.Shape, provider.ToRaw(resp)); err != nil {
			return resp, nil
		}
	}
	if raw, err := json.Marshal(resp); err == nil {
		// a failed write only costs a future miss
		_ = c.cache.Set(ctx, key, raw, c.ttl)
	}
	return resp, nil
}

// CacheKey hashes every request field that can change the completion.
func CacheKey(req provider.CompletionRequest) string {
	shape, _ := json.Marshal(req.Shape)
	h := sha256.New()
	stop, _ := json.Marshal(req.StopTokens)
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%g\x00%g\x00%d\x00%s\x00%s",
		req.Model, req.System, req.Prompt, req.Temperature, req.TopP, req.MaxTokens, shape, stop)
	return hex.EncodeToString(h.Sum(nil))
}

type cacheEntry struct {
	val     []byte
	expires time.Time
}

// InMemoryCache is a bounded LRU cache with per-entry expiry for a single process.
type InMemoryCache struct {
	entries *lru.Cache[string, cacheEntry]
	now     func() time.Time
}

// NewInMemoryCache creates a cache holding DefaultCacheEntries entries.
func NewInMemoryCache() *InMemoryCache {
	return NewInMemoryCacheSize(DefaultCacheEntries)
}

// NewInMemoryCacheSize creates a cache holding at most n entries.
func NewInMemoryCacheSize(n int) *InMemoryCache {
	if n <= 0 {
		n = DefaultCacheEntries
	}
	entries, _ := lru.New[string, cacheEntry](n)
	return &InMemoryCache{entries: entries, now: time.Now}
}

// Get implements Cache. Expired entries are dropped on read.
func (m *InMemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	e, ok := m.entries.Get(key)
	if !ok {
		return nil, false
	}
	if !m.now().Before(e.expires) {
		m.entries.Remove(key)
		return nil, false
	}
	return e.val, true
}

// Set implements Cache.
func (m *InMemoryCache) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	m.entries.Add(key, cacheEntry{val: append([]byte(nil), val...), expires: m.now().Add(ttl)})
	return nil
}

// Len reports how many entries are held, expired ones included.
func (m *InMemoryCache) Len() int { return m.entries.Len() }
