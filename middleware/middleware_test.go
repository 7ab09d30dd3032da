package middleware

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/klejdi94/quill/core"
	"github.com/klejdi94/quill/provider"
)

type fakeProvider struct {
	calls atomic.Int32
	errs  []error
	resp  *provider.CompletionResponse
}

func (f *fakeProvider) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	n := int(f.calls.Add(1)) - 1
	if n < len(f.errs) && f.errs[n] != nil {
		return nil, f.errs[n]
	}
	if f.resp != nil {
		return f.resp, nil
	}
	return &provider.CompletionResponse{
		Content: `{"ok":"yes"}`,
		Model:   "fake-1",
		Usage:   provider.TokenUsage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
	}, nil
}

func (f *fakeProvider) GetModelInfo(model string) (*provider.ModelInfo, error) {
	return &provider.ModelInfo{ID: model, Provider: "fake"}, nil
}

func providerErr(kind core.ProviderErrorKind) error {
	return &core.ProviderError{Kind: kind, Provider: "fake", Err: errors.New(string(kind))}
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(p provider.Provider) provider.Provider {
			order = append(order, name)
			return p
		}
	}
	Chain(&fakeProvider{}, mw("outer"), nil, mw("inner"))
	assert.Equal(t, []string{"inner", "outer"}, order)
}

func TestLogging(t *testing.T) {
	obs, logs := observer.New(zap.DebugLevel)
	p := Chain(&fakeProvider{errs: []error{providerErr(core.ProviderUnavailable)}}, Logging(zap.New(obs)))

	_, err := p.Complete(context.Background(), provider.CompletionRequest{Model: "m", Prompt: "hi"})
	require.Error(t, err)
	_, err = p.Complete(context.Background(), provider.CompletionRequest{Model: "m", Prompt: "hi"})
	require.NoError(t, err)

	warn := logs.FilterMessage("complete failed").All()
	require.Len(t, warn, 1)
	assert.Equal(t, "unavailable", warn[0].ContextMap()["kind"])
	assert.Equal(t, 1, logs.FilterLevelExact(zap.InfoLevel).Len())

	info, err := p.GetModelInfo("m")
	require.NoError(t, err)
	assert.Equal(t, "fake", info.Provider)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	p := Chain(&fakeProvider{errs: []error{providerErr(core.ProviderRateLimited)}}, m.Middleware())
	req := provider.CompletionRequest{Model: "m"}
	_, _ = p.Complete(context.Background(), req)
	_, _ = p.Complete(context.Background(), req)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("m")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("m", "rate_limited")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.tokens.WithLabelValues("m", "prompt")))
	n, err := testutil.GatherAndCount(reg, "quill_provider_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCacheMiddleware(t *testing.T) {
	fake := &fakeProvider{}
	p := Chain(fake, CacheMiddleware(NewInMemoryCache(), time.Minute))
	req := provider.CompletionRequest{Model: "m", Prompt: "p", Shape: core.Shape{core.Text("ok")}}

	first, err := p.Complete(context.Background(), req)
	require.NoError(t, err)
	second, err := p.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, int32(1), fake.calls.Load())

	req.Shape = core.Shape{core.List("ok")}
	_, err = p.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.calls.Load())
}

func TestCacheMiddleware_ErrorsNotCached(t *testing.T) {
	fake := &fakeProvider{errs: []error{providerErr(core.ProviderNetwork)}}
	p := Chain(fake, CacheMiddleware(NewInMemoryCache(), time.Minute))
	_, err := p.Complete(context.Background(), provider.CompletionRequest{Prompt: "p"})
	require.Error(t, err)
	_, err = p.Complete(context.Background(), provider.CompletionRequest{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.calls.Load())
}

func TestCacheMiddleware_NonConformingNotCached(t *testing.T) {
	fake := &fakeProvider{resp: &provider.CompletionResponse{Content: "Sure! #coffee", Model: "fake-1"}}
	p := Chain(fake, CacheMiddleware(NewInMemoryCache(), time.Hour))
	req := provider.CompletionRequest{Prompt: "p", Shape: core.Shape{core.List("hashtags")}}

	resp, err := p.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Sure! #coffee", resp.Content)

	fake.resp = &provider.CompletionResponse{Content: `{"hashtags":["#coffee"]}`, Model: "fake-1"}
	resp, err = p.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, `{"hashtags":["#coffee"]}`, resp.Content)
	assert.Equal(t, int32(2), fake.calls.Load())

	resp, err = p.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, `{"hashtags":["#coffee"]}`, resp.Content)
	assert.Equal(t, int32(2), fake.calls.Load())
}

func TestInMemoryCache_Expiry(t *testing.T) {
	c := NewInMemoryCache()
	require.NoError(t, c.Set(context.Background(), "k", []byte("v"), -time.Second))
	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestRateLimit(t *testing.T) {
	assert.Nil(t, RateLimit(0, time.Second))

	fake := &fakeProvider{}
	p := Chain(fake, RateLimit(1, time.Hour))
	_, err := p.Complete(context.Background(), provider.CompletionRequest{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Complete(ctx, provider.CompletionRequest{})
	var perr *core.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, core.ProviderRateLimited, perr.Kind)
	assert.Equal(t, int32(1), fake.calls.Load())
}

func TestCircuitBreaker(t *testing.T) {
	errs := make([]error, minCircuitRequests)
	for i := range errs {
		errs[i] = providerErr(core.ProviderUnavailable)
	}
	fake := &fakeProvider{errs: errs}
	now := time.Unix(0, 0)
	cb := CircuitBreaker(0.5, time.Minute)(fake).(*circuitBreakerProvider)
	cb.now = func() time.Time { return now }

	for i := 0; i < minCircuitRequests; i++ {
		_, err := cb.Complete(context.Background(), provider.CompletionRequest{})
		require.Error(t, err)
	}
	_, err := cb.Complete(context.Background(), provider.CompletionRequest{})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(minCircuitRequests), fake.calls.Load())

	now = now.Add(2 * time.Minute)
	_, err = cb.Complete(context.Background(), provider.CompletionRequest{})
	require.NoError(t, err)
	_, err = cb.Complete(context.Background(), provider.CompletionRequest{})
	require.NoError(t, err)
}

func TestCircuitBreaker_IgnoresRejections(t *testing.T) {
	errs := make([]error, minCircuitRequests)
	for i := range errs {
		errs[i] = providerErr(core.ProviderRejected)
	}
	fake := &fakeProvider{errs: errs}
	p := Chain(fake, CircuitBreaker(0.5, time.Minute))
	for i := 0; i < minCircuitRequests; i++ {
		_, _ = p.Complete(context.Background(), provider.CompletionRequest{})
	}
	_, err := p.Complete(context.Background(), provider.CompletionRequest{})
	assert.NoError(t, err)
}

func TestRetry(t *testing.T) {
	noWait := func(int) time.Duration { return 0 }

	fake := &fakeProvider{errs: []error{providerErr(core.ProviderUnavailable), providerErr(core.ProviderTimeout)}}
	p := Chain(fake, Retry(3, noWait, nil))
	_, err := p.Complete(context.Background(), provider.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), fake.calls.Load())

	fake = &fakeProvider{errs: []error{providerErr(core.ProviderRejected)}}
	p = Chain(fake, Retry(3, noWait, nil))
	_, err = p.Complete(context.Background(), provider.CompletionRequest{})
	require.Error(t, err)
	assert.Equal(t, int32(1), fake.calls.Load())
}

func TestExponentialBackoff(t *testing.T) {
	b := ExponentialBackoff(100*time.Millisecond, time.Second)
	assert.Equal(t, 100*time.Millisecond, b(0))
	assert.Equal(t, 400*time.Millisecond, b(2))
	assert.Equal(t, time.Second, b(10))
}

func TestInMemoryCache_Bounded(t *testing.T) {
	c := NewInMemoryCacheSize(2)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Minute))
	require.NoError(t, c.Set(ctx, "c", []byte("3"), time.Minute))
	assert.Equal(t, 2, c.Len())
	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
	v, ok := c.Get(ctx, "c")
	require.True(t, ok)
	assert.Equal(t, []byte("3"), v)
}
