package middleware

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/klejdi94/quill/core"
	"github.com/klejdi94/quill/provider"
)

type rateLimitProvider struct {
	passthrough
	limiter *rate.Limiter
}

// RateLimit returns a middleware that allows at most limit requests per window
// (e.g. 100 per time.Minute), with bursts up to limit. Callers wait for a
// token; a wait that cannot finish before the context deadline fails with a
// rate_limited ProviderError without reaching the provider.
func RateLimit(limit int, window time.Duration) Middleware {
	if limit <= 0 || window <= 0 {
		return nil
	}
	return func(p provider.Provider) provider.Provider {
		return &rateLimitProvider{
			passthrough: passthrough{next: p},
			limiter:     rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit),
		}
	}
}

func (r *rateLimitProvider) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, provider.Classify("ratelimit", ctx.Err())
		}
		return nil, &core.ProviderError{Kind: core.ProviderRateLimited, Provider: "ratelimit", Err: fmt.Errorf("local rate limit: %w", err)}
	}
	return r.next.Complete(ctx, req)
}
