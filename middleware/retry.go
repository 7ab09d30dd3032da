package middleware

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/klejdi94/quill/core"
	"github.com/klejdi94/quill/provider"
)

// BackoffFunc returns delay before the next retry (attempt is 0-based).
type BackoffFunc func(attempt int) time.Duration

// ExponentialBackoff returns delay = base * 2^attempt, capped at max.
func ExponentialBackoff(base, max time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		d := base * time.Duration(math.Pow(2, float64(attempt)))
		if d > max {
			return max
		}
		return d
	}
}

type retryProvider struct {
	passthrough
	maxRetries int
	backoff    BackoffFunc
	logger     *zap.Logger
}

// Retry returns a middleware that retries transient failures (network,
// timeout, rate limited, unavailable) up to maxRetries times. It is an opt-in
// policy for callers; the executor never retries.
func Retry(maxRetries int, backoff BackoffFunc, logger *zap.Logger) Middleware {
	if maxRetries <= 0 {
		return nil
	}
	if backoff == nil {
		backoff = ExponentialBackoff(500*time.Millisecond, 30*time.Second)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(p provider.Provider) provider.Provider {
		return &retryProvider{passthrough: passthrough{next: p}, maxRetries: maxRetries, backoff: backoff, logger: logger}
	}
}

func (r *retryProvider) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		resp, err := r.next.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if attempt == r.maxRetries || !Retryable(err) {
			break
		}
		delay := r.backoff(attempt)
		r.logger.Debug("retrying completion", zap.Int("attempt", attempt+1), zap.Duration("delay", delay), zap.Error(err))
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, lastErr
		case <-t.C:
		}
	}
	return nil, lastErr
}

// Retryable reports whether err is a transient provider failure.
func Retryable(err error) bool {
	var perr *core.ProviderError
	if !errors.As(err, &perr) {
		return false
	}
	switch perr.Kind {
	case core.ProviderNetwork, core.ProviderTimeout, core.ProviderRateLimited, core.ProviderUnavailable:
		return !errors.Is(err, ErrCircuitOpen)
	}
	return false
}
