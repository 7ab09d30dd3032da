package middleware

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/klejdi94/quill/core"
	"github.com/klejdi94/quill/provider"
)

// ErrCircuitOpen is wrapped by the ProviderError returned while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

const (
	cbClosed = iota
	cbOpen
	cbHalfOpen
)

// minCircuitRequests is the sample size before the failure rate is evaluated.
const minCircuitRequests = 10

type circuitBreakerProvider struct {
	passthrough
	threshold float64
	timeout   time.Duration
	now       func() time.Time

	mu        sync.Mutex
	state     int
	requests  int
	failures  int
	openUntil time.Time
	probing   bool
}

// CircuitBreaker returns a middleware that opens (fails fast) when failure rate exceeds threshold (e.g. 0.5).
// After timeout it allows one request (half-open); success closes the circuit.
// Only unavailable, timeout and network failures count; rejected requests are
// the caller's problem, not the provider's.
func CircuitBreaker(threshold float64, timeout time.Duration) Middleware {
	if threshold <= 0 {
		return nil
	}
	return func(p provider.Provider) provider.Provider {
		return &circuitBreakerProvider{passthrough: passthrough{next: p}, threshold: threshold, timeout: timeout, now: time.Now}
	}
}

func (c *circuitBreakerProvider) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	if err := c.admit(); err != nil {
		return nil, err
	}
	resp, err := c.next.Complete(ctx, req)
	c.record(err)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *circuitBreakerProvider) admit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case cbOpen:
		if c.now().Before(c.openUntil) {
			return &core.ProviderError{Kind: core.ProviderUnavailable, Provider: "circuit", Err: ErrCircuitOpen}
		}
		c.state = cbHalfOpen
		c.probing = true
	case cbHalfOpen:
		if c.probing {
			return &core.ProviderError{Kind: core.ProviderUnavailable, Provider: "circuit", Err: ErrCircuitOpen}
		}
		c.probing = true
	}
	return nil
}

func (c *circuitBreakerProvider) record(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	failed := countsAsFailure(err)
	if c.state == cbHalfOpen {
		c.probing = false
		if failed {
			c.trip()
		} else {
			c.state = cbClosed
			c.requests, c.failures = 0, 0
		}
		return
	}
	c.requests++
	if failed {
		c.failures++
	}
	if c.requests >= minCircuitRequests && float64(c.failures)/float64(c.requests) >= c.threshold {
		c.trip()
	}
}

func (c *circuitBreakerProvider) trip() {
	c.state = cbOpen
	c.openUntil = c.now().Add(c.timeout)
	c.requests, c.failures = 0, 0
}

func countsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	var perr *core.ProviderError
	if !errors.As(err, &perr) {
		return true
	}
	switch perr.Kind {
	case core.ProviderUnavailable, core.ProviderTimeout, core.ProviderNetwork:
		return true
	}
	return false
}
