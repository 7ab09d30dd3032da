package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/klejdi94/quill/core"
	"github.com/klejdi94/quill/provider"
)

// Metrics holds Prometheus collectors for provider calls.
type Metrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	tokens   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg (when non-nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quill",
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Completion requests sent to the provider.",
		}, []string{"model"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quill",
			Subsystem: "provider",
			Name:      "errors_total",
			Help:      "Failed completion requests by error kind.",
		}, []string{"model", "kind"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quill",
			Subsystem: "provider",
			Name:      "tokens_total",
			Help:      "Tokens consumed by direction.",
		}, []string{"model", "direction"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "quill",
			Subsystem: "provider",
			Name:      "request_duration_seconds",
			Help:      "Completion latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}, []string{"model"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.errors, m.tokens, m.latency)
	}
	return m
}

// Middleware returns a middleware recording into m.
func (m *Metrics) Middleware() Middleware {
	return func(p provider.Provider) provider.Provider {
		return &metricsProvider{passthrough: passthrough{next: p}, m: m}
	}
}

type metricsProvider struct {
	passthrough
	m *Metrics
}

func (mp *metricsProvider) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = "default"
	}
	mp.m.requests.WithLabelValues(model).Inc()
	start := time.Now()
	resp, err := mp.next.Complete(ctx, req)
	mp.m.latency.WithLabelValues(model).Observe(time.Since(start).Seconds())
	if err != nil {
		kind := "unknown"
		var perr *core.ProviderError
		if errors.As(err, &perr) {
			kind = string(perr.Kind)
		}
		mp.m.errors.WithLabelValues(model, kind).Inc()
		return nil, err
	}
	mp.m.tokens.WithLabelValues(model, "prompt").Add(float64(resp.Usage.PromptTokens))
	mp.m.tokens.WithLabelValues(model, "completion").Add(float64(resp.Usage.CompletionTokens))
	return resp, nil
}
