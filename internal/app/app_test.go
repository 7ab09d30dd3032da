package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/klejdi94/quill/analytics"
	"github.com/klejdi94/quill/config"
	"github.com/klejdi94/quill/core"
	"github.com/klejdi94/quill/executor"
	"github.com/klejdi94/quill/flows"
)

func TestCatalog_BuiltinAndDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "slogan.yaml"), []byte(`
name: slogan
title: Team Slogans
template: "Slogans for {{.brand}}"
input:
  - name: brand
    type: string
output:
  - name: slogans
    kind: string_array
`), 0644))

	var closers Closers
	defer closers.Close()
	c, err := Catalog(context.Background(), config.CatalogConfig{Dir: dir}, zap.NewNop(), &closers)
	require.NoError(t, err)
	assert.Equal(t, len(flows.All()), c.Len())
	f, ok := c.Get("slogan")
	require.True(t, ok)
	assert.Equal(t, "Team Slogans", f.Title)
}

func TestCatalog_NoSources(t *testing.T) {
	var closers Closers
	_, err := Catalog(context.Background(), config.CatalogConfig{DisableBuiltin: true}, zap.NewNop(), &closers)
	assert.Error(t, err)
}

func TestProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Provider.Name = "ollama"
	cfg.Middleware.CacheTTL = time.Minute
	cfg.Middleware.RateLimit = 5
	cfg.Middleware.CircuitThreshold = 0.5
	cfg.Middleware.Retries = 2

	var closers Closers
	p, err := Provider(context.Background(), cfg, zap.NewNop(), prometheus.NewRegistry(), &closers)
	require.NoError(t, err)
	info, err := p.GetModelInfo("llama3.2")
	require.NoError(t, err)
	assert.Equal(t, "ollama", info.Provider)

	cfg.Provider.Name = "nope"
	_, err = Provider(context.Background(), cfg, zap.NewNop(), nil, &closers)
	assert.Error(t, err)
}

func TestRecorder(t *testing.T) {
	var closers Closers
	r, err := Recorder(context.Background(), config.AnalyticsConfig{}, &closers)
	require.NoError(t, err)
	assert.Nil(t, r)

	r, err = Recorder(context.Background(), config.AnalyticsConfig{Store: "memory"}, &closers)
	require.NoError(t, err)
	assert.IsType(t, &analytics.MemoryStore{}, r)

	r, err = Recorder(context.Background(), config.AnalyticsConfig{Store: "http", URL: "http://localhost:8081"}, &closers)
	require.NoError(t, err)
	assert.IsType(t, &analytics.HTTPRecorder{}, r)

	_, err = Recorder(context.Background(), config.AnalyticsConfig{Store: "mongo"}, &closers)
	assert.Error(t, err)
}

func TestAnalyticsStore(t *testing.T) {
	var closers Closers
	s, err := AnalyticsStore(context.Background(), config.AnalyticsConfig{}, &closers)
	require.NoError(t, err)
	assert.IsType(t, &analytics.MemoryStore{}, s)

	s, err = AnalyticsStore(context.Background(), config.AnalyticsConfig{Store: "redis", Redis: "localhost:0", MaxRecords: 10}, &closers)
	require.NoError(t, err)
	assert.IsType(t, &analytics.RedisStore{}, s)
	require.Len(t, closers, 1)
	assert.NoError(t, closers.Close())

	_, err = AnalyticsStore(context.Background(), config.AnalyticsConfig{Store: "http", URL: "http://x"}, &closers)
	assert.Error(t, err)
}

func TestClosers(t *testing.T) {
	var order []int
	boom := errors.New("boom")
	c := Closers{
		func() error { order = append(order, 1); return nil },
		func() error { order = append(order, 2); return boom },
	}
	err := c.Close()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{2, 1}, order)
	assert.NoError(t, c.Close())
}

func TestExecutor_ProviderDefaults(t *testing.T) {
	var options []map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Options map[string]interface{} `json:"options"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		options = append(options, body.Options)
		_, _ = io.WriteString(w, `{"model":"llama3.2","message":{"role":"assistant","content":"{\"hashtags\":[\"#coffee\"]}"},"done":true}`)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Provider.Name = "ollama"
	cfg.Provider.BaseURL = srv.URL
	cfg.Provider.Temperature = 0.3
	cfg.Provider.MaxTokens = 200

	var closers Closers
	defer closers.Close()
	p, err := Provider(context.Background(), cfg, zap.NewNop(), nil, &closers)
	require.NoError(t, err)
	exec := Executor(flows.Catalog(), p, cfg, zap.NewNop(), nil)

	raw := core.RawInput{"description": "a new coffee shop opening downtown"}
	_, err = exec.Run(context.Background(), "topic-hashtags", raw)
	require.NoError(t, err)
	_, err = exec.Run(context.Background(), "topic-hashtags", raw, executor.WithTemperature(0.9))
	require.NoError(t, err)

	require.Len(t, options, 2)
	assert.Equal(t, 0.3, options[0]["temperature"])
	assert.EqualValues(t, 200, options[0]["num_predict"])
	assert.Equal(t, 0.9, options[1]["temperature"])
	assert.EqualValues(t, 200, options[1]["num_predict"])
}
