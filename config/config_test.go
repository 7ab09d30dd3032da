package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, "quill.yaml", `
server:
  addr: ":9090"
provider:
  name: anthropic
  model: claude-haiku-4-5
  api_key: sk-test
  timeout: 45s
executor:
  timeout: 30s
middleware:
  rate_limit: 60
  cache_ttl: 10m
catalog:
  dir: ./flows
analytics:
  store: memory
log:
  level: debug
  format: console
`)
	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "anthropic", cfg.Provider.Name)
	assert.Equal(t, 45*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Executor.Timeout)
	assert.Equal(t, 10*time.Minute, cfg.Middleware.CacheTTL)
	assert.Equal(t, time.Minute, cfg.Middleware.RateWindow)
	assert.Equal(t, "./flows", cfg.Catalog.Dir)
	assert.Equal(t, "quill:", cfg.Catalog.Redis.Prefix)
	require.NoError(t, cfg.Validate())

	logger, err := cfg.Log.NewLogger()
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestLoad_UnknownKey(t *testing.T) {
	path := writeFile(t, "quill.yaml", "server:\n  adress: \":1\"\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_Env(t *testing.T) {
	envFile := writeFile(t, "test.env", "QUILL_MODEL=from-dotenv\nGEMINI_API_KEY=g-key\n")
	t.Setenv("QUILL_PROVIDER", "gemini")
	t.Setenv("QUILL_TIMEOUT", "5s")
	t.Setenv("QUILL_RATE_LIMIT", "10")
	t.Setenv("QUILL_MODEL", "from-env")
	t.Setenv("QUILL_ANALYTICS_RETENTION", "720h")
	t.Cleanup(func() { _ = os.Unsetenv("GEMINI_API_KEY") })

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.Provider.Name)
	assert.Equal(t, "from-env", cfg.Provider.Model)
	assert.Equal(t, 5*time.Second, cfg.Executor.Timeout)
	assert.Equal(t, 10, cfg.Middleware.RateLimit)
	assert.Equal(t, "g-key", cfg.Provider.APIKey)
	assert.Equal(t, 720*time.Hour, cfg.Analytics.Retention)
	require.NoError(t, cfg.Validate())
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("QUILL_TIMEOUT", "soon")
	_, err := Load("", filepath.Join(t.TempDir(), "none.env"))
	assert.Error(t, err)
}

func TestLoad_Ollama(t *testing.T) {
	t.Setenv("QUILL_PROVIDER", "ollama")
	t.Setenv("OLLAMA_HOST", "http://gpu-box:11434")
	cfg, err := Load("", filepath.Join(t.TempDir(), "none.env"))
	require.NoError(t, err)
	assert.Equal(t, "http://gpu-box:11434", cfg.Provider.BaseURL)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no addr", func(c *Config) { c.Server.Addr = "" }},
		{"unknown provider", func(c *Config) { c.Provider.Name = "cohere" }},
		{"missing key", func(c *Config) { c.Provider.APIKey = "" }},
		{"temperature", func(c *Config) { c.Provider.Temperature = 3 }},
		{"threshold", func(c *Config) { c.Middleware.CircuitThreshold = 1.5 }},
		{"analytics store", func(c *Config) { c.Analytics.Store = "mongo" }},
		{"analytics dsn", func(c *Config) { c.Analytics.Store = "postgres" }},
		{"analytics retention", func(c *Config) { c.Analytics.Retention = -time.Hour }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			c.Provider.APIKey = "k"
			require.NoError(t, c.Validate())
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
