// Package config loads quill settings from a YAML file, a .env file and the
// environment, in that order of increasing precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/klejdi94/quill/provider"
)

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Provider   provider.Config  `yaml:"provider"`
	Executor   ExecutorConfig   `yaml:"executor"`
	Middleware MiddlewareConfig `yaml:"middleware"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Analytics  AnalyticsConfig  `yaml:"analytics"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ExecutorConfig configures flow runs.
type ExecutorConfig struct {
	// Timeout bounds each provider call; zero means none.
	Timeout time.Duration `yaml:"timeout"`
}

// MiddlewareConfig selects provider middlewares. Zero values disable each one.
type MiddlewareConfig struct {
	LogCalls         bool          `yaml:"log_calls"`
	Metrics          bool          `yaml:"metrics"`
	RateLimit        int           `yaml:"rate_limit"`
	RateWindow       time.Duration `yaml:"rate_window"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
	CacheRedis       string        `yaml:"cache_redis"`
	CircuitThreshold float64       `yaml:"circuit_threshold"`
	CircuitTimeout   time.Duration `yaml:"circuit_timeout"`
	Retries          int           `yaml:"retries"`
}

// CatalogConfig lists the sources flows are loaded from. Built-in flows come
// first; each configured store may override them by name.
type CatalogConfig struct {
	DisableBuiltin bool           `yaml:"disable_builtin"`
	Dir            string         `yaml:"dir"`
	Redis          RedisSource    `yaml:"redis"`
	Postgres       PostgresSource `yaml:"postgres"`
	S3             S3Source       `yaml:"s3"`
}

// RedisSource locates flows in Redis.
type RedisSource struct {
	Addr   string `yaml:"addr"`
	Prefix string `yaml:"prefix"`
}

// PostgresSource locates flows in a PostgreSQL table.
type PostgresSource struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// S3Source locates flows in an S3 bucket.
type S3Source struct {
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// AnalyticsConfig selects where run records go. Listen and Retention are
// only read by analytics-server.
type AnalyticsConfig struct {
	Store      string        `yaml:"store"` // "", memory, postgres, redis, http
	DSN        string        `yaml:"dsn"`
	Table      string        `yaml:"table"`
	Redis      string        `yaml:"redis"`
	RedisKey   string        `yaml:"redis_key"`
	URL        string        `yaml:"url"`
	MaxRecords int           `yaml:"max_records"`
	Listen     string        `yaml:"listen"`
	Retention  time.Duration `yaml:"retention"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Provider: provider.Config{Name: "openai"},
		Middleware: MiddlewareConfig{
			LogCalls:       true,
			Metrics:        true,
			RateWindow:     time.Minute,
			CircuitTimeout: 30 * time.Second,
		},
		Catalog:   CatalogConfig{Redis: RedisSource{Prefix: "quill:"}, Postgres: PostgresSource{Table: "flows"}},
		Analytics: AnalyticsConfig{Table: "flow_runs", MaxRecords: 100000, Listen: ":8081"},
		Log:       LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads path (optional), then .env files, then the environment.
// Missing env files are ignored; a missing config file is an error.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// godotenv never overrides variables that are already set
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config %s: %w", f, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// apiKeyEnv maps provider names to the variables holding their keys.
var apiKeyEnv = map[string][]string{
	"openai":    {"OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_API_KEY"},
	"gemini":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"cerebras":  {"CEREBRAS_API_KEY"},
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("config: %s: %w", key, err)
			}
			*dst = d
		}
		return nil
	}

	str("QUILL_ADDR", &c.Server.Addr)
	str("QUILL_PROVIDER", &c.Provider.Name)
	str("QUILL_MODEL", &c.Provider.Model)
	str("QUILL_BASE_URL", &c.Provider.BaseURL)
	str("QUILL_API_KEY", &c.Provider.APIKey)
	str("QUILL_LOG_LEVEL", &c.Log.Level)
	str("QUILL_LOG_FORMAT", &c.Log.Format)
	str("QUILL_CATALOG_DIR", &c.Catalog.Dir)
	str("QUILL_CATALOG_REDIS", &c.Catalog.Redis.Addr)
	str("QUILL_CATALOG_DSN", &c.Catalog.Postgres.DSN)
	str("QUILL_CATALOG_BUCKET", &c.Catalog.S3.Bucket)
	str("QUILL_ANALYTICS_STORE", &c.Analytics.Store)
	str("QUILL_ANALYTICS_DSN", &c.Analytics.DSN)
	str("QUILL_ANALYTICS_REDIS", &c.Analytics.Redis)
	str("QUILL_ANALYTICS_URL", &c.Analytics.URL)
	str("QUILL_ANALYTICS_LISTEN", &c.Analytics.Listen)
	if err := dur("QUILL_TIMEOUT", &c.Executor.Timeout); err != nil {
		return err
	}
	if err := dur("QUILL_ANALYTICS_RETENTION", &c.Analytics.Retention); err != nil {
		return err
	}
	if v, ok := lookup("QUILL_RATE_LIMIT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: QUILL_RATE_LIMIT: %w", err)
		}
		c.Middleware.RateLimit = n
	}

	name := strings.ToLower(c.Provider.Name)
	if c.Provider.APIKey == "" {
		for _, key := range apiKeyEnv[name] {
			if v, ok := lookup(key); ok && v != "" {
				c.Provider.APIKey = v
				break
			}
		}
	}
	if name == "ollama" && c.Provider.BaseURL == "" {
		str("OLLAMA_HOST", &c.Provider.BaseURL)
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config: server.addr is required")
	}
	if !slices.Contains(provider.Names, strings.ToLower(c.Provider.Name)) {
		return fmt.Errorf("config: provider.name %q is not one of %s", c.Provider.Name, strings.Join(provider.Names, ", "))
	}
	if _, ok := apiKeyEnv[strings.ToLower(c.Provider.Name)]; ok && c.Provider.APIKey == "" {
		return fmt.Errorf("config: provider %s needs an API key", c.Provider.Name)
	}
	if c.Provider.Temperature < 0 || c.Provider.Temperature > 2 {
		return fmt.Errorf("config: provider.temperature must be between 0 and 2")
	}
	if c.Executor.Timeout < 0 {
		return fmt.Errorf("config: executor.timeout must not be negative")
	}
	if c.Middleware.RateLimit < 0 || c.Middleware.Retries < 0 {
		return fmt.Errorf("config: middleware limits must not be negative")
	}
	if c.Middleware.CircuitThreshold < 0 || c.Middleware.CircuitThreshold > 1 {
		return fmt.Errorf("config: middleware.circuit_threshold must be between 0 and 1")
	}
	if err := c.Analytics.Validate(); err != nil {
		return err
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("config: log.format must be json or console")
	}
	return nil
}

// Validate checks the analytics settings on their own; analytics-server needs
// no provider configuration.
func (a AnalyticsConfig) Validate() error {
	if a.Retention < 0 {
		return fmt.Errorf("config: analytics.retention must not be negative")
	}
	switch a.Store {
	case "", "memory":
	case "postgres":
		if a.DSN == "" {
			return fmt.Errorf("config: analytics.dsn is required for the postgres store")
		}
	case "redis":
		if a.Redis == "" {
			return fmt.Errorf("config: analytics.redis is required for the redis store")
		}
	case "http":
		if a.URL == "" {
			return fmt.Errorf("config: analytics.url is required for the http store")
		}
	default:
		return fmt.Errorf("config: unknown analytics.store %q", a.Store)
	}
	return nil
}
