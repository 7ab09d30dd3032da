package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Names lists the provider names accepted by FromConfig.
var Names = []string{"openai", "anthropic", "gemini", "ollama", "cerebras"}

// FromConfig builds the provider named by cfg.Name.
func FromConfig(ctx context.Context, cfg Config) (Provider, error) {
	var hc *http.Client
	if cfg.Timeout > 0 {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	var (
		p   Provider
		err error
	)
	switch strings.ToLower(cfg.Name) {
	case "openai":
		p, err = NewOpenAI(OpenAIConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model, HTTPClient: hc})
	case "cerebras":
		p, err = NewCerebras(CerebrasConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model, HTTPClient: hc})
	case "anthropic":
		p, err = NewAnthropic(AnthropicConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model, MaxTokens: cfg.MaxTokens, HTTPClient: hc})
	case "gemini":
		p, err = NewGemini(ctx, GeminiConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model, HTTPClient: hc})
	case "ollama":
		p = NewOllama(OllamaConfig{BaseURL: cfg.BaseURL, Model: cfg.Model, HTTPClient: hc})
	default:
		return nil, fmt.Errorf("unknown provider %q (want one of %s)", cfg.Name, strings.Join(Names, ", "))
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
