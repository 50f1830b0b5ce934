package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Config selects and configures one provider.
type Config struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
}

// New returns the configured Completer. The value also implements ToolRunner
// when the provider supports tool calling.
func New(ctx context.Context, cfg Config) (Completer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic api key is required")
		}
		return NewAnthropicClient(cfg.APIKey, cfg.Model, cfg.BaseURL), nil
	case ProviderOpenAI:
		c, err := NewOpenAIClient(OpenAIConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case ProviderGemini:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini api key is required")
		}
		c, err := NewGeminiClient(ctx, cfg.APIKey, cfg.Model, cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
