// Package resolve creates chat models from provider-agnostic configuration,
// so callers can pick a backend by name at runtime instead of importing
// provider packages themselves.
package resolve

import (
	"fmt"

	"github.com/nevindra/parley"
	"github.com/nevindra/parley/provider/dashscope"
	"github.com/nevindra/parley/provider/openaicompat"
)

// Config holds provider-agnostic configuration for creating a chat Model.
type Config struct {
	Provider string // "openai", "groq", "deepseek", "together", "mistral", "ollama", "dashscope"
	APIKey   string
	Model    string
	BaseURL  string // optional; auto-filled for known providers

	// Common cross-provider options (nil = use provider default).
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	Thinking    *bool
}

// Model creates a parley.Model from a provider-agnostic Config.
func Model(cfg Config) (parley.Model, error) {
	switch cfg.Provider {
	case "dashscope":
		return dashscopeModel(cfg), nil
	case "openai", "groq", "deepseek", "together", "mistral", "ollama":
		return openaiCompatModel(cfg), nil
	default:
		return nil, fmt.Errorf("resolve: unknown provider %q", cfg.Provider)
	}
}

func dashscopeModel(cfg Config) parley.Model {
	opts := []dashscope.ProviderOption{
		dashscope.WithBaseURL(cfg.BaseURL),
	}
	if defaults, ok := cfg.defaults(); ok {
		opts = append(opts, dashscope.WithDefaults(defaults))
	}
	return dashscope.New(cfg.APIKey, cfg.Model, opts...)
}

func openaiCompatModel(cfg Config) parley.Model {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL(cfg.Provider)
	}
	opts := []openaicompat.ProviderOption{
		openaicompat.WithName(cfg.Provider),
	}
	if defaults, ok := cfg.defaults(); ok {
		opts = append(opts, openaicompat.WithDefaults(defaults))
	}
	return openaicompat.New(cfg.APIKey, cfg.Model, baseURL, opts...)
}

// defaults collapses the cross-provider knobs into GenerateOptions, and
// reports whether any were set.
func (cfg Config) defaults() (parley.GenerateOptions, bool) {
	opts := parley.GenerateOptions{
		Temperature:    cfg.Temperature,
		TopP:           cfg.TopP,
		MaxTokens:      cfg.MaxTokens,
		EnableThinking: cfg.Thinking,
	}
	set := cfg.Temperature != nil || cfg.TopP != nil || cfg.MaxTokens != nil || cfg.Thinking != nil
	return opts, set
}

func defaultBaseURL(provider string) string {
	switch provider {
	case "openai":
		return "https://api.openai.com/v1"
	case "groq":
		return "https://api.groq.com/openai/v1"
	case "deepseek":
		return "https://api.deepseek.com/v1"
	case "together":
		return "https://api.together.xyz/v1"
	case "mistral":
		return "https://api.mistral.ai/v1"
	case "ollama":
		return "http://localhost:11434/v1"
	default:
		return ""
	}
}
