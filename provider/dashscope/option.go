package dashscope

import (
	"log/slog"
	"net/http"

	"github.com/nevindra/parley"
)

// ProviderOption configures a Provider instance.
type ProviderOption func(*Provider)

// WithName sets the name returned by Name() (default "dashscope").
func WithName(name string) ProviderOption {
	return func(p *Provider) { p.name = name }
}

// WithBaseURL points the provider at a different API base, e.g. the
// Singapore region endpoint.
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		if baseURL != "" {
			p.baseURL = baseURL
		}
	}
}

// WithHTTPClient sets a custom HTTP client (e.g. for timeouts or proxies).
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *Provider) { p.client = c }
}

// WithLogger sets the logger for request diagnostics. Without one the
// provider stays silent.
func WithLogger(l *slog.Logger) ProviderOption {
	return func(p *Provider) { p.logger = l }
}

// WithDefaults sets generation defaults applied to every request. Non-nil
// fields of a request's own options override them. EnableThinking here turns
// on reasoning output for qwen thinking models.
func WithDefaults(opts parley.GenerateOptions) ProviderOption {
	return func(p *Provider) { p.defaults = &opts }
}
