package openaicompat

import (
	"log/slog"
	"net/http"

	"github.com/nevindra/parley"
)

// ProviderOption configures a Provider instance.
type ProviderOption func(*Provider)

// WithName sets the name returned by Name() (default "openai"). Use it to
// distinguish endpoints in logs and traces when several providers share the
// wire format.
func WithName(name string) ProviderOption {
	return func(p *Provider) { p.name = name }
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

// WithHeader adds a header to every request, e.g. OpenRouter's HTTP-Referer
// or an Azure api-key. Repeat the option for multiple headers.
func WithHeader(key, value string) ProviderOption {
	return func(p *Provider) {
		if p.headers == nil {
			p.headers = make(map[string]string)
		}
		p.headers[key] = value
	}
}

// WithDefaults sets generation defaults applied to every request. Non-nil
// fields of a request's own options override them.
func WithDefaults(opts parley.GenerateOptions) ProviderOption {
	return func(p *Provider) { p.defaults = &opts }
}
