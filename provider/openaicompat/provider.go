package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nevindra/parley"
)

// defaultBaseURL is used when New is given an empty base URL.
const defaultBaseURL = "https://api.openai.com/v1"

// Provider implements parley.Model for any OpenAI-compatible API. One
// instance is bound to one model id; it is safe for concurrent use.
type Provider struct {
	apiKey   string
	model    string
	baseURL  string
	client   *http.Client
	name     string
	headers  map[string]string
	defaults *parley.GenerateOptions
	logger   *slog.Logger
}

var _ parley.Model = (*Provider)(nil)

// New creates an OpenAI-compatible streaming chat model.
//
// baseURL is the API base (e.g. "https://api.openai.com/v1",
// "https://api.groq.com/openai/v1", "http://localhost:11434/v1"); empty
// selects the OpenAI endpoint. The /chat/completions path is appended
// automatically.
func New(apiKey, model, baseURL string, opts ...ProviderOption) *Provider {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	p := &Provider{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{},
		name:    "openai",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider name (default "openai", configurable via
// WithName).
func (p *Provider) Name() string { return p.name }

// Stream opens a streaming chat completion and pushes one ChatResponse per
// SSE chunk into ch. It returns when the stream ends, the endpoint fails,
// or ctx is done. The channel stays open; the caller owns it.
func (p *Provider) Stream(ctx context.Context, req parley.ChatRequest, ch chan<- parley.ChatResponse) error {
	body := p.buildBody(req)
	start := time.Now()

	resp, err := p.send(ctx, body)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &parley.ErrModel{Model: p.name, Message: fmt.Sprintf("send request: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return p.httpErr(resp)
	}

	if err := streamChunks(ctx, resp.Body, ch, start); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &parley.ErrModel{Model: p.name, Message: fmt.Sprintf("read stream: %v", err)}
	}
	return nil
}

// send marshals the request body and posts it to the chat completions
// endpoint.
func (p *Provider) send(ctx context.Context, body chatBody) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	for k, v := range p.headers {
		httpReq.Header.Set(k, v)
	}

	return p.client.Do(httpReq)
}

// httpErr reads the response body and returns it as an ErrHTTP.
func (p *Provider) httpErr(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return &parley.ErrHTTP{Status: resp.StatusCode, Body: string(body)}
}
