package dashscope

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nevindra/parley"
)

const (
	defaultBaseURL = "https://dashscope.aliyuncs.com/api/v1"
	generationPath = "/services/aigc/text-generation/generation"
)

// Provider implements parley.Model against the DashScope generation API.
// One instance is bound to one model id; it is safe for concurrent use.
type Provider struct {
	apiKey   string
	model    string
	baseURL  string
	client   *http.Client
	name     string
	defaults *parley.GenerateOptions
	logger   *slog.Logger
}

var _ parley.Model = (*Provider)(nil)

// New creates a DashScope streaming chat model for qwen-family models.
func New(apiKey, model string, opts ...ProviderOption) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		client:  &http.Client{},
		name:    "dashscope",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider name (default "dashscope").
func (p *Provider) Name() string { return p.name }

// Stream opens a streaming generation call and pushes one ChatResponse per
// SSE chunk into ch. It returns when the stream ends, the endpoint fails,
// or ctx is done. The channel stays open; the caller owns it.
func (p *Provider) Stream(ctx context.Context, req parley.ChatRequest, ch chan<- parley.ChatResponse) error {
	body := p.buildBody(req)
	start := time.Now()
	if p.logger != nil {
		p.logger.Debug("dashscope stream", "model", p.model, "messages", len(req.Messages))
	}

	resp, err := p.send(ctx, body)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &parley.ErrModel{Model: p.name, Message: fmt.Sprintf("send request: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return &parley.ErrHTTP{Status: resp.StatusCode, Body: string(raw)}
	}

	if err := streamChunks(ctx, resp.Body, ch, start); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// In-stream API errors arrive already typed; transport errors get
		// wrapped here.
		var modelErr *parley.ErrModel
		if errors.As(err, &modelErr) {
			return err
		}
		return &parley.ErrModel{Model: p.name, Message: fmt.Sprintf("read stream: %v", err)}
	}
	return nil
}

// buildBody assembles the input/parameters envelope. Formatted messages are
// already wire maps and pass through untouched.
func (p *Provider) buildBody(req parley.ChatRequest) generationBody {
	body := generationBody{
		Model: p.model,
		Input: input{Messages: req.Messages},
		Parameters: parameters{
			ResultFormat:      "message",
			IncrementalOutput: true,
		},
	}
	for _, s := range req.Tools {
		params := s.Parameters
		if len(params) == 0 {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		body.Parameters.Tools = append(body.Parameters.Tools, chatTool{
			Type: "function",
			Function: chatFunction{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  params,
			},
		})
	}

	opts := p.defaults.Merge(req.Options)
	if opts == nil {
		return body
	}
	body.Parameters.Temperature = opts.Temperature
	body.Parameters.TopP = opts.TopP
	body.Parameters.MaxTokens = opts.MaxTokens
	body.Parameters.EnableThinking = opts.EnableThinking
	return body
}

// send posts the body to the generation endpoint with SSE enabled.
func (p *Provider) send(ctx context.Context, body generationBody) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := p.baseURL + generationPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("X-DashScope-SSE", "enable")

	return p.client.Do(httpReq)
}
