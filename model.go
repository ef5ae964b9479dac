package parley

import "context"

// GenerateOptions tunes a single model call. Nil fields fall back to the
// provider's defaults.
type GenerateOptions struct {
	Temperature      *float64
	TopP             *float64
	MaxTokens        *int
	FrequencyPenalty *float64
	PresencePenalty  *float64
	// EnableThinking asks the provider for reasoning commentary. Thinking is
	// a stream-only capability; adapters keep streaming on when it is set.
	EnableThinking *bool
}

// Merge overlays override on o: non-nil fields of override win, the rest
// keep o's values. Either side may be nil; neither is mutated.
func (o *GenerateOptions) Merge(override *GenerateOptions) *GenerateOptions {
	if o == nil {
		return override
	}
	if override == nil {
		return o
	}
	out := *o
	if override.Temperature != nil {
		out.Temperature = override.Temperature
	}
	if override.TopP != nil {
		out.TopP = override.TopP
	}
	if override.MaxTokens != nil {
		out.MaxTokens = override.MaxTokens
	}
	if override.FrequencyPenalty != nil {
		out.FrequencyPenalty = override.FrequencyPenalty
	}
	if override.PresencePenalty != nil {
		out.PresencePenalty = override.PresencePenalty
	}
	if override.EnableThinking != nil {
		out.EnableThinking = override.EnableThinking
	}
	return &out
}

// ChatUsage reports token counts and wall time for one model call.
type ChatUsage struct {
	InputTokens  int
	OutputTokens int
	// Duration is wall-clock seconds for the call.
	Duration float64
}

// ChatRequest is what a model adapter sends to its provider: formatted wire
// messages, the schemas of the tools the model may call, and knobs.
type ChatRequest struct {
	Messages []FormattedMessage
	Tools    []ToolSchema
	Options  *GenerateOptions
}

// ChatResponse is one unit of model output. A streaming call produces a
// finite sequence of these; each carries the content blocks that arrived
// since the previous chunk. Usage, when present, carries the totals known so
// far; the last non-nil value wins.
type ChatResponse struct {
	ID      string
	Content []ContentBlock
	Usage   *ChatUsage
}

// Model adapts one LLM provider. Stream opens a streaming call, pushes
// chunks to ch in provider order, and returns when the stream ends or ctx is
// done. Implementations must not close ch; the caller owns it.
type Model interface {
	Name() string
	Stream(ctx context.Context, req ChatRequest, ch chan<- ChatResponse) error
}
