// Package openaicompat adapts any OpenAI-compatible chat completions API as
// a parley.Model.
//
// Works with OpenAI, OpenRouter, Groq, Together, Fireworks, DeepSeek,
// Mistral, Ollama, vLLM, LM Studio, Azure OpenAI, and any other endpoint
// that implements the chat completions wire format.
package openaicompat

import "github.com/nevindra/parley"

// chatBody is the chat completions request body. Formatted messages are
// already in wire shape and marshal as-is.
type chatBody struct {
	Model            string                    `json:"model"`
	Messages         []parley.FormattedMessage `json:"messages"`
	Tools            []chatTool                `json:"tools,omitempty"`
	Stream           bool                      `json:"stream"`
	StreamOptions    *streamOptions            `json:"stream_options,omitempty"`
	Temperature      *float64                  `json:"temperature,omitempty"`
	TopP             *float64                  `json:"top_p,omitempty"`
	MaxTokens        *int                      `json:"max_tokens,omitempty"`
	FrequencyPenalty *float64                  `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64                  `json:"presence_penalty,omitempty"`
}

// streamOptions asks the endpoint to append a usage chunk to the stream.
type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// chatTool wraps a function definition in the OpenAI tool format.
type chatTool struct {
	Type     string       `json:"type"` // always "function"
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// chatChunk is one SSE data payload. Streaming responses carry deltas;
// the final chunk of a stream_options request carries only usage.
type chatChunk struct {
	ID      string       `json:"id"`
	Choices []chatChoice `json:"choices"`
	Usage   *tokenUsage  `json:"usage"`
}

type chatChoice struct {
	Delta        *chatDelta `json:"delta"`
	FinishReason string     `json:"finish_reason"`
}

// chatDelta is the incremental message content within a streaming choice.
// Reasoning models surface their thinking as reasoning_content.
type chatDelta struct {
	Content          string          `json:"content"`
	ReasoningContent string          `json:"reasoning_content"`
	ToolCalls        []deltaToolCall `json:"tool_calls"`
}

// deltaToolCall is a tool-call fragment. The first fragment of a call
// carries id and function.name; continuations carry only more argument
// characters, with Index pointing at the call they extend.
type deltaToolCall struct {
	Index    int           `json:"index"`
	ID       string        `json:"id"`
	Function deltaFunction `json:"function"`
}

type deltaFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type tokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
