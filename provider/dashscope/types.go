// Package dashscope adapts Alibaba Cloud's DashScope text-generation API as
// a parley.Model. It speaks the native wire format (input/parameters body,
// X-DashScope-SSE streaming), not the OpenAI-compatible shim, so reasoning
// content and incremental tool calls come through with full fidelity.
package dashscope

import "github.com/nevindra/parley"

// generationBody is the text-generation request. Messages travel under
// input, knobs under parameters.
type generationBody struct {
	Model      string     `json:"model"`
	Input      input      `json:"input"`
	Parameters parameters `json:"parameters"`
}

type input struct {
	Messages []parley.FormattedMessage `json:"messages"`
}

// parameters is the generation knob set. result_format is always "message"
// and incremental_output always true: the adapter only streams, and thinking
// models reject non-incremental output anyway.
type parameters struct {
	ResultFormat      string     `json:"result_format"`
	IncrementalOutput bool       `json:"incremental_output"`
	Temperature       *float64   `json:"temperature,omitempty"`
	TopP              *float64   `json:"top_p,omitempty"`
	MaxTokens         *int       `json:"max_tokens,omitempty"`
	EnableThinking    *bool      `json:"enable_thinking,omitempty"`
	Tools             []chatTool `json:"tools,omitempty"`
}

type chatTool struct {
	Type     string       `json:"type"` // always "function"
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// generationChunk is one SSE data payload. Error responses reuse the shape
// with code and message set.
type generationChunk struct {
	RequestID string      `json:"request_id"`
	Output    *output     `json:"output"`
	Usage     *tokenUsage `json:"usage"`
	Code      string      `json:"code"`
	Message   string      `json:"message"`
}

// output carries either plain text (result_format "text") or message
// choices (result_format "message").
type output struct {
	Text    string   `json:"text"`
	Choices []choice `json:"choices"`
}

type choice struct {
	FinishReason string        `json:"finish_reason"`
	Message      *chunkMessage `json:"message"`
}

type chunkMessage struct {
	Role             string          `json:"role"`
	Content          string          `json:"content"`
	ReasoningContent string          `json:"reasoning_content"`
	ToolCalls        []deltaToolCall `json:"tool_calls"`
}

// deltaToolCall is a tool-call fragment. The first fragment of a call
// carries id and function.name; continuations carry only more argument
// characters.
type deltaToolCall struct {
	Index    int           `json:"index"`
	ID       string        `json:"id"`
	Type     string        `json:"type"`
	Function deltaFunction `json:"function"`
}

type deltaFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type tokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}
