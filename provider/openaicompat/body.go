package openaicompat

import "github.com/nevindra/parley"

// buildBody converts a parley.ChatRequest into the chat completions body.
// Streaming is always on: the reply loop consumes chunks, and usage arrives
// in the final chunk via stream_options.
func (p *Provider) buildBody(req parley.ChatRequest) chatBody {
	body := chatBody{
		Model:         p.model,
		Messages:      req.Messages,
		Stream:        true,
		StreamOptions: &streamOptions{IncludeUsage: true},
	}
	if len(req.Tools) > 0 {
		body.Tools = buildTools(req.Tools)
	}

	opts := p.defaults.Merge(req.Options)
	if opts == nil {
		return body
	}
	body.Temperature = opts.Temperature
	body.TopP = opts.TopP
	body.MaxTokens = opts.MaxTokens
	body.FrequencyPenalty = opts.FrequencyPenalty
	body.PresencePenalty = opts.PresencePenalty
	if opts.EnableThinking != nil && p.logger != nil {
		p.logger.Warn("EnableThinking is not a chat completions knob, ignored",
			"provider", p.name)
	}
	return body
}

// buildTools wraps tool schemas in the OpenAI function-tool envelope.
func buildTools(schemas []parley.ToolSchema) []chatTool {
	out := make([]chatTool, 0, len(schemas))
	for _, s := range schemas {
		params := s.Parameters
		if len(params) == 0 {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, chatTool{
			Type: "function",
			Function: chatFunction{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
