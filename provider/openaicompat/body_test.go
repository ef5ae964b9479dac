package openaicompat

import (
	"encoding/json"
	"testing"

	"github.com/nevindra/parley"
)

func f64(v float64) *float64 { return &v }
func itp(v int) *int         { return &v }

func TestBuildBody_MessagesPassThrough(t *testing.T) {
	p := New("key", "gpt-4o", "")
	msgs := []parley.FormattedMessage{
		{"role": "system", "content": "be brief"},
		{"role": "user", "content": "Hi"},
		{"role": "assistant", "content": "", "tool_calls": []map[string]any{{
			"id": "call_1", "type": "function",
			"function": map[string]any{"name": "echo", "arguments": "{}"},
		}}},
		{"role": "tool", "content": "ok", "tool_call_id": "call_1"},
	}

	body := p.buildBody(parley.ChatRequest{Messages: msgs})

	if body.Model != "gpt-4o" {
		t.Errorf("expected model gpt-4o, got %q", body.Model)
	}
	if !body.Stream || body.StreamOptions == nil || !body.StreamOptions.IncludeUsage {
		t.Error("expected streaming with usage in the final chunk")
	}
	if len(body.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(body.Messages))
	}

	// Formatter output marshals without reshaping.
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	var round struct {
		Messages []map[string]any `json:"messages"`
	}
	if err := json.Unmarshal(raw, &round); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if round.Messages[0]["role"] != "system" || round.Messages[0]["content"] != "be brief" {
		t.Errorf("system message reshaped: %v", round.Messages[0])
	}
	if round.Messages[3]["tool_call_id"] != "call_1" {
		t.Errorf("tool message reshaped: %v", round.Messages[3])
	}
}

func TestBuildBody_WrapsTools(t *testing.T) {
	p := New("key", "gpt-4o", "")
	body := p.buildBody(parley.ChatRequest{
		Tools: []parley.ToolSchema{
			{
				Name:        "get_weather",
				Description: "Get weather",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{"city": map[string]any{"type": "string"}},
				},
			},
			{Name: "noop", Description: "No arguments"},
		},
	})

	if len(body.Tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(body.Tools))
	}
	if body.Tools[0].Type != "function" || body.Tools[0].Function.Name != "get_weather" {
		t.Errorf("unexpected tool envelope: %+v", body.Tools[0])
	}
	// Schemaless tools still advertise an object schema.
	params := body.Tools[1].Function.Parameters
	if params["type"] != "object" {
		t.Errorf("expected default object schema, got %v", params)
	}
}

func TestBuildBody_OptionsOverrideDefaults(t *testing.T) {
	p := New("key", "gpt-4o", "", WithDefaults(parley.GenerateOptions{
		Temperature: f64(0.7),
		MaxTokens:   itp(2048),
	}))

	body := p.buildBody(parley.ChatRequest{
		Options: &parley.GenerateOptions{Temperature: f64(0.2), TopP: f64(0.9)},
	})

	if body.Temperature == nil || *body.Temperature != 0.2 {
		t.Errorf("expected request temperature to win, got %v", body.Temperature)
	}
	if body.TopP == nil || *body.TopP != 0.9 {
		t.Errorf("expected top_p from request, got %v", body.TopP)
	}
	if body.MaxTokens == nil || *body.MaxTokens != 2048 {
		t.Errorf("expected max_tokens from defaults, got %v", body.MaxTokens)
	}
}

func TestBuildBody_NoOptions(t *testing.T) {
	p := New("key", "gpt-4o", "")
	body := p.buildBody(parley.ChatRequest{})

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	for _, key := range []string{"temperature", "top_p", "max_tokens", "tools"} {
		if _, present := fields[key]; present {
			t.Errorf("expected %s to be omitted, body: %s", key, raw)
		}
	}
}
