package openaicompat

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nevindra/parley"
)

// buildSSE constructs a mock SSE stream from data lines.
func buildSSE(lines ...string) string {
	var sb strings.Builder
	for _, line := range lines {
		sb.WriteString("data: ")
		sb.WriteString(line)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// scan feeds an SSE body through streamChunks and collects the output.
func scan(t *testing.T, sse string) []parley.ChatResponse {
	t.Helper()
	ch := make(chan parley.ChatResponse, 16)
	errCh := make(chan error, 1)
	go func() {
		errCh <- streamChunks(context.Background(), strings.NewReader(sse), ch, time.Now())
		close(ch)
	}()
	var got []parley.ChatResponse
	for resp := range ch {
		got = append(got, resp)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("streamChunks returned error: %v", err)
	}
	return got
}

func TestStreamChunks_Text(t *testing.T) {
	got := scan(t, buildSSE(
		`{"id":"chatcmpl-1","choices":[{"index":0,"delta":{"role":"assistant","content":""}}]}`,
		`{"id":"chatcmpl-1","choices":[{"index":0,"delta":{"content":"Hello"}}]}`,
		`{"id":"chatcmpl-1","choices":[{"index":0,"delta":{"content":" world"}}]}`,
		`{"id":"chatcmpl-1","choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":3,"total_tokens":8}}`,
		"[DONE]",
	))

	// Empty role announcement dropped: two text chunks, one usage chunk.
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(got))
	}
	if got[0].ID != "chatcmpl-1" {
		t.Errorf("expected chunk id to carry through, got %q", got[0].ID)
	}
	if got[0].Content[0].(*parley.TextBlock).Text != "Hello" {
		t.Errorf("unexpected first delta: %+v", got[0].Content[0])
	}
	if got[2].Usage == nil || got[2].Usage.InputTokens != 5 || got[2].Usage.OutputTokens != 3 {
		t.Errorf("unexpected usage: %+v", got[2].Usage)
	}
}

func TestStreamChunks_Reasoning(t *testing.T) {
	got := scan(t, buildSSE(
		`{"id":"chatcmpl-2","choices":[{"index":0,"delta":{"reasoning_content":"Let me think."}}]}`,
		`{"id":"chatcmpl-2","choices":[{"index":0,"delta":{"reasoning_content":" Done.","content":"Answer"}}]}`,
		"[DONE]",
	))

	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(got))
	}
	if _, ok := got[0].Content[0].(*parley.ThinkingBlock); !ok {
		t.Fatalf("expected ThinkingBlock, got %T", got[0].Content[0])
	}
	// Reasoning precedes answer text within one chunk.
	if len(got[1].Content) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(got[1].Content))
	}
	if _, ok := got[1].Content[0].(*parley.ThinkingBlock); !ok {
		t.Errorf("expected thinking first, got %T", got[1].Content[0])
	}
	if tb, ok := got[1].Content[1].(*parley.TextBlock); !ok || tb.Text != "Answer" {
		t.Errorf("expected text block 'Answer', got %+v", got[1].Content[1])
	}
}

func TestStreamChunks_ToolCallFragments(t *testing.T) {
	got := scan(t, buildSSE(
		`{"id":"chatcmpl-3","choices":[{"index":0,"delta":{"role":"assistant","tool_calls":[{"index":0,"id":"call_abc","type":"function","function":{"name":"get_weather","arguments":""}}]}}]}`,
		`{"id":"chatcmpl-3","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"city\""}}]}}]}`,
		`{"id":"chatcmpl-3","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":":\"London\"}"}}]}}]}`,
		"[DONE]",
	))

	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(got))
	}

	first := got[0].Content[0].(*parley.ToolUseBlock)
	if first.ID != "call_abc" || first.Name != "get_weather" || first.Raw != "" {
		t.Errorf("unexpected first fragment: %+v", first)
	}
	for i, want := range []string{`{"city"`, `:"London"}`} {
		frag := got[i+1].Content[0].(*parley.ToolUseBlock)
		if frag.Name != parley.FragmentName {
			t.Errorf("fragment %d: expected placeholder name, got %q", i, frag.Name)
		}
		if frag.Raw != want {
			t.Errorf("fragment %d: expected raw %q, got %q", i, want, frag.Raw)
		}
	}
}

func TestStreamChunks_CompleteCallParsesInput(t *testing.T) {
	got := scan(t, buildSSE(
		`{"id":"chatcmpl-4","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"echo","arguments":"{\"text\":\"hi\"}"}}]}}]}`,
		"[DONE]",
	))

	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(got))
	}
	call := got[0].Content[0].(*parley.ToolUseBlock)
	if call.Input == nil || call.Input["text"] != "hi" {
		t.Errorf("expected parsed input, got %v", call.Input)
	}
	if call.Raw != `{"text":"hi"}` {
		t.Errorf("raw arguments must still carry through, got %q", call.Raw)
	}
}

func TestStreamChunks_ParallelCallsShareChunk(t *testing.T) {
	got := scan(t, buildSSE(
		`{"id":"chatcmpl-5","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_a","function":{"name":"echo","arguments":"{\"text\":\"A\"}"}},{"index":1,"id":"call_b","function":{"name":"echo","arguments":"{\"text\":\"B\"}"}}]}}]}`,
		"[DONE]",
	))

	if len(got) != 1 || len(got[0].Content) != 2 {
		t.Fatalf("expected 1 chunk with 2 blocks, got %+v", got)
	}
	a := got[0].Content[0].(*parley.ToolUseBlock)
	b := got[0].Content[1].(*parley.ToolUseBlock)
	if a.ID != "call_a" || b.ID != "call_b" {
		t.Errorf("expected both calls in chunk order, got %q then %q", a.ID, b.ID)
	}
}

func TestStreamChunks_SkipsMalformedAndStopsAtDone(t *testing.T) {
	got := scan(t, buildSSE(
		`{"id":"chatcmpl-6","choices":[{"index":0,"delta":{"content":"keep"}}]}`,
		`{not json`,
		"[DONE]",
		`{"id":"chatcmpl-6","choices":[{"index":0,"delta":{"content":"after done"}}]}`,
	))

	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(got))
	}
	if got[0].Content[0].(*parley.TextBlock).Text != "keep" {
		t.Errorf("unexpected chunk: %+v", got[0])
	}
}

func TestStreamChunks_IgnoresNonDataLines(t *testing.T) {
	sse := ": comment\n\nevent: ping\n\n" + buildSSE(
		`{"id":"chatcmpl-7","choices":[{"index":0,"delta":{"content":"ok"}}]}`,
		"[DONE]",
	)
	got := scan(t, sse)
	if len(got) != 1 || got[0].Content[0].(*parley.TextBlock).Text != "ok" {
		t.Errorf("unexpected chunks: %+v", got)
	}
}

func TestStreamChunks_UsageOnlyChunk(t *testing.T) {
	got := scan(t, buildSSE(
		`{"id":"chatcmpl-8","choices":[],"usage":{"prompt_tokens":7,"completion_tokens":0,"total_tokens":7}}`,
		"[DONE]",
	))
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(got))
	}
	if len(got[0].Content) != 0 || got[0].Usage == nil || got[0].Usage.InputTokens != 7 {
		t.Errorf("unexpected usage chunk: %+v", got[0])
	}
}
