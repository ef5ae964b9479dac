package parley

import "testing"

func TestSimpleCounterCountText(t *testing.T) {
	c := SimpleCounterForOpenAI()

	tests := []struct {
		name string
		in   string
		want int
	}{
		{"empty", "", 0},
		{"whitespace only", "   ", 0},
		{"one token", "abcd", 1},
		{"two tokens", "abcdefgh", 2},
		{"rounds up", "abcde", 2},
		{"word floor wins", "a b c d e f g h i j", 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.CountText(tt.in); got != tt.want {
				t.Errorf("CountText(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestSimpleCounterCountMessages(t *testing.T) {
	c := SimpleCounterForOpenAI()
	msgs := []FormattedMessage{
		{"role": "system", "content": "abcdefgh"},
		{"role": "user", "content": []map[string]any{{"text": "abcd"}}},
		{
			"role":    "assistant",
			"content": []map[string]any{{"text": ""}},
			"tool_calls": []map[string]any{{
				"id":   "c1",
				"type": "function",
				"function": map[string]any{
					"name":      "t",
					"arguments": `{"a":1}`,
				},
			}},
		},
	}

	got, err := c.Count(msgs)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	// 2 + 1 + 2 content/argument tokens plus 10 overhead per message.
	if want := 35; got != want {
		t.Errorf("Count() = %d, want %d", got, want)
	}
}

func TestSimpleCounterVariants(t *testing.T) {
	openai := SimpleCounterForOpenAI()
	if openai.Name() != "openai-simple" {
		t.Errorf("Name() = %q, want %q", openai.Name(), "openai-simple")
	}

	anthropic := SimpleCounterForAnthropic()
	if anthropic.Name() != "anthropic-simple" {
		t.Errorf("Name() = %q, want %q", anthropic.Name(), "anthropic-simple")
	}
	// 8 chars at 3.8 chars per token rounds up to 3.
	if got := anthropic.CountText("abcdefgh"); got != 3 {
		t.Errorf("CountText() = %d, want 3", got)
	}
}

func TestNewSimpleCounterClampsAverage(t *testing.T) {
	c := NewSimpleCounter("x", 0)
	if got := c.CountText("abcd"); got != 1 {
		t.Errorf("CountText() = %d, want 1 with default average", got)
	}
}

func TestTiktokenCounter(t *testing.T) {
	c, err := NewTiktokenCounter("gpt-4")
	if err != nil {
		t.Skipf("tiktoken encoding unavailable: %v", err)
	}
	if c.Name() != "gpt-4" {
		t.Errorf("Name() = %q, want %q", c.Name(), "gpt-4")
	}
	if got := c.CountText("hello world"); got <= 0 {
		t.Errorf("CountText() = %d, want > 0", got)
	}
	if got := c.CountText(""); got != 0 {
		t.Errorf("CountText(\"\") = %d, want 0", got)
	}

	count, err := c.Count([]FormattedMessage{
		{"role": "user", "content": "hello"},
	})
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	// At least the framing and priming tokens.
	if count < tiktokenMessageOverhead+tiktokenReplyPriming {
		t.Errorf("Count() = %d, want >= %d", count, tiktokenMessageOverhead+tiktokenReplyPriming)
	}
}
