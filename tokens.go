package parley

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates the token footprint of formatted wire messages so
// formatters can keep history within a model's context window.
type TokenCounter interface {
	Count(msgs []FormattedMessage) (int, error)
	CountText(s string) int
	Name() string
}

// simpleMessageOverhead approximates per-message wire framing (role,
// separators, metadata).
const simpleMessageOverhead = 10

// SimpleCounter estimates tokens from character counts with a
// whitespace-word floor. It needs no vocabulary data, so it works offline
// and for providers without a published tokenizer.
type SimpleCounter struct {
	name        string
	avgTokenLen float64
}

var _ TokenCounter = (*SimpleCounter)(nil)

// NewSimpleCounter builds a counter assuming avgTokenLen characters per
// token. Values at or below zero fall back to 4.0, the usual figure for
// English text.
func NewSimpleCounter(name string, avgTokenLen float64) *SimpleCounter {
	if avgTokenLen <= 0 {
		avgTokenLen = 4.0
	}
	return &SimpleCounter{name: name, avgTokenLen: avgTokenLen}
}

// SimpleCounterForOpenAI returns a counter tuned for OpenAI-style tokenizers.
func SimpleCounterForOpenAI() *SimpleCounter {
	return NewSimpleCounter("openai-simple", 4.0)
}

// SimpleCounterForAnthropic returns a counter tuned for Anthropic-style
// tokenizers, which pack slightly fewer characters per token.
func SimpleCounterForAnthropic() *SimpleCounter {
	return NewSimpleCounter("anthropic-simple", 3.8)
}

func (c *SimpleCounter) Count(msgs []FormattedMessage) (int, error) {
	total := 0
	for _, m := range msgs {
		if s, ok := m["content"].(string); ok {
			total += c.CountText(s)
		} else if entries, ok := contentEntries(m["content"]); ok {
			for _, entry := range entries {
				if text, ok := entry["text"].(string); ok {
					total += c.CountText(text)
				}
			}
		}
		for _, args := range toolCallArguments(m) {
			total += c.CountText(args)
		}
		total += simpleMessageOverhead
	}
	return total, nil
}

func (c *SimpleCounter) CountText(s string) int {
	if strings.TrimSpace(s) == "" {
		return 0
	}
	approx := int(math.Ceil(float64(len(s)) / c.avgTokenLen))
	if words := len(strings.Fields(s)); words > approx {
		return words
	}
	return approx
}

func (c *SimpleCounter) Name() string { return c.name }

const (
	tiktokenMessageOverhead = 3
	tiktokenReplyPriming    = 3
)

// TiktokenCounter counts tokens with a real BPE vocabulary via tiktoken.
// Message accounting follows the OpenAI cookbook: a few framing tokens per
// message plus priming tokens for the reply.
type TiktokenCounter struct {
	name     string
	encoding *tiktoken.Tiktoken
}

var _ TokenCounter = (*TiktokenCounter)(nil)

var (
	encodingCache   = make(map[string]*tiktoken.Tiktoken)
	encodingCacheMu sync.Mutex
)

// NewTiktokenCounter builds a counter for the given model, falling back to
// the cl100k_base encoding when tiktoken does not know the model. Encodings
// are cached per model because initialization loads the whole vocabulary.
func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	enc, err := encodingForModel(model)
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{name: model, encoding: enc}, nil
}

func encodingForModel(model string) (*tiktoken.Tiktoken, error) {
	encodingCacheMu.Lock()
	defer encodingCacheMu.Unlock()

	if enc, ok := encodingCache[model]; ok {
		return enc, nil
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get encoding for %s: %w", model, err)
		}
	}
	encodingCache[model] = enc
	return enc, nil
}

func (c *TiktokenCounter) Count(msgs []FormattedMessage) (int, error) {
	total := 0
	for _, m := range msgs {
		total += tiktokenMessageOverhead
		total += c.CountText(m.Role())
		total += c.CountText(m.ContentString())
		for _, args := range toolCallArguments(m) {
			total += c.CountText(args)
		}
	}
	total += tiktokenReplyPriming
	return total, nil
}

func (c *TiktokenCounter) CountText(s string) int {
	if s == "" {
		return 0
	}
	return len(c.encoding.Encode(s, nil, nil))
}

func (c *TiktokenCounter) Name() string { return c.name }

// toolCallArguments extracts the serialized argument strings of every tool
// call on a wire message.
func toolCallArguments(m FormattedMessage) []string {
	var calls []map[string]any
	switch v := m["tool_calls"].(type) {
	case []map[string]any:
		calls = v
	case []any:
		for _, item := range v {
			if entry, ok := item.(map[string]any); ok {
				calls = append(calls, entry)
			}
		}
	}
	var out []string
	for _, call := range calls {
		fn, ok := call["function"].(map[string]any)
		if !ok {
			continue
		}
		if args, ok := fn["arguments"].(string); ok {
			out = append(out, args)
		}
	}
	return out
}
