package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/nevindra/parley"
)

// streamChunks reads an SSE stream from r and pushes one parley.ChatResponse
// per data chunk that carries content or usage. start anchors the wall-clock
// duration reported with usage.
//
// SSE format expected:
//
//	data: {"id":"...","choices":[...]}\n
//	data: [DONE]\n
func streamChunks(ctx context.Context, r io.Reader, ch chan<- parley.ChatResponse, start time.Time) error {
	scanner := bufio.NewScanner(r)
	// Increase buffer for large SSE payloads.
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		// SSE lines that carry data start with "data: ".
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		// End-of-stream sentinel.
		if data == "[DONE]" {
			break
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip malformed chunks.
			continue
		}

		resp := parley.ChatResponse{
			ID:      chunk.ID,
			Content: chunkBlocks(&chunk),
		}
		if chunk.Usage != nil {
			resp.Usage = &parley.ChatUsage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
				Duration:     time.Since(start).Seconds(),
			}
		}
		if len(resp.Content) == 0 && resp.Usage == nil {
			continue
		}

		select {
		case ch <- resp:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}

// chunkBlocks converts a chunk's first-choice delta into content blocks:
// reasoning text, answer text, then tool-call fragments, in that order.
func chunkBlocks(chunk *chatChunk) []parley.ContentBlock {
	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta == nil {
		return nil
	}
	delta := chunk.Choices[0].Delta

	var blocks []parley.ContentBlock
	if delta.ReasoningContent != "" {
		blocks = append(blocks, &parley.ThinkingBlock{Text: delta.ReasoningContent})
	}
	if delta.Content != "" {
		blocks = append(blocks, &parley.TextBlock{Text: delta.Content})
	}
	for _, tc := range delta.ToolCalls {
		blocks = append(blocks, fragmentBlock(tc))
	}
	return blocks
}

// fragmentBlock maps one tool-call delta to a ToolUse fragment. The first
// fragment of a call names the tool and carries its id; continuations come
// through under the placeholder name with only more argument text.
func fragmentBlock(tc deltaToolCall) *parley.ToolUseBlock {
	if tc.Function.Name == "" {
		return &parley.ToolUseBlock{Name: parley.FragmentName, Raw: tc.Function.Arguments}
	}
	block := &parley.ToolUseBlock{
		ID:   tc.ID,
		Name: tc.Function.Name,
		Raw:  tc.Function.Arguments,
	}
	// Single-fragment calls arrive with complete arguments; parse them here
	// so the accumulator sees structured input.
	if tc.Function.Arguments != "" {
		var input map[string]any
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err == nil {
			block.Input = input
		}
	}
	return block
}
