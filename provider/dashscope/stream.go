package dashscope

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/nevindra/parley"
)

// streamChunks reads DashScope SSE frames from r and pushes one
// parley.ChatResponse per data payload that carries content or usage.
// DashScope writes data lines without a space after the colon and ends the
// stream by closing it; there is no [DONE] sentinel.
func streamChunks(ctx context.Context, r io.Reader, ch chan<- parley.ChatResponse, start time.Time) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		var chunk generationChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip malformed frames.
			continue
		}
		if chunk.Code != "" {
			return &parley.ErrModel{Model: "dashscope", Message: chunk.Code + ": " + chunk.Message}
		}

		resp := parley.ChatResponse{
			ID:      chunk.RequestID,
			Content: chunkBlocks(&chunk),
		}
		if chunk.Usage != nil {
			resp.Usage = &parley.ChatUsage{
				InputTokens:  chunk.Usage.InputTokens,
				OutputTokens: chunk.Usage.OutputTokens,
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

// chunkBlocks converts one chunk into content blocks: plain output text,
// then per-choice reasoning, answer text, and tool-call fragments.
func chunkBlocks(chunk *generationChunk) []parley.ContentBlock {
	if chunk.Output == nil {
		return nil
	}

	var blocks []parley.ContentBlock
	if chunk.Output.Text != "" {
		blocks = append(blocks, &parley.TextBlock{Text: chunk.Output.Text})
	}
	if len(chunk.Output.Choices) == 0 {
		return blocks
	}
	msg := chunk.Output.Choices[0].Message
	if msg == nil {
		return blocks
	}

	if msg.ReasoningContent != "" {
		blocks = append(blocks, &parley.ThinkingBlock{Text: msg.ReasoningContent})
	}
	if msg.Content != "" {
		blocks = append(blocks, &parley.TextBlock{Text: msg.Content})
	}
	for _, tc := range msg.ToolCalls {
		if block := fragmentBlock(tc); block != nil {
			blocks = append(blocks, block)
		}
	}
	return blocks
}

// fragmentBlock maps one tool-call delta to a ToolUse fragment. The first
// fragment names the tool and carries its id; continuations come through
// under the placeholder name with only more argument text. Deltas carrying
// neither a name nor arguments produce nothing.
func fragmentBlock(tc deltaToolCall) *parley.ToolUseBlock {
	args := tc.Function.Arguments
	if tc.Function.Name == "" {
		if args == "" {
			return nil
		}
		return &parley.ToolUseBlock{Name: parley.FragmentName, Raw: args}
	}
	block := &parley.ToolUseBlock{ID: tc.ID, Name: tc.Function.Name, Raw: args}
	if args != "" {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(args), &parsed); err == nil {
			block.Input = parsed
		}
	}
	return block
}
