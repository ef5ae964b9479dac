package parley

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FormattedMessage is one provider wire message in the OpenAI-style
// chat-completions shape: role, content, and optionally tool_calls or
// tool_call_id. Formatters build it as a plain map so provider adapters
// can marshal it directly.
type FormattedMessage map[string]any

// Role returns the wire role, or "" when absent.
func (m FormattedMessage) Role() string {
	s, _ := m["role"].(string)
	return s
}

// ContentString renders the content as text: plain strings verbatim,
// block lists as their text entries joined with newlines.
func (m FormattedMessage) ContentString() string {
	if s, ok := m["content"].(string); ok {
		return s
	}
	entries, ok := contentEntries(m["content"])
	if !ok {
		return ""
	}
	var sb strings.Builder
	for _, entry := range entries {
		text, ok := entry["text"].(string)
		if !ok {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(text)
	}
	return sb.String()
}

// HasToolCalls reports whether the message carries at least one tool call.
func (m FormattedMessage) HasToolCalls() bool {
	switch calls := m["tool_calls"].(type) {
	case []map[string]any:
		return len(calls) > 0
	case []any:
		return len(calls) > 0
	}
	return false
}

// ToolCallID returns the tool_call_id of a tool-role message, or "".
func (m FormattedMessage) ToolCallID() string {
	s, _ := m["tool_call_id"].(string)
	return s
}

// Capabilities describes what a formatter's wire shape can express.
type Capabilities struct {
	Provider   string
	Tools      bool
	MultiAgent bool
	Vision     bool
}

// Formatter converts conversation messages into a provider wire shape.
// Format never fails: content it cannot express degrades to a text
// rendering. Implementations must not mutate the input messages.
type Formatter interface {
	Format(msgs []Msg) []FormattedMessage
	Capabilities() Capabilities
}

// ChatFormatter formats a single-agent dialogue. Each message becomes one
// wire message: system prompts carry plain string content, user and
// assistant turns carry content-block lists, assistant tool calls move to
// tool_calls with a mandatory empty-text placeholder, and tool results
// become tool-role messages keyed by tool_call_id.
type ChatFormatter struct{}

var _ Formatter = (*ChatFormatter)(nil)

func NewChatFormatter() *ChatFormatter {
	return &ChatFormatter{}
}

func (f *ChatFormatter) Format(msgs []Msg) []FormattedMessage {
	out := make([]FormattedMessage, 0, len(msgs))
	for i := range msgs {
		msg := &msgs[i]
		switch msg.Role {
		case RoleSystem:
			out = append(out, systemWire(msg))
		case RoleTool:
			out = append(out, toolResultWire(msg))
		default:
			out = append(out, agentWire(msg))
		}
	}
	collapseTextContent(out)
	return out
}

func (f *ChatFormatter) Capabilities() Capabilities {
	return Capabilities{Provider: "openai-compat", Tools: true, Vision: true}
}

func systemWire(msg *Msg) FormattedMessage {
	return FormattedMessage{"role": "system", "content": msg.Text()}
}

// agentWire formats a user or assistant turn as a content-block list.
// Assistant tool calls additionally carry tool_calls; the empty text
// placeholder is mandatory because some providers reject assistant
// messages without content.
func agentWire(msg *Msg) FormattedMessage {
	m := FormattedMessage{"role": string(msg.Role)}
	blocks := make([]map[string]any, 0, 1)
	var calls []map[string]any

	switch b := msg.Content.(type) {
	case nil:
		blocks = append(blocks, map[string]any{"text": ""})
	case *TextBlock:
		blocks = append(blocks, map[string]any{"text": b.Text})
	case *ThinkingBlock:
		blocks = append(blocks, map[string]any{"text": b.Text})
	case *ImageBlock, *AudioBlock, *VideoBlock:
		if entry, ok := mediaWire(msg.Content); ok {
			blocks = append(blocks, entry)
		}
	case *ToolUseBlock:
		calls = append(calls, toolCallWire(b))
		blocks = append(blocks, map[string]any{"text": ""})
	case *ToolResultBlock:
		// Tool results normally arrive on tool-role messages; render the
		// output text when one shows up on an agent turn.
		blocks = append(blocks, map[string]any{"text": blockText(b.Output)})
	default:
		blocks = append(blocks, map[string]any{"text": blockDisplayText(msg.Content)})
	}

	m["content"] = blocks
	if len(calls) > 0 {
		m["tool_calls"] = calls
	}
	return m
}

func toolResultWire(msg *Msg) FormattedMessage {
	m := FormattedMessage{"role": "tool"}
	if res, ok := msg.Content.(*ToolResultBlock); ok {
		m["content"] = blockText(res.Output)
		m["tool_call_id"] = res.ID
		return m
	}
	// No originating call id on free-form tool messages; synthesize one to
	// keep the wire shape valid.
	m["content"] = msg.Text()
	m["tool_call_id"] = NewToolCallID()
	return m
}

func toolCallWire(call *ToolUseBlock) map[string]any {
	return map[string]any{
		"id":   call.ID,
		"type": "function",
		"function": map[string]any{
			"name":      call.Name,
			"arguments": toolArgsJSON(call.Input),
		},
	}
}

// mediaWire renders a media block as its wire entry, keyed by kind.
func mediaWire(b ContentBlock) (map[string]any, bool) {
	src := mediaSource(b)
	if src == nil {
		return nil, false
	}
	var key string
	switch b.Type() {
	case BlockImage:
		key = "image"
	case BlockAudio:
		key = "audio"
	case BlockVideo:
		key = "video"
	default:
		return nil, false
	}
	return map[string]any{key: normalizeMediaURL(sourceURL(src))}, true
}

// sourceURL renders a media source in its transportable form: URLs as-is,
// inline base64 as a data URL.
func sourceURL(src Source) string {
	switch s := src.(type) {
	case URLSource:
		return s.URL
	case Base64Source:
		return s.DataURL()
	}
	return ""
}

// normalizeMediaURL rewrites a bare local path that exists on disk to a
// file:// URL. http(s), file and data URLs pass through untouched.
func normalizeMediaURL(raw string) string {
	if raw == "" {
		return raw
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") ||
		strings.HasPrefix(raw, "file://") || strings.HasPrefix(raw, "data:") {
		return raw
	}
	if _, err := os.Stat(raw); err != nil {
		return raw
	}
	abs, err := filepath.Abs(raw)
	if err != nil {
		return raw
	}
	return "file://" + abs
}

// collapseTextContent rewrites, in place, every content list whose entries
// are all text into a single newline-joined string. Lists with any non-text
// entry, and lists that join to "", are left as lists.
func collapseTextContent(msgs []FormattedMessage) {
	for _, m := range msgs {
		entries, ok := contentEntries(m["content"])
		if !ok {
			continue
		}
		allText := true
		var sb strings.Builder
		for _, entry := range entries {
			text, isText := entry["text"].(string)
			if !isText {
				allText = false
				break
			}
			if typ, present := entry["type"]; present && typ != "text" {
				allText = false
				break
			}
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(text)
		}
		if allText && sb.Len() > 0 {
			m["content"] = sb.String()
		}
	}
}

func contentEntries(v any) ([]map[string]any, bool) {
	switch list := v.(type) {
	case []map[string]any:
		return list, true
	case []any:
		entries := make([]map[string]any, 0, len(list))
		for _, item := range list {
			entry, ok := item.(map[string]any)
			if !ok {
				return nil, false
			}
			entries = append(entries, entry)
		}
		return entries, true
	}
	return nil, false
}

// toolArgsJSON renders tool-call arguments as a compact JSON object string.
// Keys are emitted in sorted order so the wire form is deterministic.
// Empty or nil input serializes to "{}".
func toolArgsJSON(input map[string]any) string {
	if len(input) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.Write(jsonString(k))
		sb.WriteByte(':')
		sb.Write(toolArgValue(input[k]))
	}
	sb.WriteByte('}')
	return sb.String()
}

func toolArgValue(v any) []byte {
	switch t := v.(type) {
	case nil:
		return []byte("null")
	case map[string]any:
		return []byte(toolArgsJSON(t))
	}
	if b, err := json.Marshal(v); err == nil {
		return b
	}
	// Unencodable values degrade to their string form; Format never fails.
	return jsonString(fmt.Sprint(v))
}

func jsonString(s string) []byte {
	b, _ := json.Marshal(s)
	return b
}
