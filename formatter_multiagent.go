package parley

import (
	"fmt"
	"strings"
)

const (
	historyStartTag = "<history>"
	historyEndTag   = "</history>"
)

// MultiAgentFormatter formats conversations between several named agents.
// Everything that is not part of a tool sequence collapses into one
// synthetic user message whose text is a <history>…</history> transcript
// with one "Role name: text" line per message, so providers that only know
// user/assistant turns still see who said what. Tool calls and tool results
// keep their native wire shape and follow the collapsed history in input
// order.
type MultiAgentFormatter struct{}

var _ Formatter = (*MultiAgentFormatter)(nil)

func NewMultiAgentFormatter() *MultiAgentFormatter {
	return &MultiAgentFormatter{}
}

func (f *MultiAgentFormatter) Format(msgs []Msg) []FormattedMessage {
	var conversation []Msg
	var toolSeq []Msg
	for i := range msgs {
		msg := msgs[i]
		_, isCall := msg.ToolUse()
		if msg.Role == RoleTool || (msg.Role == RoleAssistant && isCall) {
			toolSeq = append(toolSeq, msg)
		} else {
			conversation = append(conversation, msg)
		}
	}

	out := make([]FormattedMessage, 0, len(toolSeq)+1)
	if len(conversation) > 0 {
		out = append(out, historyWire(conversation))
	}
	for i := range toolSeq {
		msg := &toolSeq[i]
		switch msg.Role {
		case RoleAssistant:
			out = append(out, agentWire(msg))
		case RoleTool:
			out = append(out, toolResultWire(msg))
		}
	}
	collapseTextContent(out)
	return out
}

func (f *MultiAgentFormatter) Capabilities() Capabilities {
	return Capabilities{Provider: "openai-compat", Tools: true, MultiAgent: true, Vision: true}
}

// historyWire collapses a conversation into a single user message. Text and
// thinking blocks accumulate as transcript lines; media blocks flush the
// accumulated text into a content entry, emit their own entry, and the
// transcript continues after them.
func historyWire(msgs []Msg) FormattedMessage {
	blocks := make([]map[string]any, 0, 1)
	var text strings.Builder
	text.WriteString(historyStartTag)
	text.WriteByte('\n')

	for i := range msgs {
		msg := &msgs[i]
		name := msg.Name
		if name == "" {
			name = "Unknown"
		}
		label := roleLabel(msg.Role)

		switch b := msg.Content.(type) {
		case *TextBlock:
			fmt.Fprintf(&text, "%s %s: %s\n", label, name, b.Text)
		case *ThinkingBlock:
			fmt.Fprintf(&text, "%s %s: %s\n", label, name, b.Text)
		case *ImageBlock, *AudioBlock, *VideoBlock:
			if text.Len() > 0 {
				blocks = append(blocks, map[string]any{"text": text.String()})
				text.Reset()
			}
			if entry, ok := mediaWire(msg.Content); ok {
				blocks = append(blocks, entry)
			}
		case *ToolResultBlock:
			fmt.Fprintf(&text, "%s %s (%s): %s\n", label, name, b.Name, blockText(b.Output))
		}
	}

	text.WriteString(historyEndTag)
	if text.Len() > 0 {
		blocks = append(blocks, map[string]any{"text": text.String()})
	}
	if len(blocks) == 0 {
		blocks = append(blocks, map[string]any{"text": ""})
	}
	return FormattedMessage{"role": "user", "content": blocks}
}

func roleLabel(r Role) string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	case RoleTool:
		return "Tool"
	}
	return "Unknown"
}
