package parley

import (
	"encoding/json"
	"strings"
)

// FragmentName marks a tool-use block that continues a previous fragment.
// Model adapters emit it as the block name on every chunk of a call after
// the first; the accumulator never lets it escape into an assembled call.
const FragmentName = "__fragment__"

// toolCallAccumulator reassembles streamed tool-use fragments into one
// canonical call. Providers split a call across chunks in two styles: some
// parse arguments per-fragment (partial input maps), others stream raw
// argument text. The first fragment carries the real name and id;
// continuations carry the placeholder name and more text. One accumulator
// serves one reasoning stream.
type toolCallAccumulator struct {
	msgID  string
	toolID string
	name   string
	args   map[string]any
	raw    strings.Builder
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{args: make(map[string]any)}
}

// mergeResponse records the chunk's message id.
func (a *toolCallAccumulator) mergeResponse(resp ChatResponse) {
	a.msgID = resp.ID
}

// merge folds one fragment into the accumulated state: a non-empty id wins,
// a non-placeholder name wins, parsed arguments merge key-shallow, and raw
// argument text appends.
func (a *toolCallAccumulator) merge(block *ToolUseBlock) {
	if block == nil {
		return
	}
	if block.ID != "" {
		a.toolID = block.ID
	}
	if block.Name != "" && block.Name != FragmentName {
		a.name = block.Name
	}
	for k, v := range block.Input {
		a.args[k] = v
	}
	a.raw.WriteString(block.Raw)
}

// buildIfPresent returns the assembled call as an assistant message, or
// false when no fragment carried a real tool name. Arguments come from the
// parsed fragments when any arrived, otherwise from JSON-parsing the
// concatenated raw text; a failed parse keeps the input empty rather than
// erroring.
func (a *toolCallAccumulator) buildIfPresent(agentName string) (Msg, bool) {
	if a.name == "" {
		return Msg{}, false
	}

	finalArgs := make(map[string]any, len(a.args))
	for k, v := range a.args {
		finalArgs[k] = v
	}
	if len(finalArgs) == 0 && a.raw.Len() > 0 {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(a.raw.String()), &parsed); err == nil {
			for k, v := range parsed {
				finalArgs[k] = v
			}
		}
	}

	id := a.toolID
	if id == "" {
		id = NewToolCallID()
	}
	call := &ToolUseBlock{ID: id, Name: a.name, Input: finalArgs}
	return ToolUseMsg(agentName, call), true
}

// startsNewCall reports whether block opens a different call than the one
// in progress: it carries its own id while the accumulator already holds a
// call under another id. Ids are stable within a single call, so a fresh id
// can only mean the model moved on to the next call.
func (a *toolCallAccumulator) startsNewCall(block *ToolUseBlock) bool {
	return block != nil && block.ID != "" && a.toolID != "" && block.ID != a.toolID
}

// reset clears the accumulator for the next reasoning round.
func (a *toolCallAccumulator) reset() {
	a.msgID = ""
	a.toolID = ""
	a.name = ""
	a.args = make(map[string]any)
	a.raw.Reset()
}
