package parley

import (
	"fmt"
	"strings"
	"sync"
)

// Memory is an ordered, append-only conversation log. Implementations must
// be safe for concurrent use: the reply loop appends while other goroutines
// read snapshots.
type Memory interface {
	// Add appends messages in order.
	Add(msgs ...Msg)
	// Messages returns a copy of the log in append order.
	Messages() []Msg
	// Size returns the number of stored messages.
	Size() int
	// Clear removes all messages.
	Clear()
}

// InMemory is the default Memory, backed by a mutex-guarded slice.
// It also implements StateModule so sessions can snapshot and restore the
// conversation.
type InMemory struct {
	mu   sync.RWMutex
	msgs []Msg
}

var (
	_ Memory      = (*InMemory)(nil)
	_ StateModule = (*InMemory)(nil)
)

// NewInMemory creates an empty in-memory conversation log.
func NewInMemory() *InMemory {
	return &InMemory{}
}

func (m *InMemory) Add(msgs ...Msg) {
	if len(msgs) == 0 {
		return
	}
	m.mu.Lock()
	m.msgs = append(m.msgs, msgs...)
	m.mu.Unlock()
}

func (m *InMemory) Messages() []Msg {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Msg, len(m.msgs))
	copy(out, m.msgs)
	return out
}

func (m *InMemory) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.msgs)
}

func (m *InMemory) Clear() {
	m.mu.Lock()
	m.msgs = nil
	m.mu.Unlock()
}

// StateDict snapshots the conversation as a JSON-compatible map. Content is
// flattened to text; non-text blocks keep their kind in contentType but
// round-trip as text.
func (m *InMemory) StateDict() (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := make([]any, 0, len(m.msgs))
	for _, msg := range m.msgs {
		records = append(records, serializeMsg(msg))
	}
	return map[string]any{"messages": records}, nil
}

// LoadStateDict replaces the conversation with the snapshot's messages.
// With strict set, a snapshot without a messages list is an error; otherwise
// it is ignored.
func (m *InMemory) LoadStateDict(state map[string]any, strict bool) error {
	raw, ok := state["messages"]
	if !ok {
		if strict {
			return fmt.Errorf("memory state missing %q", "messages")
		}
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return fmt.Errorf("memory state %q is %T, want a list", "messages", raw)
	}
	restored := make([]Msg, 0, len(list))
	for i, entry := range list {
		record, ok := entry.(map[string]any)
		if !ok {
			if strict {
				return fmt.Errorf("memory state message %d is %T, want a map", i, entry)
			}
			continue
		}
		restored = append(restored, deserializeMsg(record))
	}
	m.mu.Lock()
	m.msgs = restored
	m.mu.Unlock()
	return nil
}

func serializeMsg(msg Msg) map[string]any {
	contentType := BlockText
	if msg.Content != nil {
		contentType = msg.Content.Type()
	}
	return map[string]any{
		"id":          msg.ID,
		"name":        msg.Name,
		"role":        strings.ToUpper(string(msg.Role)),
		"content":     blockDisplayText(msg.Content),
		"contentType": strings.ToUpper(string(contentType)),
	}
}

// deserializeMsg rebuilds a message from a snapshot record. Restored content
// is always a text block; the snapshot's text is canonical.
func deserializeMsg(record map[string]any) Msg {
	id, _ := record["id"].(string)
	name, _ := record["name"].(string)
	roleStr, _ := record["role"].(string)
	content, _ := record["content"].(string)
	return Msg{
		ID:      id,
		Name:    name,
		Role:    Role(strings.ToLower(roleStr)),
		Content: &TextBlock{Text: content},
	}
}
