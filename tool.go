package parley

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// interruptedText is the sentinel fed back to the model when a tool call is
// cancelled mid-flight.
const interruptedText = "<system-info>The tool call has been interrupted by the user.</system-info>"

// ToolSchema describes a tool to the model. Parameters is a JSON-Schema
// object with top-level type/properties/required.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolResponse is the outcome of one tool invocation. Errors are data: a
// failed call produces a response whose text starts with "Error: " so the
// model can react, and the reply loop keeps going.
type ToolResponse struct {
	Content     []ContentBlock `json:"content"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Stream      bool           `json:"stream"`
	Last        bool           `json:"last"`
	Interrupted bool           `json:"interrupted"`
	ID          string         `json:"id"`
}

// NewToolResponse creates a complete (non-streaming) response from blocks.
func NewToolResponse(blocks ...ContentBlock) *ToolResponse {
	return &ToolResponse{
		Content: blocks,
		Last:    true,
		ID:      newToolResponseID(),
	}
}

// TextResponse creates a complete response carrying one text block.
func TextResponse(text string) *ToolResponse {
	return NewToolResponse(&TextBlock{Text: text})
}

// ErrorResponse creates a failure response. The model sees the message
// prefixed with "Error: ".
func ErrorResponse(msg string) *ToolResponse {
	return NewToolResponse(&TextBlock{Text: "Error: " + msg})
}

// InterruptedResponse creates the response recorded for a call cancelled by
// the caller.
func InterruptedResponse() *ToolResponse {
	return &ToolResponse{
		Content:     []ContentBlock{&TextBlock{Text: interruptedText}},
		Stream:      true,
		Last:        true,
		Interrupted: true,
		ID:          newToolResponseID(),
	}
}

// Text joins the text of all content blocks with newlines.
func (r *ToolResponse) Text() string {
	if r == nil {
		return ""
	}
	parts := make([]string, 0, len(r.Content))
	for _, b := range r.Content {
		parts = append(parts, blockText(b))
	}
	return strings.Join(parts, "\n")
}

// IsError reports whether the response carries the error prefix.
func (r *ToolResponse) IsError() bool {
	return r != nil && strings.HasPrefix(r.Text(), "Error: ")
}

func newToolResponseID() string {
	return fmt.Sprintf("%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// Tool is a named callable the model can invoke. Parameters returns the
// JSON-Schema object advertised to the model; Call receives the parsed
// argument object.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Call(ctx context.Context, input map[string]any) (*ToolResponse, error)
}

// funcTool adapts a plain function plus an explicit schema into a Tool.
type funcTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(ctx context.Context, input map[string]any) (*ToolResponse, error)
}

// NewTool wraps a function with an explicit JSON-Schema parameter object.
// Use NewFuncTool to derive the schema from a struct instead.
func NewTool(name, description string, parameters map[string]any, fn func(ctx context.Context, input map[string]any) (*ToolResponse, error)) Tool {
	if parameters == nil {
		parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return &funcTool{name: name, description: description, parameters: parameters, fn: fn}
}

func (t *funcTool) Name() string               { return t.name }
func (t *funcTool) Description() string        { return t.description }
func (t *funcTool) Parameters() map[string]any { return t.parameters }

func (t *funcTool) Call(ctx context.Context, input map[string]any) (*ToolResponse, error) {
	return t.fn(ctx, input)
}

// Toolkit is a registry of tools keyed by name. Registering a name twice
// overwrites the earlier tool. Safe for concurrent use; mutations during an
// in-flight reply affect only later lookups.
type Toolkit struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewToolkit creates a registry holding the given tools.
func NewToolkit(tools ...Tool) *Toolkit {
	k := &Toolkit{tools: make(map[string]Tool)}
	k.Register(tools...)
	return k
}

// Register installs tools, overwriting any earlier tool with the same name.
func (k *Toolkit) Register(tools ...Tool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, t := range tools {
		if t == nil || t.Name() == "" {
			continue
		}
		k.tools[t.Name()] = t
	}
}

// Remove uninstalls a tool and reports whether it was present.
func (k *Toolkit) Remove(name string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, ok := k.tools[name]
	delete(k.tools, name)
	return ok
}

// Get looks up a tool by name.
func (k *Toolkit) Get(name string) (Tool, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	t, ok := k.tools[name]
	return t, ok
}

// Has reports whether a tool with the name is registered.
func (k *Toolkit) Has(name string) bool {
	_, ok := k.Get(name)
	return ok
}

// Names returns the registered tool names, sorted.
func (k *Toolkit) Names() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	names := make([]string, 0, len(k.tools))
	for name := range k.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Size returns the number of registered tools.
func (k *Toolkit) Size() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.tools)
}

// Schemas returns the schemas of all registered tools, ordered by name.
func (k *Toolkit) Schemas() []ToolSchema {
	k.mu.RLock()
	defer k.mu.RUnlock()
	names := make([]string, 0, len(k.tools))
	for name := range k.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	schemas := make([]ToolSchema, 0, len(names))
	for _, name := range names {
		t := k.tools[name]
		schemas = append(schemas, ToolSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return schemas
}

// Call invokes the named tool and never returns an error: unknown tools,
// tool failures, and panics all become error responses so the reply loop
// keeps going. The response ID echoes the call ID.
func (k *Toolkit) Call(ctx context.Context, call *ToolUseBlock) *ToolResponse {
	tool, ok := k.Get(call.Name)
	var resp *ToolResponse
	switch {
	case !ok:
		resp = ErrorResponse("Tool not found: " + call.Name)
	default:
		r, err := safeToolCall(ctx, tool, call.Input)
		switch {
		case err != nil && errors.Is(err, context.Canceled):
			resp = InterruptedResponse()
		case err != nil:
			resp = ErrorResponse("Tool execution failed: " + err.Error())
		case r == nil:
			resp = NewToolResponse()
		default:
			resp = r
		}
	}
	if call.ID != "" {
		resp.ID = call.ID
	}
	return resp
}

// safeToolCall shields the loop from panicking tools.
func safeToolCall(ctx context.Context, tool Tool, input map[string]any) (resp *ToolResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if input == nil {
		input = map[string]any{}
	}
	return tool.Call(ctx, input)
}
