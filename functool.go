package parley

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// NewFuncTool creates a Tool from a typed function, deriving the parameter
// schema from the Args struct's tags:
//
//	type SearchArgs struct {
//		Query string `json:"query" jsonschema:"required,description=Search query"`
//		Limit int    `json:"limit,omitempty" jsonschema:"description=Max results,default=10"`
//	}
//
// The json tag names the parameter; jsonschema tags mark required fields and
// carry descriptions, defaults, enums, and numeric bounds. At call time the
// input map is unmarshalled into Args.
func NewFuncTool[Args any](name, description string, fn func(ctx context.Context, args Args) (*ToolResponse, error)) (Tool, error) {
	if name == "" {
		return nil, fmt.Errorf("functool: name is required")
	}
	if description == "" {
		return nil, fmt.Errorf("functool: description is required")
	}
	schema, err := structSchema[Args]()
	if err != nil {
		return nil, fmt.Errorf("functool %s: %w", name, err)
	}
	return &typedTool[Args]{name: name, description: description, schema: schema, fn: fn}, nil
}

// MustFuncTool is NewFuncTool that panics on error; for package-level tool
// variables with statically correct arg structs.
func MustFuncTool[Args any](name, description string, fn func(ctx context.Context, args Args) (*ToolResponse, error)) Tool {
	t, err := NewFuncTool(name, description, fn)
	if err != nil {
		panic(err)
	}
	return t
}

type typedTool[Args any] struct {
	name        string
	description string
	schema      map[string]any
	fn          func(ctx context.Context, args Args) (*ToolResponse, error)
}

var _ Tool = (*typedTool[struct{}])(nil)

func (t *typedTool[Args]) Name() string               { return t.name }
func (t *typedTool[Args]) Description() string        { return t.description }
func (t *typedTool[Args]) Parameters() map[string]any { return t.schema }

func (t *typedTool[Args]) Call(ctx context.Context, input map[string]any) (*ToolResponse, error) {
	var args Args
	if err := mapToStruct(input, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments for %s: %w", t.name, err)
	}
	return t.fn(ctx, args)
}

// structSchema reflects T into a JSON-Schema object map. Definitions are
// inlined and the $schema/$id headers stripped so the result can go straight
// into a tool schema.
func structSchema[T any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(T))

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	delete(m, "$schema")
	delete(m, "$id")

	if m["type"] == "object" {
		out := map[string]any{"type": "object"}
		if props, ok := m["properties"]; ok {
			out["properties"] = props
		} else {
			out["properties"] = map[string]any{}
		}
		if req, ok := m["required"]; ok {
			out["required"] = req
		}
		if add, ok := m["additionalProperties"]; ok {
			out["additionalProperties"] = add
		}
		return out, nil
	}
	return m, nil
}

// mapToStruct converts an argument map to a typed struct through JSON.
func mapToStruct(m map[string]any, target any) error {
	if m == nil {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("unmarshal args: %w", err)
	}
	return nil
}
