// Package tools defines the tool collaborator contract: named handlers with
// advisory JSON-schema parameter descriptions. The core invokes handlers
// with best-effort-parsed arguments and wraps results or errors into
// textual tool-result entries; it never enforces schemas at runtime.
package tools

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/voxloop-go/voxloop/pkg/core/types"
)

// Handler executes one tool call. Input is the raw JSON arguments; the
// returned value must be JSON-serializable.
type Handler func(ctx context.Context, input json.RawMessage) (any, error)

// Tool pairs a definition with its handler.
type Tool struct {
	types.ToolDefinition
	Handler Handler
}

// MakeTool creates a Tool from a typed function. The input schema is
// generated from T's struct tags (json, desc, enum).
//
// Example:
//
//	tool := tools.MakeTool("draw_shape", "Draw a shape on the canvas",
//	    func(ctx context.Context, input struct {
//	        Shape string `json:"shape" desc:"Shape kind" enum:"circle,square"`
//	        X     int    `json:"x" desc:"Center X"`
//	        Y     int    `json:"y" desc:"Center Y"`
//	    }) (string, error) {
//	        return canvas.Draw(input.Shape, input.X, input.Y)
//	    },
//	)
func MakeTool[T any, R any](name, description string, fn func(context.Context, T) (R, error)) Tool {
	var zero T
	schema := SchemaForType(reflect.TypeOf(zero))

	handler := func(ctx context.Context, raw json.RawMessage) (any, error) {
		var input T
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &input); err != nil {
				// Arguments that fail to parse fall back to the zero
				// value, mirroring the parser's {} default.
				input = zero
			}
		}
		return fn(ctx, input)
	}

	return Tool{
		ToolDefinition: types.ToolDefinition{
			Name:        name,
			Description: description,
			InputSchema: schema,
		},
		Handler: handler,
	}
}

// Set is a collection of tools keyed by name.
type Set struct {
	defs     []types.ToolDefinition
	handlers map[string]Handler
}

// NewSet creates an empty tool set.
func NewSet() *Set {
	return &Set{handlers: make(map[string]Handler)}
}

// Add registers a tool. Later registrations with the same name win.
func (s *Set) Add(tool Tool) *Set {
	s.defs = append(s.defs, tool.ToolDefinition)
	if tool.Handler != nil && tool.Name != "" {
		s.handlers[tool.Name] = tool.Handler
	}
	return s
}

// Definitions returns all tool definitions for prompting.
func (s *Set) Definitions() []types.ToolDefinition {
	out := make([]types.ToolDefinition, len(s.defs))
	copy(out, s.defs)
	return out
}

// Handler returns the handler for a tool name.
func (s *Set) Handler(name string) (Handler, bool) {
	h, ok := s.handlers[name]
	return h, ok
}

// Len returns the number of registered tools.
func (s *Set) Len() int {
	return len(s.defs)
}
