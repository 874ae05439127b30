// Package tools holds the capabilities the model may invoke during a
// chat turn. Dispatch is a closed set keyed by name; anything outside the
// registry is rejected by the orchestrator.
package tools

import (
	"context"
	"encoding/json"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// Tool is a named, schema-validated capability.
type Tool interface {
	Name() string
	Description() string
	Parameters() jsonschema.Definition

	// NeedsApproval reports whether a human must approve each call
	// before it executes.
	NeedsApproval() bool

	// Execute runs the tool. Implementations are expected to encode
	// their own failures into the result payload; a non-nil error is
	// reserved for faults the tool could not express as data.
	Execute(ctx context.Context, arguments json.RawMessage) (json.RawMessage, error)
}

// Registry is the closed set of tools offered to the model.
type Registry struct {
	byName map[string]Tool
	order  []string
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{byName: make(map[string]Tool)}
	for _, t := range tools {
		if _, exists := r.byName[t.Name()]; exists {
			continue
		}
		r.byName[t.Name()] = t
		r.order = append(r.order, t.Name())
	}
	return r
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// List returns the registered tools in registration order.
func (r *Registry) List() []Tool {
	tools := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.byName[name])
	}
	return tools
}
