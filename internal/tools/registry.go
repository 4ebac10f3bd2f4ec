// Package tools provides the tool registry consumed by the orchestrator.
// A registry maps tool names to handlers plus the metadata the model and
// the router need (description, usage hint, input schema). Registries are
// assembled per conversation; registration is a setup-time side effect.
package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/stewardhq/steward/internal/llm"
)

// Handler executes one tool call. Input is the loosely-typed object the
// model supplied; the returned string is fed back to the model verbatim.
type Handler func(ctx context.Context, input map[string]any) (string, error)

// Tool is one registered capability.
type Tool struct {
	// Name is the identifier the model calls.
	Name string

	// Description is the long description sent to the model.
	Description string

	// UsageHint is the one-line summary the router prompt prefers.
	UsageHint string

	// InputSchema is a JSON-schema object describing the input.
	InputSchema map[string]any

	// Handler executes the call.
	Handler Handler
}

// Registry holds the tools available to one conversation.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Registering a duplicate name is an error so a
// misassembled conversation fails at setup, not mid-loop.
func (r *Registry) Register(tool Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool %q has no handler", tool.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.tools[tool.Name]; dup {
		return fmt.Errorf("tool %q already registered", tool.Name)
	}
	r.tools[tool.Name] = tool
	r.order = append(r.order, tool.Name)
	return nil
}

// RegisterAll registers each tool, stopping at the first error.
func (r *Registry) RegisterAll(tools []Tool) error {
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Definitions renders the registered tools for a model call.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		tool := r.tools[name]
		schema := tool.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		defs = append(defs, llm.ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
		})
	}
	return defs
}

// ToolHint implements toolset.HintSource.
func (r *Registry) ToolHint(name string) (string, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	if !ok {
		return "", "", false
	}
	return tool.UsageHint, tool.Description, true
}

// StringArg extracts a string field from a tool input, with a default.
func StringArg(input map[string]any, key, fallback string) string {
	if v, ok := input[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}

// IntArg extracts an integer field from a tool input, with a default.
// JSON numbers decode as float64, so both forms are accepted.
func IntArg(input map[string]any, key string, fallback int) int {
	switch v := input[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}
