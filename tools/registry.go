// Package tools implements the tool registry and router (C7): name-validated
// registration of handler functions plus schema validation, timeout
// enforcement, panic recovery, and bounded concurrency at execution time.
package tools

import (
	"regexp"
	"sync"

	"github.com/langadventurellc/burnside/chat"
)

var nameRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Handler executes one tool call. It receives already schema-validated
// parameters and returns a structured result or fails.
type Handler func(ctx ExecutionContext, parameters map[string]any) (any, error)

// ExecutionContext carries the per-call cancellation source into a handler.
type ExecutionContext struct {
	Cancel chat.CancellationHandle
	CallID string
}

type entry struct {
	def     chat.ToolDefinition
	handler Handler
}

// Registry maps a tool name to its definition and handler.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry constructs an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register validates def's name and structural input schema, storing
// handler under name. Re-registering an existing name is a Validation
// error (unlike the provider registry, duplicate tool names are never
// silently overwritten).
func (r *Registry) Register(name string, def chat.ToolDefinition, handler Handler) error {
	if !nameRE.MatchString(name) {
		return chat.New(chat.KindValidation, "tools: name must match [a-zA-Z_][a-zA-Z0-9_]*")
	}
	if handler == nil {
		return chat.New(chat.KindValidation, "tools: handler is required")
	}
	if def.InputSchema == nil {
		return chat.New(chat.KindValidation, "tools: inputSchema is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		return chat.New(chat.KindValidation, "tools: duplicate tool name: "+name)
	}
	r.entries[name] = entry{def: def, handler: handler}
	return nil
}

// Get returns the definition and handler registered under name.
func (r *Registry) Get(name string) (chat.ToolDefinition, Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return chat.ToolDefinition{}, nil, false
	}
	return e.def, e.handler, true
}

// List enumerates every registered tool definition.
func (r *Registry) List() []chat.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]chat.ToolDefinition, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.def)
	}
	return out
}
