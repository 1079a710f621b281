package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownTool is returned by Call for names with no registered tool.
var ErrUnknownTool = errors.New("mcp: unknown tool")

// ToolHandler executes one tool invocation. The returned value is
// marshalled to JSON for the caller; returning a string passes it
// through verbatim. Errors are reported in-band as tool failures.
type ToolHandler func(ctx context.Context, args json.RawMessage) (any, error)

type toolEntry struct {
	tool    Tool
	handler ToolHandler
}

// ToolRegistry holds the locally served tools. Registration happens at
// startup; lookups are concurrent.
type ToolRegistry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]toolEntry
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]toolEntry)}
}

// Register adds a tool. Duplicate names are an error.
func (r *ToolRegistry) Register(tool Tool, handler ToolHandler) error {
	if tool.Name == "" {
		return errors.New("mcp: tool name is required")
	}
	if handler == nil {
		return fmt.Errorf("mcp: tool %s has no handler", tool.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("mcp: tool %s already registered", tool.Name)
	}
	r.tools[tool.Name] = toolEntry{tool: tool, handler: handler}
	r.order = append(r.order, tool.Name)
	return nil
}

// mustRegister is Register for startup-time tool tables, where a
// duplicate name is a programming error.
func (r *ToolRegistry) mustRegister(tool Tool, handler ToolHandler) {
	if err := r.Register(tool, handler); err != nil {
		panic(err)
	}
}

// List returns the registered tools in registration order.
func (r *ToolRegistry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.tools[name].tool)
	}
	return tools
}

// Has reports whether a tool with the given name is registered.
func (r *ToolRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Call invokes a tool by name. Returns ErrUnknownTool for unregistered
// names; any other error is the tool's own failure.
func (r *ToolRegistry) Call(ctx context.Context, name string, args json.RawMessage) (any, error) {
	r.mu.RLock()
	entry, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return entry.handler(ctx, args)
}
