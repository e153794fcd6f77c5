// Package tools implements the callable tools available to the agent. Each
// tool is independently sandboxed; a tool failure becomes an error result
// visible to the model, never a crashed turn.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/wayfarerhq/wayfarer/internal/agent/ai"
	"github.com/wayfarerhq/wayfarer/internal/logging"
)

// ToolResult represents the result of a tool execution
type ToolResult struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Tool interface that all tools must implement
type Tool interface {
	// Name returns the tool's unique name
	Name() string

	// Description returns a description for the model
	Description() string

	// Schema returns the JSON schema for the tool's input
	Schema() json.RawMessage

	// Execute runs the tool with the given input
	Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error)
}

// Registry manages available tools
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all tools as provider tool definitions
func (r *Registry) List() []ai.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]ai.ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, ai.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.Schema(),
		})
	}
	return defs
}

// Close releases resources held by tools that carry external state, such as
// the browser's Chrome process.
func (r *Registry) Close() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, tool := range r.tools {
		if closer, ok := tool.(interface{ Close() }); ok {
			closer.Close()
		}
	}
}

// Execute runs a tool and returns the result. Errors are folded into an
// error result so the model can see and recover from them.
func (r *Registry) Execute(ctx context.Context, toolCall *ai.ToolCall) *ToolResult {
	r.mu.RLock()
	tool, ok := r.tools[toolCall.Name]
	r.mu.RUnlock()

	if !ok {
		return &ToolResult{
			Content: fmt.Sprintf("Unknown tool: %s", toolCall.Name),
			IsError: true,
		}
	}

	logging.Debugf("tools: executing %s", toolCall.Name)

	result, err := tool.Execute(ctx, toolCall.Input)
	if err != nil {
		return &ToolResult{
			Content: fmt.Sprintf("Tool error: %v", err),
			IsError: true,
		}
	}

	return result
}
