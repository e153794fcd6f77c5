// Package ai abstracts the language model behind a streaming provider
// interface. The model call is treated as an opaque, possibly slow, blocking
// operation; events arrive on a channel that closes when the turn's response
// is complete.
package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wayfarerhq/wayfarer/internal/session"
)

// StreamEventType defines the type of streaming event
type StreamEventType string

const (
	EventTypeText       StreamEventType = "text"
	EventTypeToolCall   StreamEventType = "tool_call"
	EventTypeToolResult StreamEventType = "tool_result"
	EventTypeError      StreamEventType = "error"
	EventTypeDone       StreamEventType = "done"
)

// StreamEvent represents a streaming response event
type StreamEvent struct {
	Type     StreamEventType `json:"type"`
	Text     string          `json:"text,omitempty"`
	ToolCall *ToolCall       `json:"tool_call,omitempty"`
	Error    error           `json:"error,omitempty"`
}

// ToolCall represents a tool invocation requested by the model
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolDefinition describes a tool available to the model
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ChatRequest represents a request to the provider
type ChatRequest struct {
	Messages  []session.Message `json:"messages"`
	Tools     []ToolDefinition  `json:"tools,omitempty"`
	MaxTokens int               `json:"max_tokens,omitempty"`
	System    string            `json:"system,omitempty"`
	Model     string            `json:"model,omitempty"` // override of the provider default
}

// Provider is a streaming language model backend
type Provider interface {
	// ID returns the provider identifier (e.g., "anthropic", "openai")
	ID() string

	// Stream sends a request and returns a channel of streaming events.
	// The channel closes after a done or error event.
	Stream(ctx context.Context, req *ChatRequest) (<-chan StreamEvent, error)
}

// New builds the provider named in config
func New(name, apiKey, model string) (Provider, error) {
	switch name {
	case "anthropic", "":
		return NewAnthropicProvider(apiKey, model), nil
	case "openai":
		return NewOpenAIProvider(apiKey, model), nil
	case "ollama":
		return NewOllamaProvider("", model), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

// ProviderError represents an error reported by a provider API
type ProviderError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

func (e *ProviderError) Error() string {
	return e.Message
}
