// Package agent implements the agentic turn loop: stream a model response,
// execute any requested tools, feed the results back, and repeat until the
// model answers in plain text or the iteration cap is hit.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wayfarerhq/wayfarer/internal/agent/ai"
	"github.com/wayfarerhq/wayfarer/internal/config"
	"github.com/wayfarerhq/wayfarer/internal/logging"
	"github.com/wayfarerhq/wayfarer/internal/session"
	"github.com/wayfarerhq/wayfarer/internal/tools"
)

// DefaultSystemPrompt is used when the caller does not supply one.
const DefaultSystemPrompt = `You are Wayfarer, an autonomous assistant with access to tools for file operations, shell commands, and web browsing.

When working on tasks:
1. Break complex tasks into smaller steps
2. Use tools to gather information and make changes
3. If a tool reports an error, read it, adjust, and try again
4. When the task is complete, summarize what was done

Your workspace directory is where file operations happen. Be direct and concise in your responses.`

const defaultMaxIterations = 25

// Runner drives the agentic loop for a single session key at a time.
// It is safe for concurrent use across different session keys; serialization
// per session is the caller's concern.
type Runner struct {
	sessions *session.Store
	provider ai.Provider
	tools    *tools.Registry

	system        string
	maxIterations int
}

// NewRunner creates a runner bound to a session store, provider, and tool
// registry.
func NewRunner(sessions *session.Store, provider ai.Provider, registry *tools.Registry, cfg *config.Config) *Runner {
	maxIter := defaultMaxIterations
	if cfg != nil && cfg.MaxIterations > 0 {
		maxIter = cfg.MaxIterations
	}
	return &Runner{
		sessions:      sessions,
		provider:      provider,
		tools:         registry,
		system:        DefaultSystemPrompt,
		maxIterations: maxIter,
	}
}

// SetSystemPrompt overrides the default system prompt.
func (r *Runner) SetSystemPrompt(prompt string) {
	if prompt != "" {
		r.system = prompt
	}
}

// Request describes one turn of input for a session.
type Request struct {
	SessionKey string
	Input      string
}

// Run appends the user input to the session and starts the turn loop in a
// goroutine. Events arrive on the returned channel, which closes after a
// done or error event.
func (r *Runner) Run(ctx context.Context, req *Request) (<-chan ai.StreamEvent, error) {
	if req.SessionKey == "" {
		return nil, fmt.Errorf("session key is required")
	}
	if req.Input == "" {
		return nil, fmt.Errorf("input is required")
	}

	if _, err := r.sessions.GetOrCreate(req.SessionKey); err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	if err := r.sessions.AppendMessage(req.SessionKey, session.Message{
		Role:    "user",
		Content: req.Input,
	}); err != nil {
		return nil, fmt.Errorf("save user message: %w", err)
	}

	out := make(chan ai.StreamEvent, 100)
	go r.runLoop(ctx, req.SessionKey, out)

	return out, nil
}

// runLoop is the core agentic loop.
func (r *Runner) runLoop(ctx context.Context, key string, out chan<- ai.StreamEvent) {
	defer close(out)

	for iteration := 0; iteration < r.maxIterations; iteration++ {
		select {
		case <-ctx.Done():
			out <- ai.StreamEvent{Type: ai.EventTypeError, Error: ctx.Err()}
			return
		default:
		}

		messages, err := r.sessions.GetMessages(key, 0)
		if err != nil {
			out <- ai.StreamEvent{Type: ai.EventTypeError, Error: fmt.Errorf("load history: %w", err)}
			return
		}

		stream, err := r.provider.Stream(ctx, &ai.ChatRequest{
			Messages: messages,
			Tools:    r.tools.List(),
			System:   r.system,
		})
		if err != nil {
			out <- ai.StreamEvent{Type: ai.EventTypeError, Error: fmt.Errorf("provider: %w", err)}
			return
		}

		var textBuf string
		var toolCalls []ai.ToolCall
		var streamErr error

		for ev := range stream {
			switch ev.Type {
			case ai.EventTypeText:
				textBuf += ev.Text
				out <- ev
			case ai.EventTypeToolCall:
				if ev.ToolCall != nil {
					toolCalls = append(toolCalls, *ev.ToolCall)
					out <- ev
				}
			case ai.EventTypeError:
				streamErr = ev.Error
			}
		}

		if streamErr != nil {
			out <- ai.StreamEvent{Type: ai.EventTypeError, Error: streamErr}
			return
		}

		if err := r.saveAssistantMessage(key, textBuf, toolCalls); err != nil {
			out <- ai.StreamEvent{Type: ai.EventTypeError, Error: err}
			return
		}

		if len(toolCalls) == 0 {
			out <- ai.StreamEvent{Type: ai.EventTypeDone}
			return
		}

		results := make([]session.ToolResult, 0, len(toolCalls))
		for i := range toolCalls {
			tc := toolCalls[i]
			logging.Debugf("runner: executing tool %s (session=%s)", tc.Name, key)

			res := r.tools.Execute(ctx, &tc)
			results = append(results, session.ToolResult{
				ToolCallID: tc.ID,
				Content:    res.Content,
				IsError:    res.IsError,
			})

			out <- ai.StreamEvent{
				Type:     ai.EventTypeToolResult,
				ToolCall: &tc,
				Text:     res.Content,
			}
		}

		if err := r.saveToolResults(key, results); err != nil {
			out <- ai.StreamEvent{Type: ai.EventTypeError, Error: err}
			return
		}
	}

	out <- ai.StreamEvent{Type: ai.EventTypeError,
		Error: fmt.Errorf("turn did not complete within %d iterations", r.maxIterations)}
}

func (r *Runner) saveAssistantMessage(key, content string, toolCalls []ai.ToolCall) error {
	msg := session.Message{Role: "assistant", Content: content}

	if len(toolCalls) > 0 {
		calls := make([]session.ToolCall, 0, len(toolCalls))
		for _, tc := range toolCalls {
			calls = append(calls, session.ToolCall{ID: tc.ID, Name: tc.Name, Input: tc.Input})
		}
		raw, err := json.Marshal(calls)
		if err != nil {
			return fmt.Errorf("marshal tool calls: %w", err)
		}
		msg.ToolCalls = raw
	}

	if err := r.sessions.AppendMessage(key, msg); err != nil {
		return fmt.Errorf("save assistant message: %w", err)
	}
	return nil
}

func (r *Runner) saveToolResults(key string, results []session.ToolResult) error {
	raw, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal tool results: %w", err)
	}
	if err := r.sessions.AppendMessage(key, session.Message{
		Role:        "tool",
		ToolResults: raw,
	}); err != nil {
		return fmt.Errorf("save tool results: %w", err)
	}
	return nil
}

// RunTurn runs one full turn synchronously and returns the final response
// text. Intermediate events are passed to emit when it is non-nil; this is
// how callers surface thinking text and tool activity to connected clients.
func (r *Runner) RunTurn(ctx context.Context, sessionKey, input string, emit func(ai.StreamEvent)) (string, error) {
	events, err := r.Run(ctx, &Request{SessionKey: sessionKey, Input: input})
	if err != nil {
		return "", err
	}

	var response string
	for ev := range events {
		if emit != nil {
			emit(ev)
		}
		switch ev.Type {
		case ai.EventTypeText:
			response += ev.Text
		case ai.EventTypeToolResult:
			// Text streamed before a tool call is intermediate reasoning.
			// The final response is whatever follows the last tool result.
			response = ""
		case ai.EventTypeError:
			return "", ev.Error
		}
	}
	return response, nil
}
