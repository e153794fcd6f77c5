package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/wayfarerhq/wayfarer/internal/logging"
	"github.com/wayfarerhq/wayfarer/internal/session"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaProvider implements the Provider interface for local models using the
// official Ollama SDK
type OllamaProvider struct {
	client *api.Client
	model  string
}

// NewOllamaProvider creates an Ollama provider
func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if model == "" {
		model = "qwen3:4b"
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		parsedURL, _ = url.Parse(defaultOllamaURL)
	}

	// Local inference can be slow
	httpClient := &http.Client{Timeout: 5 * time.Minute}

	return &OllamaProvider{
		client: api.NewClient(parsedURL, httpClient),
		model:  model,
	}
}

// ID returns the provider identifier
func (p *OllamaProvider) ID() string {
	return "ollama"
}

// Stream sends a request to Ollama and streams the response
func (p *OllamaProvider) Stream(ctx context.Context, req *ChatRequest) (<-chan StreamEvent, error) {
	messages := p.buildMessages(req)

	model := p.model
	if req.Model != "" {
		model = req.Model
	}

	streaming := true
	chatReq := &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   &streaming,
	}

	if req.MaxTokens > 0 {
		chatReq.Options = map[string]any{"num_predict": req.MaxTokens}
	}

	if len(req.Tools) > 0 {
		chatReq.Tools = p.buildTools(req.Tools)
	}

	logging.Debugf("ollama: request model=%s messages=%d tools=%d",
		model, len(messages), len(req.Tools))

	events := make(chan StreamEvent, 100)

	go func() {
		defer close(events)

		toolCallCounter := 0
		err := p.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
			if resp.Message.Content != "" {
				events <- StreamEvent{
					Type: EventTypeText,
					Text: resp.Message.Content,
				}
			}

			for _, tc := range resp.Message.ToolCalls {
				toolCallCounter++
				input, _ := json.Marshal(tc.Function.Arguments.ToMap())
				events <- StreamEvent{
					Type: EventTypeToolCall,
					ToolCall: &ToolCall{
						ID:    fmt.Sprintf("ollama-call-%d", toolCallCounter),
						Name:  tc.Function.Name,
						Input: input,
					},
				}
			}

			if resp.Done {
				events <- StreamEvent{Type: EventTypeDone}
			}
			return nil
		})

		if err != nil {
			logging.Errorf("ollama: stream error: %v", err)
			events <- StreamEvent{
				Type:  EventTypeError,
				Error: err,
			}
		}
	}()

	return events, nil
}

// buildMessages converts session messages to Ollama format. Tool calls with
// no recorded result are dropped so the model never sees a dangling
// reference.
func (p *OllamaProvider) buildMessages(req *ChatRequest) []api.Message {
	messages := make([]api.Message, 0, len(req.Messages)+1)

	if req.System != "" {
		messages = append(messages, api.Message{
			Role:    "system",
			Content: req.System,
		})
	}

	respondedToolIDs := make(map[string]bool)
	for _, msg := range req.Messages {
		if msg.Role == "tool" && len(msg.ToolResults) > 0 {
			var results []session.ToolResult
			if err := json.Unmarshal(msg.ToolResults, &results); err == nil {
				for _, r := range results {
					respondedToolIDs[r.ToolCallID] = true
				}
			}
		}
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case "user", "system":
			messages = append(messages, api.Message{
				Role:    msg.Role,
				Content: msg.Content,
			})

		case "assistant":
			assistantMsg := api.Message{
				Role:    "assistant",
				Content: msg.Content,
			}

			if len(msg.ToolCalls) > 0 {
				var toolCalls []session.ToolCall
				if err := json.Unmarshal(msg.ToolCalls, &toolCalls); err == nil {
					for _, tc := range toolCalls {
						if !respondedToolIDs[tc.ID] {
							continue
						}

						args := api.NewToolCallFunctionArguments()
						var argsMap map[string]any
						if err := json.Unmarshal(tc.Input, &argsMap); err == nil {
							for k, v := range argsMap {
								args.Set(k, v)
							}
						}

						assistantMsg.ToolCalls = append(assistantMsg.ToolCalls, api.ToolCall{
							ID: tc.ID,
							Function: api.ToolCallFunction{
								Name:      tc.Name,
								Arguments: args,
							},
						})
					}
				}
			}

			if assistantMsg.Content != "" || len(assistantMsg.ToolCalls) > 0 {
				messages = append(messages, assistantMsg)
			}

		case "tool":
			if len(msg.ToolResults) > 0 {
				var results []session.ToolResult
				if err := json.Unmarshal(msg.ToolResults, &results); err == nil {
					for _, r := range results {
						messages = append(messages, api.Message{
							Role:       "tool",
							Content:    r.Content,
							ToolCallID: r.ToolCallID,
							ToolName:   p.findToolName(r.ToolCallID, req.Messages),
						})
					}
				}
			}
		}
	}

	return messages
}

// findToolName resolves a tool call ID back to its tool name
func (p *OllamaProvider) findToolName(toolCallID string, msgs []session.Message) string {
	for _, msg := range msgs {
		if msg.Role != "assistant" || len(msg.ToolCalls) == 0 {
			continue
		}
		var calls []session.ToolCall
		if err := json.Unmarshal(msg.ToolCalls, &calls); err == nil {
			for _, c := range calls {
				if c.ID == toolCallID {
					return c.Name
				}
			}
		}
	}
	return "unknown"
}

// buildTools converts tool definitions to Ollama format
func (p *OllamaProvider) buildTools(tools []ToolDefinition) api.Tools {
	result := make(api.Tools, 0, len(tools))

	for _, tool := range tools {
		var schemaRaw map[string]any
		if err := json.Unmarshal([]byte(tool.InputSchema), &schemaRaw); err != nil {
			logging.Errorf("ollama: failed to parse tool schema for %s: %v", tool.Name, err)
			continue
		}

		params := api.ToolFunctionParameters{
			Type: "object",
		}

		if props, ok := schemaRaw["properties"].(map[string]any); ok {
			propsMap := api.NewToolPropertiesMap()
			for name, propRaw := range props {
				if propObj, ok := propRaw.(map[string]any); ok {
					propsMap.Set(name, p.convertProperty(propObj))
				}
			}
			params.Properties = propsMap
		}

		if required, ok := schemaRaw["required"].([]any); ok {
			for _, r := range required {
				if s, ok := r.(string); ok {
					params.Required = append(params.Required, s)
				}
			}
		}

		result = append(result, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		})
	}

	return result
}

func (p *OllamaProvider) convertProperty(prop map[string]any) api.ToolProperty {
	result := api.ToolProperty{}

	if typeVal, ok := prop["type"].(string); ok {
		result.Type = api.PropertyType{typeVal}
	}
	if desc, ok := prop["description"].(string); ok {
		result.Description = desc
	}
	if enum, ok := prop["enum"].([]any); ok {
		result.Enum = enum
	}
	if items, ok := prop["items"]; ok {
		result.Items = items
	}

	return result
}

// CheckOllamaAvailable reports whether an Ollama server answers at baseURL
func CheckOllamaAvailable(baseURL string) bool {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/api/tags")
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
