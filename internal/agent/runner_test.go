package agent

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wayfarerhq/wayfarer/internal/agent/ai"
	"github.com/wayfarerhq/wayfarer/internal/config"
	"github.com/wayfarerhq/wayfarer/internal/db"
	"github.com/wayfarerhq/wayfarer/internal/session"
	"github.com/wayfarerhq/wayfarer/internal/tools"
)

func newTestStore(t *testing.T) *session.Store {
	t.Helper()

	sqlDB, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	return session.NewStore(sqlDB)
}

// scriptedProvider replays one event script per Stream call.
type scriptedProvider struct {
	scripts   [][]ai.StreamEvent
	callCount int
}

func (p *scriptedProvider) ID() string { return "scripted" }

func (p *scriptedProvider) Stream(ctx context.Context, req *ai.ChatRequest) (<-chan ai.StreamEvent, error) {
	var script []ai.StreamEvent
	if p.callCount < len(p.scripts) {
		script = p.scripts[p.callCount]
	}
	p.callCount++

	ch := make(chan ai.StreamEvent)
	go func() {
		defer close(ch)
		for _, ev := range script {
			select {
			case <-ctx.Done():
				return
			case ch <- ev:
			}
		}
	}()
	return ch, nil
}

// echoTool reports its input back as the result.
type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "Echoes its input" }
func (echoTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}}}`)
}
func (echoTool) Execute(ctx context.Context, input json.RawMessage) (*tools.ToolResult, error) {
	var args struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return nil, err
	}
	return &tools.ToolResult{Content: "echo: " + args.Text}, nil
}

func TestRunSimpleResponse(t *testing.T) {
	store := newTestStore(t)
	provider := &scriptedProvider{scripts: [][]ai.StreamEvent{
		{
			{Type: ai.EventTypeText, Text: "Hello, "},
			{Type: ai.EventTypeText, Text: "world!"},
			{Type: ai.EventTypeDone},
		},
	}}

	r := NewRunner(store, provider, tools.NewRegistry(), config.DefaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, err := r.Run(ctx, &Request{SessionKey: "test", Input: "Say hello"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var text string
	var gotDone bool
	for ev := range events {
		switch ev.Type {
		case ai.EventTypeText:
			text += ev.Text
		case ai.EventTypeDone:
			gotDone = true
		case ai.EventTypeError:
			t.Fatalf("unexpected error: %v", ev.Error)
		}
	}

	if text != "Hello, world!" {
		t.Errorf("expected 'Hello, world!', got %q", text)
	}
	if !gotDone {
		t.Error("expected done event")
	}

	// One provider call, user + assistant message persisted
	if provider.callCount != 1 {
		t.Errorf("expected 1 provider call, got %d", provider.callCount)
	}
	count, err := store.MessageCount("test")
	if err != nil {
		t.Fatalf("MessageCount failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 messages in session, got %d", count)
	}
}

func TestRunWithToolCall(t *testing.T) {
	store := newTestStore(t)
	provider := &scriptedProvider{scripts: [][]ai.StreamEvent{
		{
			{Type: ai.EventTypeToolCall, ToolCall: &ai.ToolCall{
				ID:    "call_1",
				Name:  "echo",
				Input: json.RawMessage(`{"text":"ping"}`),
			}},
			{Type: ai.EventTypeDone},
		},
		{
			{Type: ai.EventTypeText, Text: "The tool said ping."},
			{Type: ai.EventTypeDone},
		},
	}}

	registry := tools.NewRegistry()
	registry.Register(echoTool{})

	r := NewRunner(store, provider, registry, config.DefaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, err := r.Run(ctx, &Request{SessionKey: "tool-session", Input: "Use echo"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var gotToolCall, gotToolResult bool
	var toolResultText string
	for ev := range events {
		switch ev.Type {
		case ai.EventTypeToolCall:
			gotToolCall = true
		case ai.EventTypeToolResult:
			gotToolResult = true
			toolResultText = ev.Text
		case ai.EventTypeError:
			t.Fatalf("unexpected error: %v", ev.Error)
		}
	}

	if !gotToolCall {
		t.Error("expected tool call event")
	}
	if !gotToolResult {
		t.Error("expected tool result event")
	}
	if toolResultText != "echo: ping" {
		t.Errorf("expected tool result 'echo: ping', got %q", toolResultText)
	}
	if provider.callCount != 2 {
		t.Errorf("expected 2 provider calls, got %d", provider.callCount)
	}

	// user, assistant (tool call), tool results, final assistant
	count, err := store.MessageCount("tool-session")
	if err != nil {
		t.Fatalf("MessageCount failed: %v", err)
	}
	if count != 4 {
		t.Errorf("expected 4 messages in session, got %d", count)
	}
}

func TestRunUnknownToolBecomesErrorResult(t *testing.T) {
	store := newTestStore(t)
	provider := &scriptedProvider{scripts: [][]ai.StreamEvent{
		{
			{Type: ai.EventTypeToolCall, ToolCall: &ai.ToolCall{
				ID:    "call_1",
				Name:  "does_not_exist",
				Input: json.RawMessage(`{}`),
			}},
			{Type: ai.EventTypeDone},
		},
		{
			{Type: ai.EventTypeText, Text: "That tool is unavailable."},
			{Type: ai.EventTypeDone},
		},
	}}

	r := NewRunner(store, provider, tools.NewRegistry(), config.DefaultConfig())

	response, err := r.RunTurn(context.Background(), "missing-tool", "Try it", nil)
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	if response != "That tool is unavailable." {
		t.Errorf("unexpected response %q", response)
	}

	// The failed lookup is fed back to the model as an error result,
	// not surfaced as a turn failure.
	msgs, err := store.GetMessages("missing-tool", 0)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	var found bool
	for _, m := range msgs {
		if m.Role == "tool" && len(m.ToolResults) > 0 {
			var results []session.ToolResult
			if err := json.Unmarshal(m.ToolResults, &results); err != nil {
				t.Fatalf("bad tool results payload: %v", err)
			}
			for _, res := range results {
				if res.IsError {
					found = true
				}
			}
		}
	}
	if !found {
		t.Error("expected an error tool result in the session history")
	}
}

func TestRunTurnReturnsFinalText(t *testing.T) {
	store := newTestStore(t)
	provider := &scriptedProvider{scripts: [][]ai.StreamEvent{
		{
			{Type: ai.EventTypeText, Text: "Let me check."},
			{Type: ai.EventTypeToolCall, ToolCall: &ai.ToolCall{
				ID:    "call_1",
				Name:  "echo",
				Input: json.RawMessage(`{"text":"hi"}`),
			}},
			{Type: ai.EventTypeDone},
		},
		{
			{Type: ai.EventTypeText, Text: "All done."},
			{Type: ai.EventTypeDone},
		},
	}}

	registry := tools.NewRegistry()
	registry.Register(echoTool{})
	r := NewRunner(store, provider, registry, config.DefaultConfig())

	var emitted []ai.StreamEventType
	response, err := r.RunTurn(context.Background(), "turn", "Go", func(ev ai.StreamEvent) {
		emitted = append(emitted, ev.Type)
	})
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}

	// Intermediate reasoning before the tool call is not the answer.
	if response != "All done." {
		t.Errorf("expected 'All done.', got %q", response)
	}
	if len(emitted) == 0 {
		t.Error("expected events to be emitted")
	}
}

func TestRunProviderError(t *testing.T) {
	store := newTestStore(t)
	provider := &scriptedProvider{scripts: [][]ai.StreamEvent{
		{
			{Type: ai.EventTypeText, Text: "Partial"},
			{Type: ai.EventTypeError, Error: &ai.ProviderError{Message: "rate limited"}},
		},
	}}

	r := NewRunner(store, provider, tools.NewRegistry(), config.DefaultConfig())

	_, err := r.RunTurn(context.Background(), "err", "Hi", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("expected provider error, got %v", err)
	}
}

func TestRunMaxIterations(t *testing.T) {
	store := newTestStore(t)

	// Every call asks for another tool run; the loop must give up.
	script := []ai.StreamEvent{
		{Type: ai.EventTypeToolCall, ToolCall: &ai.ToolCall{
			ID:    "call_x",
			Name:  "echo",
			Input: json.RawMessage(`{"text":"again"}`),
		}},
		{Type: ai.EventTypeDone},
	}
	scripts := make([][]ai.StreamEvent, 10)
	for i := range scripts {
		scripts[i] = script
	}
	provider := &scriptedProvider{scripts: scripts}

	registry := tools.NewRegistry()
	registry.Register(echoTool{})

	cfg := config.DefaultConfig()
	cfg.MaxIterations = 3
	r := NewRunner(store, provider, registry, cfg)

	_, err := r.RunTurn(context.Background(), "loop", "Forever", nil)
	if err == nil {
		t.Fatal("expected iteration limit error")
	}
	if !strings.Contains(err.Error(), "3 iterations") {
		t.Errorf("unexpected error: %v", err)
	}
	if provider.callCount != 3 {
		t.Errorf("expected 3 provider calls, got %d", provider.callCount)
	}
}

func TestRunRejectsEmptyInput(t *testing.T) {
	store := newTestStore(t)
	r := NewRunner(store, &scriptedProvider{}, tools.NewRegistry(), config.DefaultConfig())

	if _, err := r.Run(context.Background(), &Request{SessionKey: "k"}); err == nil {
		t.Error("expected error for empty input")
	}
	if _, err := r.Run(context.Background(), &Request{Input: "hi"}); err == nil {
		t.Error("expected error for empty session key")
	}
}
