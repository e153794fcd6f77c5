package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wayfarerhq/wayfarer/internal/agent/ai"
)

func execTool(t *testing.T, tool Tool, input any) *ToolResult {
	t.Helper()
	data, err := json.Marshal(input)
	if err != nil {
		t.Fatal(err)
	}
	result, err := tool.Execute(context.Background(), data)
	if err != nil {
		t.Fatal(err)
	}
	return result
}

func TestFilesWriteAndRead(t *testing.T) {
	tool := NewFilesTool(t.TempDir())

	result := execTool(t, tool, filesInput{Action: "write", Path: "notes/hello.txt", Content: "hello world"})
	if result.IsError {
		t.Fatalf("write failed: %s", result.Content)
	}

	result = execTool(t, tool, filesInput{Action: "read", Path: "notes/hello.txt"})
	if result.IsError {
		t.Fatalf("read failed: %s", result.Content)
	}
	if result.Content != "hello world" {
		t.Errorf("expected 'hello world', got %q", result.Content)
	}
}

func TestFilesPathEscapeBlocked(t *testing.T) {
	tool := NewFilesTool(t.TempDir())

	for _, path := range []string{"../outside.txt", "../../etc/passwd", "a/../../b"} {
		result := execTool(t, tool, filesInput{Action: "read", Path: path})
		if !result.IsError {
			t.Errorf("expected error for escaping path %q", path)
		}
		if !strings.Contains(result.Content, "Access denied") {
			t.Errorf("expected access denied for %q, got %q", path, result.Content)
		}
	}
}

func TestFilesListAndDelete(t *testing.T) {
	ws := t.TempDir()
	tool := NewFilesTool(ws)

	execTool(t, tool, filesInput{Action: "write", Path: "a.txt", Content: "a"})
	execTool(t, tool, filesInput{Action: "mkdir", Path: "sub"})

	result := execTool(t, tool, filesInput{Action: "list"})
	if result.IsError {
		t.Fatalf("list failed: %s", result.Content)
	}
	if !strings.Contains(result.Content, "a.txt") || !strings.Contains(result.Content, "sub/") {
		t.Errorf("listing missing entries: %q", result.Content)
	}

	result = execTool(t, tool, filesInput{Action: "delete", Path: "a.txt"})
	if result.IsError {
		t.Fatalf("delete failed: %s", result.Content)
	}
	if _, err := os.Stat(filepath.Join(ws, "a.txt")); !os.IsNotExist(err) {
		t.Error("file still exists after delete")
	}
}

func TestFilesDeleteWorkspaceRootBlocked(t *testing.T) {
	tool := NewFilesTool(t.TempDir())

	result := execTool(t, tool, filesInput{Action: "delete", Path: "."})
	if !result.IsError {
		t.Error("expected error deleting workspace root")
	}
}

func TestFilesMoveAndCopy(t *testing.T) {
	tool := NewFilesTool(t.TempDir())

	execTool(t, tool, filesInput{Action: "write", Path: "src.txt", Content: "data"})

	result := execTool(t, tool, filesInput{Action: "copy", Path: "src.txt", Destination: "copy.txt"})
	if result.IsError {
		t.Fatalf("copy failed: %s", result.Content)
	}

	result = execTool(t, tool, filesInput{Action: "move", Path: "src.txt", Destination: "moved.txt"})
	if result.IsError {
		t.Fatalf("move failed: %s", result.Content)
	}

	result = execTool(t, tool, filesInput{Action: "read", Path: "moved.txt"})
	if result.Content != "data" {
		t.Errorf("moved file content = %q", result.Content)
	}
	result = execTool(t, tool, filesInput{Action: "read", Path: "src.txt"})
	if !result.IsError {
		t.Error("source should be gone after move")
	}
}

func TestShellTool(t *testing.T) {
	tool := NewShellTool(t.TempDir(), true)

	result := execTool(t, tool, shellInput{Command: "echo hello"})
	if result.IsError {
		t.Fatalf("command failed: %s", result.Content)
	}
	if !strings.Contains(result.Content, "hello") {
		t.Errorf("expected 'hello' in output, got %q", result.Content)
	}
}

func TestShellToolExitCode(t *testing.T) {
	tool := NewShellTool(t.TempDir(), true)

	result := execTool(t, tool, shellInput{Command: "exit 3"})
	if !result.IsError {
		t.Error("expected error result for non-zero exit")
	}
	if !strings.Contains(result.Content, "exited with code 3") {
		t.Errorf("expected exit code in output, got %q", result.Content)
	}
}

func TestShellToolDisabled(t *testing.T) {
	tool := NewShellTool(t.TempDir(), false)

	result := execTool(t, tool, shellInput{Command: "echo hi"})
	if !result.IsError {
		t.Error("expected error when shell is disabled")
	}
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()

	result := r.Execute(context.Background(), &ai.ToolCall{Name: "nope", Input: json.RawMessage(`{}`)})
	if !result.IsError {
		t.Error("expected error for unknown tool")
	}
}

// closeRecorder is a no-op tool that records whether Close was called.
type closeRecorder struct {
	closed bool
}

func (c *closeRecorder) Name() string            { return "recorder" }
func (c *closeRecorder) Description() string     { return "records close" }
func (c *closeRecorder) Schema() json.RawMessage { return json.RawMessage(`{}`) }
func (c *closeRecorder) Close()                  { c.closed = true }
func (c *closeRecorder) Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
	return &ToolResult{Content: "ok"}, nil
}

func TestRegistryCloseReleasesTools(t *testing.T) {
	r := NewRegistry()
	recorder := &closeRecorder{}
	r.Register(recorder)
	r.Register(NewFilesTool(t.TempDir())) // no Close method, must be skipped

	r.Close()
	if !recorder.closed {
		t.Error("expected Close to reach the registered tool")
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	r.Register(NewFilesTool(t.TempDir()))
	r.Register(NewShellTool(t.TempDir(), true))

	defs := r.List()
	if len(defs) != 2 {
		t.Fatalf("expected 2 tool definitions, got %d", len(defs))
	}
	for _, def := range defs {
		if def.Name == "" || def.Description == "" || len(def.InputSchema) == 0 {
			t.Errorf("incomplete definition: %+v", def)
		}
	}
}
