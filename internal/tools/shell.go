package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// maxShellOutput caps command output returned to the model.
const maxShellOutput = 50_000

// ShellTool executes shell commands in the workspace. It can be disabled
// entirely via config.
type ShellTool struct {
	workspace string
	enabled   bool
}

// NewShellTool creates a shell tool rooted at the workspace
func NewShellTool(workspace string, enabled bool) *ShellTool {
	return &ShellTool{workspace: workspace, enabled: enabled}
}

// Name returns the tool name
func (t *ShellTool) Name() string {
	return "shell"
}

// Description returns the tool description
func (t *ShellTool) Description() string {
	return "Execute a bash command in the workspace directory. " +
		"Use for running scripts and system operations. " +
		"Prefer the files tool for plain file operations."
}

// Schema returns the JSON schema for the tool input
func (t *ShellTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {
				"type": "string",
				"description": "The bash command to execute"
			},
			"timeout": {
				"type": "integer",
				"description": "Timeout in seconds (default: 120)"
			}
		},
		"required": ["command"]
	}`)
}

type shellInput struct {
	Command string `json:"command"`
	Timeout int    `json:"timeout"`
}

// Execute runs the command
func (t *ShellTool) Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
	if !t.enabled {
		return &ToolResult{
			Content: "Shell tool is disabled in configuration",
			IsError: true,
		}, nil
	}

	var in shellInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if in.Command == "" {
		return &ToolResult{
			Content: "Error: command is required",
			IsError: true,
		}, nil
	}

	timeout := 120 * time.Second
	if in.Timeout > 0 {
		timeout = time.Duration(in.Timeout) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "bash", "-c", in.Command)
	cmd.Dir = t.workspace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	var result strings.Builder
	if stdout.Len() > 0 {
		result.WriteString(stdout.String())
	}
	if stderr.Len() > 0 {
		if result.Len() > 0 {
			result.WriteString("\n")
		}
		result.WriteString("STDERR:\n")
		result.WriteString(stderr.String())
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return &ToolResult{
				Content: fmt.Sprintf("Command timed out after %v\n%s", timeout, result.String()),
				IsError: true,
			}, nil
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			return &ToolResult{
				Content: fmt.Sprintf("Command exited with code %d\n%s", exitErr.ExitCode(), result.String()),
				IsError: true,
			}, nil
		}
		return &ToolResult{
			Content: fmt.Sprintf("Command failed: %v\n%s", err, result.String()),
			IsError: true,
		}, nil
	}

	output := result.String()
	if output == "" {
		output = "(no output)"
	}
	if len(output) > maxShellOutput {
		output = output[:maxShellOutput] + "\n... (output truncated)"
	}

	return &ToolResult{Content: output}, nil
}
