package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

// maxReadBytes caps how much file content is returned to the model.
const maxReadBytes = 50_000

// FilesTool manages files inside the workspace directory. Every path is
// resolved relative to the workspace; escape attempts are rejected.
type FilesTool struct {
	workspace string
}

// NewFilesTool creates a files tool sandboxed to the given workspace
func NewFilesTool(workspace string) *FilesTool {
	return &FilesTool{workspace: workspace}
}

// Name returns the tool name
func (t *FilesTool) Name() string {
	return "files"
}

// Description returns the tool description
func (t *FilesTool) Description() string {
	return "Manage files in the workspace directory. Read, write, list, move, " +
		"copy, and delete files. All paths are relative to the workspace - " +
		"you cannot access files outside it."
}

// Schema returns the JSON schema for the tool input
func (t *FilesTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {
				"type": "string",
				"enum": ["read", "write", "list", "move", "copy", "delete", "mkdir", "info"],
				"description": "File action: read (requires path), write (requires path and content), list (optional path, default root), move (requires path and destination), copy (requires path and destination), delete (requires path), mkdir (requires path), info (requires path)"
			},
			"path": {"type": "string", "description": "File or directory path (relative to workspace)"},
			"content": {"type": "string", "description": "File content for write action"},
			"destination": {"type": "string", "description": "Destination path for move/copy"}
		},
		"required": ["action"]
	}`)
}

type filesInput struct {
	Action      string `json:"action"`
	Path        string `json:"path"`
	Content     string `json:"content"`
	Destination string `json:"destination"`
}

// Execute runs the requested file action
func (t *FilesTool) Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
	var in filesInput
	if err := json.Unmarshal(input, &in); err != nil {
		return &ToolResult{Content: fmt.Sprintf("Invalid input: %v", err), IsError: true}, nil
	}

	if err := os.MkdirAll(t.workspace, 0755); err != nil {
		return &ToolResult{Content: fmt.Sprintf("Error: %v", err), IsError: true}, nil
	}

	var content string
	var err error
	switch in.Action {
	case "read":
		content, err = t.read(in)
	case "write":
		content, err = t.write(in)
	case "list":
		content, err = t.list(in)
	case "move":
		content, err = t.move(in)
	case "copy":
		content, err = t.copy(in)
	case "delete":
		content, err = t.delete(in)
	case "mkdir":
		content, err = t.mkdir(in)
	case "info":
		content, err = t.info(in)
	default:
		return &ToolResult{Content: fmt.Sprintf("Unknown action: %s", in.Action), IsError: true}, nil
	}

	if err != nil {
		return &ToolResult{Content: err.Error(), IsError: true}, nil
	}
	return &ToolResult{Content: content}, nil
}

// resolve maps a tool-supplied path into the workspace, blocking escapes
func (t *FilesTool) resolve(path string) (string, error) {
	ws, err := filepath.Abs(t.workspace)
	if err != nil {
		return "", err
	}
	resolved := filepath.Clean(filepath.Join(ws, path))
	if resolved != ws && !strings.HasPrefix(resolved, ws+string(filepath.Separator)) {
		return "", fmt.Errorf("Access denied: path escapes workspace - %s", path)
	}
	return resolved, nil
}

func (t *FilesTool) read(in filesInput) (string, error) {
	if in.Path == "" {
		return "", fmt.Errorf("Error: 'path' required")
	}
	resolved, err := t.resolve(in.Path)
	if err != nil {
		return "", err
	}

	fi, err := os.Stat(resolved)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("File not found: %s", in.Path)
	}
	if err != nil {
		return "", err
	}
	if fi.IsDir() {
		return "", fmt.Errorf("'%s' is a directory. Use action='list' instead.", in.Path)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return fmt.Sprintf("Binary file (%d bytes). Cannot read as text.", len(data)), nil
	}
	if len(data) > maxReadBytes {
		return string(data[:maxReadBytes]) + fmt.Sprintf("\n\n... (truncated, %d chars total)", len(data)), nil
	}
	return string(data), nil
}

func (t *FilesTool) write(in filesInput) (string, error) {
	if in.Path == "" {
		return "", fmt.Errorf("Error: 'path' required")
	}
	resolved, err := t.resolve(in.Path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(resolved, []byte(in.Content), 0644); err != nil {
		return "", err
	}
	return fmt.Sprintf("Written: %s (%d chars)", in.Path, len(in.Content)), nil
}

func (t *FilesTool) list(in filesInput) (string, error) {
	path := in.Path
	if path == "" {
		path = "."
	}
	resolved, err := t.resolve(path)
	if err != nil {
		return "", err
	}

	entries, err := os.ReadDir(resolved)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("Directory not found: %s", path)
	}
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return fmt.Sprintf("(empty directory: %s)", path), nil
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	ws, _ := filepath.Abs(t.workspace)
	var lines []string
	for _, entry := range entries {
		rel, _ := filepath.Rel(ws, filepath.Join(resolved, entry.Name()))
		if entry.IsDir() {
			lines = append(lines, fmt.Sprintf("  %s/", rel))
			continue
		}
		var size int64
		if fi, err := entry.Info(); err == nil {
			size = fi.Size()
		}
		lines = append(lines, fmt.Sprintf("  %s (%s)", rel, humanSize(size)))
	}
	return strings.Join(lines, "\n"), nil
}

func (t *FilesTool) move(in filesInput) (string, error) {
	if in.Path == "" || in.Destination == "" {
		return "", fmt.Errorf("Error: 'path' and 'destination' required")
	}
	src, err := t.resolve(in.Path)
	if err != nil {
		return "", err
	}
	dst, err := t.resolve(in.Destination)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return "", fmt.Errorf("Source not found: %s", in.Path)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", err
	}
	if err := os.Rename(src, dst); err != nil {
		return "", err
	}
	return fmt.Sprintf("Moved: %s -> %s", in.Path, in.Destination), nil
}

func (t *FilesTool) copy(in filesInput) (string, error) {
	if in.Path == "" || in.Destination == "" {
		return "", fmt.Errorf("Error: 'path' and 'destination' required")
	}
	src, err := t.resolve(in.Path)
	if err != nil {
		return "", err
	}
	dst, err := t.resolve(in.Destination)
	if err != nil {
		return "", err
	}
	fi, err := os.Stat(src)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("Source not found: %s", in.Path)
	}
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", err
	}
	if fi.IsDir() {
		if err := copyDir(src, dst); err != nil {
			return "", err
		}
	} else {
		if err := copyFile(src, dst); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("Copied: %s -> %s", in.Path, in.Destination), nil
}

func (t *FilesTool) delete(in filesInput) (string, error) {
	if in.Path == "" {
		return "", fmt.Errorf("Error: 'path' required")
	}
	resolved, err := t.resolve(in.Path)
	if err != nil {
		return "", err
	}
	ws, _ := filepath.Abs(t.workspace)
	if resolved == ws {
		return "", fmt.Errorf("Error: cannot delete the workspace root")
	}

	fi, err := os.Stat(resolved)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("Not found: %s", in.Path)
	}
	if err != nil {
		return "", err
	}
	if err := os.RemoveAll(resolved); err != nil {
		return "", err
	}
	if fi.IsDir() {
		return fmt.Sprintf("Deleted directory: %s", in.Path), nil
	}
	return fmt.Sprintf("Deleted: %s", in.Path), nil
}

func (t *FilesTool) mkdir(in filesInput) (string, error) {
	if in.Path == "" {
		return "", fmt.Errorf("Error: 'path' required")
	}
	resolved, err := t.resolve(in.Path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(resolved, 0755); err != nil {
		return "", err
	}
	return fmt.Sprintf("Created directory: %s", in.Path), nil
}

func (t *FilesTool) info(in filesInput) (string, error) {
	if in.Path == "" {
		return "", fmt.Errorf("Error: 'path' required")
	}
	resolved, err := t.resolve(in.Path)
	if err != nil {
		return "", err
	}
	fi, err := os.Stat(resolved)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("Not found: %s", in.Path)
	}
	if err != nil {
		return "", err
	}

	kind := "file"
	if fi.IsDir() {
		kind = "directory"
	} else if ext := filepath.Ext(resolved); ext != "" {
		kind = ext
	}
	return fmt.Sprintf("Path: %s\nType: %s\nSize: %d bytes\nModified: %s",
		in.Path, kind, fi.Size(), fi.ModTime().Format("2006-01-02T15:04:05")), nil
}

func humanSize(size int64) string {
	switch {
	case size < 1024:
		return fmt.Sprintf("%dB", size)
	case size < 1024*1024:
		return fmt.Sprintf("%dKB", size/1024)
	default:
		return fmt.Sprintf("%dMB", size/(1024*1024))
	}
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	fi, err := os.Stat(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, fi.Mode())
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		return copyFile(path, target)
	})
}
