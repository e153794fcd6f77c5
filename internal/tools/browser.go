package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
)

// BrowserTool provides browser automation via the Chrome DevTools Protocol.
// One tab is kept alive across actions so page state survives between tool
// calls in a turn.
type BrowserTool struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	timeout     time.Duration
	workspace   string

	mu        sync.Mutex
	tabCtx    context.Context
	tabCancel context.CancelFunc
}

// BrowserConfig configures the browser tool
type BrowserConfig struct {
	Headless  bool
	Timeout   time.Duration // per-action timeout (default: 30s)
	Workspace string        // where relative screenshot paths land
}

// NewBrowserTool creates a browser tool. Chrome starts lazily on first use.
func NewBrowserTool(cfg BrowserConfig) *BrowserTool {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &BrowserTool{
		allocCtx:    allocCtx,
		allocCancel: cancel,
		timeout:     cfg.Timeout,
		workspace:   cfg.Workspace,
	}
}

// Close shuts down the browser
func (t *BrowserTool) Close() {
	t.mu.Lock()
	if t.tabCancel != nil {
		t.tabCancel()
		t.tabCtx = nil
		t.tabCancel = nil
	}
	t.mu.Unlock()
	if t.allocCancel != nil {
		t.allocCancel()
	}
}

// tab returns the persistent browser tab, creating it if needed
func (t *BrowserTool) tab() context.Context {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tabCtx == nil || t.tabCtx.Err() != nil {
		t.tabCtx, t.tabCancel = chromedp.NewContext(t.allocCtx)
	}
	return t.tabCtx
}

// Name returns the tool name
func (t *BrowserTool) Name() string {
	return "browser"
}

// Description returns the tool description
func (t *BrowserTool) Description() string {
	return "Automate browser interactions via the Chrome DevTools Protocol. " +
		"Navigate to URLs, click elements, type text, take screenshots, extract content, and run JavaScript."
}

// Schema returns the JSON schema for the tool input
func (t *BrowserTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {
				"type": "string",
				"enum": ["navigate", "click", "type", "screenshot", "text", "html", "evaluate", "wait"],
				"description": "Browser action: navigate (go to URL), click (click element), type (enter text), screenshot (capture page), text (get text content), html (get HTML), evaluate (run JS), wait (wait for element)"
			},
			"url": {
				"type": "string",
				"description": "URL to navigate to (required for 'navigate' action)"
			},
			"selector": {
				"type": "string",
				"description": "CSS selector for element (required for click, type, wait; optional for text, html)"
			},
			"text": {
				"type": "string",
				"description": "Text to type (for 'type' action) or JavaScript code (for 'evaluate' action)"
			},
			"output": {
				"type": "string",
				"description": "File path to save screenshot, relative to the workspace. If empty, returns base64."
			},
			"timeout": {
				"type": "integer",
				"description": "Action timeout in seconds. Default: 30"
			}
		},
		"required": ["action"]
	}`)
}

type browserInput struct {
	Action   string `json:"action"`
	URL      string `json:"url"`
	Selector string `json:"selector"`
	Text     string `json:"text"`
	Output   string `json:"output"`
	Timeout  int    `json:"timeout"`
}

// Execute runs a browser action
func (t *BrowserTool) Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
	var in browserInput
	if err := json.Unmarshal(input, &in); err != nil {
		return &ToolResult{
			Content: fmt.Sprintf("Failed to parse input: %v", err),
			IsError: true,
		}, nil
	}

	timeout := t.timeout
	if in.Timeout > 0 {
		timeout = time.Duration(in.Timeout) * time.Second
	}

	actionCtx, cancel := context.WithTimeout(t.tab(), timeout)
	defer cancel()

	var result string
	var err error

	switch in.Action {
	case "navigate":
		result, err = t.navigate(actionCtx, in.URL)
	case "click":
		result, err = t.click(actionCtx, in.Selector)
	case "type":
		result, err = t.typeText(actionCtx, in.Selector, in.Text)
	case "screenshot":
		result, err = t.screenshot(actionCtx, in.Output)
	case "text":
		result, err = t.getText(actionCtx, in.Selector)
	case "html":
		result, err = t.getHTML(actionCtx, in.Selector)
	case "evaluate":
		result, err = t.evaluate(actionCtx, in.Text)
	case "wait":
		result, err = t.waitFor(actionCtx, in.Selector)
	default:
		return &ToolResult{
			Content: fmt.Sprintf("Unknown action: %s", in.Action),
			IsError: true,
		}, nil
	}

	if err != nil {
		return &ToolResult{
			Content: fmt.Sprintf("%s failed: %v", in.Action, err),
			IsError: true,
		}, nil
	}

	return &ToolResult{Content: result}, nil
}

func (t *BrowserTool) navigate(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", fmt.Errorf("URL is required for navigate action")
	}

	var title string
	err := chromedp.Run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Title(&title),
	)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("Navigated to: %s\nPage title: %s", url, title), nil
}

func (t *BrowserTool) click(ctx context.Context, selector string) (string, error) {
	if selector == "" {
		return "", fmt.Errorf("selector is required for click action")
	}

	err := chromedp.Run(ctx,
		chromedp.WaitVisible(selector),
		chromedp.Click(selector),
	)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("Clicked element: %s", selector), nil
}

func (t *BrowserTool) typeText(ctx context.Context, selector, text string) (string, error) {
	if selector == "" {
		return "", fmt.Errorf("selector is required for type action")
	}
	if text == "" {
		return "", fmt.Errorf("text is required for type action")
	}

	err := chromedp.Run(ctx,
		chromedp.WaitVisible(selector),
		chromedp.Clear(selector),
		chromedp.SendKeys(selector, text),
	)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("Typed text into element: %s", selector), nil
}

func (t *BrowserTool) screenshot(ctx context.Context, outputPath string) (string, error) {
	var buf []byte
	err := chromedp.Run(ctx,
		chromedp.FullScreenshot(&buf, 90),
	)
	if err != nil {
		return "", err
	}

	if outputPath == "" {
		b64 := base64.StdEncoding.EncodeToString(buf)
		return fmt.Sprintf("Screenshot captured (%d bytes)\ndata:image/png;base64,%s", len(buf), b64), nil
	}

	if !filepath.IsAbs(outputPath) && t.workspace != "" {
		outputPath = filepath.Join(t.workspace, outputPath)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(outputPath, buf, 0644); err != nil {
		return "", fmt.Errorf("failed to save screenshot: %w", err)
	}

	return fmt.Sprintf("Screenshot saved to: %s (%d bytes)", outputPath, len(buf)), nil
}

func (t *BrowserTool) getText(ctx context.Context, selector string) (string, error) {
	if selector == "" {
		selector = "body"
	}

	var text string
	err := chromedp.Run(ctx,
		chromedp.WaitVisible(selector),
		chromedp.Text(selector, &text),
	)
	if err != nil {
		return "", err
	}

	if len(text) > 10000 {
		text = text[:10000] + "\n... (truncated)"
	}

	return text, nil
}

func (t *BrowserTool) getHTML(ctx context.Context, selector string) (string, error) {
	if selector == "" {
		selector = "html"
	}

	var html string
	err := chromedp.Run(ctx,
		chromedp.WaitReady(selector),
		chromedp.ActionFunc(func(ctx context.Context) error {
			node, err := dom.GetDocument().Do(ctx)
			if err != nil {
				return err
			}

			if selector == "html" {
				html, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
				return err
			}

			var nodes []*cdp.Node
			if err := chromedp.Nodes(selector, &nodes).Do(ctx); err != nil {
				return err
			}
			if len(nodes) == 0 {
				return fmt.Errorf("no element found for selector: %s", selector)
			}
			html, err = dom.GetOuterHTML().WithNodeID(nodes[0].NodeID).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return "", err
	}

	if len(html) > 50000 {
		html = html[:50000] + "\n... (truncated)"
	}

	return html, nil
}

func (t *BrowserTool) evaluate(ctx context.Context, js string) (string, error) {
	if js == "" {
		return "", fmt.Errorf("JavaScript code is required for evaluate action")
	}

	var result any
	err := chromedp.Run(ctx,
		chromedp.Evaluate(js, &result),
	)
	if err != nil {
		return "", err
	}

	switch v := result.(type) {
	case string:
		return v, nil
	case nil:
		return "undefined", nil
	default:
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Sprintf("%v", v), nil
		}
		return string(data), nil
	}
}

func (t *BrowserTool) waitFor(ctx context.Context, selector string) (string, error) {
	if selector == "" {
		return "", fmt.Errorf("selector is required for wait action")
	}

	if err := chromedp.Run(ctx, chromedp.WaitVisible(selector)); err != nil {
		return "", err
	}

	return fmt.Sprintf("Element visible: %s", selector), nil
}
