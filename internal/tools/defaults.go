package tools

import (
	"github.com/wayfarerhq/wayfarer/internal/config"
)

// NewDefaultRegistry registers the standard tool set from config
func NewDefaultRegistry(cfg *config.Config) *Registry {
	r := NewRegistry()
	r.Register(NewFilesTool(cfg.Workspace))
	r.Register(NewShellTool(cfg.Workspace, cfg.ShellEnabled))
	r.Register(NewBrowserTool(BrowserConfig{
		Headless:  cfg.BrowserHeadless,
		Workspace: cfg.Workspace,
	}))
	return r
}
