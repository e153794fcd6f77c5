package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the wayfarer daemon configuration
type Config struct {
	// Server settings
	Host string `yaml:"host"` // default 127.0.0.1
	Port int    `yaml:"port"` // default 8321

	// Provider settings
	Provider  string `yaml:"provider"`   // "anthropic", "openai" or "ollama"
	Model     string `yaml:"model"`      // model ID, provider default when empty
	APIKey    string `yaml:"api_key"`    // expanded from env, falls back to provider env var
	OllamaURL string `yaml:"ollama_url"` // base URL for local models, default http://localhost:11434

	// Agent settings
	Workspace     string `yaml:"workspace"`      // sandbox root for file operations
	MaxIterations int    `yaml:"max_iterations"` // agentic loop safety limit

	// Tool settings
	ShellEnabled    bool `yaml:"shell_enabled"`
	BrowserHeadless bool `yaml:"browser_headless"`

	// Storage
	DataDir string `yaml:"data_dir"` // ~/.wayfarer
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Host:            "127.0.0.1",
		Port:            8321,
		Provider:        "anthropic",
		Workspace:       defaultWorkspace(),
		MaxIterations:   25,
		ShellEnabled:    true,
		BrowserHeadless: true,
		DataDir:         DefaultDataDir(),
	}
}

// DefaultDataDir returns the default data directory (~/.wayfarer)
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wayfarer"
	}
	return filepath.Join(home, ".wayfarer")
}

func defaultWorkspace() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "wayfarer-workspace"
	}
	return filepath.Join(home, "wayfarer-workspace")
}

// Path returns the default config file location
func Path() string {
	return filepath.Join(DefaultDataDir(), "config.yaml")
}

// Load loads config from ~/.wayfarer/config.yaml, layering a .env file from
// the same directory into the process environment first so ${VAR} expansion
// and provider key lookup see it.
func Load() (*Config, error) {
	return LoadFrom(Path())
}

// LoadFrom loads config from a specific path. A missing file yields defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	// Best effort; a missing .env is not an error.
	godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.resolveAPIKey()
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.APIKey = os.ExpandEnv(cfg.APIKey)
	cfg.Workspace = expandHome(cfg.Workspace)
	cfg.DataDir = expandHome(cfg.DataDir)
	cfg.resolveAPIKey()

	return cfg, nil
}

// resolveAPIKey falls back to the provider's conventional env var when no key
// is set in config
func (c *Config) resolveAPIKey() {
	if c.APIKey != "" {
		return
	}
	switch c.Provider {
	case "openai":
		c.APIKey = os.Getenv("OPENAI_API_KEY")
	case "ollama":
		// local models need no key
	default:
		c.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
}

// Save writes the config to <data_dir>/config.yaml
func (c *Config) Save() error {
	if err := os.MkdirAll(c.DataDir, 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(c.DataDir, "config.yaml"), data, 0600)
}

// DBPath returns the path to the SQLite database
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "wayfarer.db")
}

// EnsureDirs creates the data and workspace directories if needed
func (c *Config) EnsureDirs() error {
	if err := os.MkdirAll(c.DataDir, 0700); err != nil {
		return err
	}
	return os.MkdirAll(c.Workspace, 0755)
}

// Configured reports whether a provider key is available. Local models need
// no key.
func (c *Config) Configured() bool {
	return c.APIKey != "" || c.Provider == "ollama"
}

// Public returns the non-secret view served by the config endpoint
func (c *Config) Public() map[string]any {
	return map[string]any{
		"provider":      c.Provider,
		"model":         c.Model,
		"workspace":     c.Workspace,
		"shell_enabled": c.ShellEnabled,
		"configured":    c.Configured(),
	}
}

func expandHome(p string) string {
	if len(p) < 2 || p[:2] != "~/" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
