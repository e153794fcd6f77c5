package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadFrom(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Port != 8321 {
		t.Errorf("Port = %d, want 8321", cfg.Port)
	}
	if cfg.Provider != "anthropic" {
		t.Errorf("Provider = %q, want anthropic", cfg.Provider)
	}
	if !cfg.ShellEnabled {
		t.Error("ShellEnabled should default to true")
	}
}

func TestLoadFromExpandsEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WAYFARER_TEST_KEY", "sk-test-123")

	yaml := "provider: openai\nmodel: gpt-4o\napi_key: ${WAYFARER_TEST_KEY}\nport: 9000\n"
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.APIKey != "sk-test-123" {
		t.Errorf("APIKey = %q, want expanded env value", cfg.APIKey)
	}
	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port)
	}
	if cfg.Model != "gpt-4o" {
		t.Errorf("Model = %q, want gpt-4o", cfg.Model)
	}
}

func TestLoadFromReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("WAYFARER_DOTENV_KEY=from-dotenv\n"), 0600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("api_key: ${WAYFARER_DOTENV_KEY}\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.APIKey != "from-dotenv" {
		t.Errorf("APIKey = %q, want value from .env", cfg.APIKey)
	}
}

func TestProviderEnvFallback(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-fallback")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.APIKey != "sk-ant-fallback" {
		t.Errorf("APIKey = %q, want provider env fallback", cfg.APIKey)
	}
}

func TestPublicOmitsSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIKey = "sk-secret"

	pub := cfg.Public()
	for k, v := range pub {
		if s, ok := v.(string); ok && s == "sk-secret" {
			t.Errorf("Public() leaked API key under %q", k)
		}
	}
	if pub["configured"] != true {
		t.Error("configured should be true when a key is set")
	}
}
