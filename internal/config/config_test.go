package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.LLM.Provider != "openai" {
		t.Errorf("expected openai, got %s", cfg.LLM.Provider)
	}
	if cfg.Agent.MaxIters != 10 {
		t.Errorf("expected 10 iters, got %d", cfg.Agent.MaxIters)
	}
	if cfg.Code.Runner != "subprocess" {
		t.Errorf("expected subprocess, got %s", cfg.Code.Runner)
	}
	if cfg.LLM.Temperature != nil {
		t.Errorf("expected nil temperature, got %v", *cfg.LLM.Temperature)
	}
}

func TestLoadFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte(`
[llm]
provider = "ollama"
model = "llama3"
temperature = 0.2

[agent]
max_iters = 3
`), 0644)

	cfg := Load(path)
	if cfg.LLM.Provider != "ollama" {
		t.Errorf("expected ollama, got %s", cfg.LLM.Provider)
	}
	if cfg.LLM.Temperature == nil || *cfg.LLM.Temperature != 0.2 {
		t.Errorf("expected temperature 0.2, got %v", cfg.LLM.Temperature)
	}
	if cfg.Agent.MaxIters != 3 {
		t.Errorf("expected 3 iters, got %d", cfg.Agent.MaxIters)
	}
	// Defaults preserved
	if cfg.Agent.Name != "parley" {
		t.Errorf("default should be preserved, got %s", cfg.Agent.Name)
	}
	if cfg.Code.Runner != "subprocess" {
		t.Errorf("default should be preserved, got %s", cfg.Code.Runner)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("PARLEY_LLM_API_KEY", "env-key")
	t.Setenv("PARLEY_WORKSPACE", "/tmp/ws")

	cfg := Load("/nonexistent/path.toml")
	if cfg.LLM.APIKey != "env-key" {
		t.Errorf("expected env-key, got %s", cfg.LLM.APIKey)
	}
	if cfg.Workspace.Path != "/tmp/ws" {
		t.Errorf("expected /tmp/ws, got %s", cfg.Workspace.Path)
	}
}

func TestEnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte(`
[llm]
api_key = "file-key"
`), 0644)
	t.Setenv("PARLEY_LLM_API_KEY", "env-key")

	cfg := Load(path)
	if cfg.LLM.APIKey != "env-key" {
		t.Errorf("env should win, got %s", cfg.LLM.APIKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if cfg.LLM.Provider != "openai" {
		t.Errorf("expected defaults for missing file, got %s", cfg.LLM.Provider)
	}
}
