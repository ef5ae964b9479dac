package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type Config struct {
	LLM       LLMConfig       `toml:"llm"`
	Agent     AgentConfig     `toml:"agent"`
	Workspace WorkspaceConfig `toml:"workspace"`
	Session   SessionConfig   `toml:"session"`
	Code      CodeConfig      `toml:"code"`
	Observer  ObserverConfig  `toml:"observer"`
}

type LLMConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`

	// Optional generation knobs; nil leaves the provider default.
	Temperature *float64 `toml:"temperature"`
	TopP        *float64 `toml:"top_p"`
	MaxTokens   *int     `toml:"max_tokens"`
	Thinking    *bool    `toml:"thinking"`
}

type AgentConfig struct {
	Name               string `toml:"name"`
	SystemPrompt       string `toml:"system_prompt"`
	MaxIters           int    `toml:"max_iters"`
	ParallelTools      bool   `toml:"parallel_tools"`
	ToolTimeoutSeconds int    `toml:"tool_timeout_seconds"`
	TokenBudget        int    `toml:"token_budget"`
}

type WorkspaceConfig struct {
	Path    string `toml:"path"`
	DocsDir string `toml:"docs_dir"`
}

type SessionConfig struct {
	Dir string `toml:"dir"`
}

type CodeConfig struct {
	Enabled        bool   `toml:"enabled"`
	Runner         string `toml:"runner"` // "subprocess" or "docker"
	Image          string `toml:"image"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "/tmp"
	}
	return Config{
		LLM: LLMConfig{Provider: "openai", Model: "gpt-4o-mini"},
		Agent: AgentConfig{
			Name:         "parley",
			SystemPrompt: "You are a helpful assistant. Use the available tools when they help you answer.",
			MaxIters:     10,
			TokenBudget:  32000,
		},
		Workspace: WorkspaceConfig{Path: filepath.Join(home, "parley-workspace")},
		Session:   SessionConfig{Dir: filepath.Join(home, ".parley", "sessions")},
		Code:      CodeConfig{Runner: "subprocess", TimeoutSeconds: 30},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "parley.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("PARLEY_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("PARLEY_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("PARLEY_WORKSPACE"); v != "" {
		cfg.Workspace.Path = v
	}
	if os.Getenv("PARLEY_OBSERVER_ENABLED") == "true" || os.Getenv("PARLEY_OBSERVER_ENABLED") == "1" {
		cfg.Observer.Enabled = true
	}

	// Fallbacks
	if cfg.Agent.Name == "" {
		cfg.Agent.Name = "parley"
	}
	if cfg.Code.Runner == "" {
		cfg.Code.Runner = "subprocess"
	}

	return cfg
}
