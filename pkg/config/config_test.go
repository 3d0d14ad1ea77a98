package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.TurnLoop.IterationBudget != DefaultIterationBudget {
		t.Errorf("iteration budget = %d, want %d", cfg.TurnLoop.IterationBudget, DefaultIterationBudget)
	}
	if cfg.ActiveModel() == nil {
		t.Fatal("default config has no active model")
	}
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
models:
  - provider: mock
    name: mock-model
  - provider: ollama
    name: qwen3:8b
model: mock-model
turn_loop:
  iteration_budget: 2
  thinking_budgets: [1024, 256]
parser:
  enable_repairs: true
chat:
  window: 8
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.TurnLoop.IterationBudget != 2 {
		t.Errorf("iteration budget = %d, want 2", cfg.TurnLoop.IterationBudget)
	}
	if len(cfg.TurnLoop.ThinkingBudgets) != 2 || cfg.TurnLoop.ThinkingBudgets[0] != 1024 {
		t.Errorf("thinking budgets = %v", cfg.TurnLoop.ThinkingBudgets)
	}
	if !cfg.Parser.EnableRepairs {
		t.Error("enable_repairs not loaded")
	}
	if cfg.Chat.Window != 8 {
		t.Errorf("chat window = %d, want 8", cfg.Chat.Window)
	}

	active := cfg.ActiveModel()
	if active == nil || active.Provider != ProviderMock {
		t.Errorf("active model = %+v", active)
	}

	// Ollama host defaulted.
	if cfg.Models[1].Host != "http://localhost:11434" {
		t.Errorf("ollama host = %q", cfg.Models[1].Host)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	cfg := &Config{
		Models: []ModelCfg{{Provider: "bedrock", Name: "x"}},
		Model:  "x",
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestValidateRejectsDuplicateModelNames(t *testing.T) {
	cfg := &Config{
		Models: []ModelCfg{
			{Provider: ProviderMock, Name: "m"},
			{Provider: ProviderOllama, Name: "m"},
		},
		Model: "m",
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for duplicate model names")
	}
}

func TestValidateRejectsMissingActiveModel(t *testing.T) {
	cfg := &Config{
		Models: []ModelCfg{{Provider: ProviderMock, Name: "m"}},
		Model:  "other",
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when active model is absent")
	}
}

func TestValidateRejectsShortThinkingSchedule(t *testing.T) {
	cfg := &Config{
		Models:   []ModelCfg{{Provider: ProviderMock, Name: "m"}},
		Model:    "m",
		TurnLoop: TurnLoopConfig{IterationBudget: 4, ThinkingBudgets: []int{1024}},
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for schedule shorter than the budget")
	}
}

func TestAPIKeyFromEnvironment(t *testing.T) {
	t.Setenv("TEST_ENGINE_KEY", "sk-test")

	m := &ModelCfg{APIKeyEnv: "TEST_ENGINE_KEY"}
	if got := m.APIKey(); got != "sk-test" {
		t.Errorf("APIKey() = %q", got)
	}

	none := &ModelCfg{}
	if got := none.APIKey(); got != "" {
		t.Errorf("APIKey() without env = %q", got)
	}
}
