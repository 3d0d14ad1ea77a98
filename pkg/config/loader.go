package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads, defaults, and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &cfg, nil
}

// Default returns a usable configuration without a config file.
// API keys still come from the environment.
func Default() *Config {
	cfg := &Config{
		Models: []ModelCfg{
			{
				Provider:  ProviderAnthropic,
				Name:      ModelClaudeSonnetLatest,
				APIKeyEnv: "ANTHROPIC_API_KEY",
			},
		},
		Model: ModelClaudeSonnetLatest,
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.TurnLoop.IterationBudget <= 0 {
		c.TurnLoop.IterationBudget = DefaultIterationBudget
	}
	if c.TurnLoop.MaxReplyTokens <= 0 {
		c.TurnLoop.MaxReplyTokens = DefaultMaxReplyTokens
	}
	if c.Chat.Window <= 0 {
		c.Chat.Window = DefaultChatWindow
	}
	if c.Chat.MaxMessageChars <= 0 {
		c.Chat.MaxMessageChars = 4096
	}
	if c.Status.MinDwellMs <= 0 {
		c.Status.MinDwellMs = DefaultStatusDwellMs
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "session.db"
	}
	if c.Storage.EventLogDir == "" {
		c.Storage.EventLogDir = "logs"
	}

	for i := range c.Models {
		m := &c.Models[i]
		if m.MaxContextTokens <= 0 {
			m.MaxContextTokens = 128000
		}
		if m.MaxReplyTokens <= 0 {
			m.MaxReplyTokens = DefaultMaxReplyTokens
		}
		if m.Provider == ProviderOllama && m.Host == "" {
			m.Host = "http://localhost:11434"
		}
	}

	if c.Model == "" && len(c.Models) > 0 {
		c.Model = c.Models[0].Name
	}
}

// Validate checks internal consistency of the configuration.
func (c *Config) Validate() error {
	if len(c.Models) == 0 {
		return fmt.Errorf("at least one model must be configured")
	}

	seen := make(map[string]bool, len(c.Models))
	for i := range c.Models {
		m := &c.Models[i]
		if m.Name == "" {
			return fmt.Errorf("model %d: name is required", i)
		}
		if seen[m.Name] {
			return fmt.Errorf("duplicate model name %q", m.Name)
		}
		seen[m.Name] = true

		switch m.Provider {
		case ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderOllama, ProviderMock:
		default:
			return fmt.Errorf("model %q: unknown provider %q", m.Name, m.Provider)
		}
	}

	if c.ActiveModel() == nil || c.ActiveModel().Name != c.Model {
		return fmt.Errorf("active model %q not present in models list", c.Model)
	}

	if len(c.TurnLoop.ThinkingBudgets) > 0 && len(c.TurnLoop.ThinkingBudgets) < c.TurnLoop.IterationBudget {
		return fmt.Errorf("thinking_budgets has %d entries but iteration_budget is %d",
			len(c.TurnLoop.ThinkingBudgets), c.TurnLoop.IterationBudget)
	}

	return nil
}

// APIKey resolves the API key for a model from the environment.
// Returns empty string for providers that need no key (ollama, mock).
func (m *ModelCfg) APIKey() string {
	if m.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(m.APIKeyEnv)
}
