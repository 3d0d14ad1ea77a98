// Package config provides configuration loading, validation, and management
// for the agent engine. It handles YAML config files and environment variable
// substitution for API keys.
package config

// Provider name constants.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
	ProviderMock      = "mock"
)

// Known model name constants.
const (
	ModelClaudeSonnetLatest = "claude-sonnet-4-20250514"
	ModelGPT5               = "gpt-5"
	ModelGeminiFlash        = "gemini-2.5-flash"
	ModelOllamaDefault      = "qwen3:8b"
)

// Default turn-loop settings.
const (
	// DefaultIterationBudget is how many tool-calling rounds a turn may use
	// before the final tool-free round is forced.
	DefaultIterationBudget = 4

	// DefaultThinkingBudget is the flat per-round thinking token budget used
	// when no schedule is configured.
	DefaultThinkingBudget = 2048

	// DefaultChatWindow is how many recent chat lines each prompt carries.
	DefaultChatWindow = 12

	// DefaultMaxReplyTokens bounds a single model reply.
	DefaultMaxReplyTokens = 4096

	// DefaultStatusDwellMs is the minimum on-screen dwell between status
	// phase transitions, for human observers only.
	DefaultStatusDwellMs = 350
)

// ModelCfg defines the configuration for one LLM model including rate limits
// and cost accounting.
type ModelCfg struct {
	Provider           string  `yaml:"provider"` // anthropic, openai, google, ollama, mock
	Name               string  `yaml:"name"`
	APIKeyEnv          string  `yaml:"api_key_env,omitempty"` // Env var holding the API key
	Host               string  `yaml:"host,omitempty"`        // Ollama server URL
	MaxContextTokens   int     `yaml:"max_context_tokens"`
	MaxReplyTokens     int     `yaml:"max_reply_tokens"`
	MaxTokensPerMinute int     `yaml:"max_tokens_per_minute"`
	CpmTokensIn        float64 `yaml:"cpm_tokens_in"`  // USD per million input tokens
	CpmTokensOut       float64 `yaml:"cpm_tokens_out"` // USD per million output tokens
}

// TurnLoopConfig controls the turn-resolution conversation loop.
type TurnLoopConfig struct {
	IterationBudget int   `yaml:"iteration_budget"`
	ThinkingBudgets []int `yaml:"thinking_budgets,omitempty"` // One per round; flat default when empty
	MaxReplyTokens  int   `yaml:"max_reply_tokens"`
}

// ParserConfig controls response parsing behavior.
type ParserConfig struct {
	EnableRepairs bool `yaml:"enable_repairs"`
	StrictMode    bool `yaml:"strict_mode"`
}

// ChatConfig controls the shared chat history.
type ChatConfig struct {
	Window          int `yaml:"window"`            // Lines carried into each prompt
	MaxMessageChars int `yaml:"max_message_chars"` // Spoken lines longer than this are truncated
}

// OverrideConfig controls manual operator override of model actions.
type OverrideConfig struct {
	Enabled bool `yaml:"enabled"`
}

// StatusConfig controls the advisory status broadcast.
type StatusConfig struct {
	MinDwellMs int `yaml:"min_dwell_ms"`
}

// StorageConfig names on-disk locations for session artifacts.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	EventLogDir  string `yaml:"event_log_dir"`
}

// MetricsConfig controls Prometheus integration.
type MetricsConfig struct {
	PrometheusURL string `yaml:"prometheus_url,omitempty"`
}

// Config is the root configuration for the agent engine.
type Config struct {
	Models   []ModelCfg     `yaml:"models"`
	Model    string         `yaml:"model"` // Name of the active model in Models
	TurnLoop TurnLoopConfig `yaml:"turn_loop"`
	Parser   ParserConfig   `yaml:"parser"`
	Chat     ChatConfig     `yaml:"chat"`
	Override OverrideConfig `yaml:"override"`
	Status   StatusConfig   `yaml:"status"`
	Storage  StorageConfig  `yaml:"storage"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ActiveModel returns the configuration for the selected model.
func (c *Config) ActiveModel() *ModelCfg {
	for i := range c.Models {
		if c.Models[i].Name == c.Model {
			return &c.Models[i]
		}
	}
	if len(c.Models) > 0 {
		return &c.Models[0]
	}
	return nil
}
