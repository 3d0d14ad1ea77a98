// Package factory constructs model clients from configuration, wiring in
// provider selection and retry middleware.
package factory

import (
	"fmt"

	"gameagent/pkg/config"
	"gameagent/pkg/llm"
	"gameagent/pkg/llm/anthropic"
	"gameagent/pkg/llm/google"
	"gameagent/pkg/llm/ollama"
	"gameagent/pkg/llm/openai"
)

// NewClient builds the retry-wrapped client for a configured model.
func NewClient(cfg *config.ModelCfg) (llm.Client, error) {
	raw, err := newRawClient(cfg)
	if err != nil {
		return nil, err
	}
	return llm.NewRetryableClient(raw), nil
}

// newRawClient builds the bare provider client without middleware.
func newRawClient(cfg *config.ModelCfg) (llm.Client, error) {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		key := cfg.APIKey()
		if key == "" {
			return nil, fmt.Errorf("anthropic model %q: no API key in $%s", cfg.Name, cfg.APIKeyEnv)
		}
		return anthropic.New(key, cfg.Name), nil

	case config.ProviderOpenAI:
		key := cfg.APIKey()
		if key == "" {
			return nil, fmt.Errorf("openai model %q: no API key in $%s", cfg.Name, cfg.APIKeyEnv)
		}
		return openai.New(key, cfg.Name), nil

	case config.ProviderGoogle:
		key := cfg.APIKey()
		if key == "" {
			return nil, fmt.Errorf("google model %q: no API key in $%s", cfg.Name, cfg.APIKeyEnv)
		}
		return google.New(key, cfg.Name), nil

	case config.ProviderOllama:
		host := cfg.Host
		if host == "" {
			host = "http://localhost:11434"
		}
		return ollama.New(host, cfg.Name), nil

	case config.ProviderMock:
		return llm.NewMockClient(), nil

	default:
		return nil, fmt.Errorf("unsupported model provider %q", cfg.Provider)
	}
}
