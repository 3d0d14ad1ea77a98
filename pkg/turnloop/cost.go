package turnloop

import (
	"gameagent/pkg/config"
	"gameagent/pkg/llm"
)

const tokensPerMillion = 1_000_000.0

// estimateCost prices one turn's token usage against the model's configured
// per-million rates. Thinking tokens bill at the output rate.
func estimateCost(cfg *config.ModelCfg, tokens llm.TokenCounts) float64 {
	if cfg == nil {
		return 0
	}
	in := float64(tokens.Prompt) / tokensPerMillion * cfg.CpmTokensIn
	out := float64(tokens.Completion+tokens.Thinking) / tokensPerMillion * cfg.CpmTokensOut
	return in + out
}
