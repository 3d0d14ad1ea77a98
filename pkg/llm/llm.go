// Package llm defines the provider-agnostic model client interface used by
// the turn resolver, plus shared request/response types. Provider
// implementations live in subpackages.
package llm

import (
	"context"
	"time"

	"gameagent/pkg/tools"
)

// GenerateRequest is one stateless model call. The conversation accumulator
// folds prior exchanges into Text, so providers never see message history.
type GenerateRequest struct {
	// System is the system prompt, may be empty.
	System string
	// Text is the full accumulated user-visible prompt.
	Text string
	// Tools lists the tool definitions offered for this call. Empty on the
	// forced final round.
	Tools []tools.ToolDefinition
	// ForceTools requires the model to call at least one tool when set.
	ForceTools bool
	// ThinkingBudget is the extended-thinking token allowance; zero disables
	// thinking on providers that support it.
	ThinkingBudget int
	// MaxTokens caps the visible completion length.
	MaxTokens int
	// Temperature controls sampling; ignored when thinking is enabled on
	// providers that disallow the combination.
	Temperature float64
}

// TokenCounts reports token usage for one model call. Providers that do not
// report a field leave it at the byte-length/4 estimate or zero.
type TokenCounts struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Thinking   int `json:"thinking"`
}

// Total returns the summed token count across all categories.
func (t TokenCounts) Total() int {
	return t.Prompt + t.Completion + t.Thinking
}

// GenerateResult is the outcome of one successful model call.
type GenerateResult struct {
	// Text is the concatenated visible text output.
	Text string
	// ToolRequests holds any tool invocations the model asked for, in order.
	ToolRequests []tools.ToolRequest
	// Tokens reports usage for this call.
	Tokens TokenCounts
	// Latency is wall-clock time spent in the provider API call.
	Latency time.Duration
	// StopReason is the provider's termination reason, normalized to its
	// string form.
	StopReason string
}

// Client is the minimal surface a model provider must implement.
type Client interface {
	// Generate performs one model call. Failures return a classified
	// *llmerrors.Error.
	Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error)
	// ModelName returns the provider-side model identifier.
	ModelName() string
}
