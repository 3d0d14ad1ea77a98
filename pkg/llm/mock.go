package llm

import (
	"context"
	"sync"
	"time"

	"gameagent/pkg/llm/llmerrors"
	"gameagent/pkg/utils"
)

// MockClient replays a scripted sequence of results. Used by tests and the
// "mock" provider for offline runs. Safe for concurrent use.
type MockClient struct {
	mu      sync.Mutex
	script  []MockReply
	calls   int
	repeats bool

	// Requests records every request received, in order.
	Requests []GenerateRequest
}

// MockReply is one scripted response. Err, when set, wins over Result.
type MockReply struct {
	Result GenerateResult
	Err    error
}

// NewMockClient creates a mock that replays the script in order. When the
// script is exhausted the last entry repeats.
func NewMockClient(script ...MockReply) *MockClient {
	return &MockClient{script: script, repeats: true}
}

// Generate implements Client.
func (m *MockClient) Generate(_ context.Context, req GenerateRequest) (GenerateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)

	if len(m.script) == 0 {
		return GenerateResult{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "mock client has no scripted replies")
	}

	idx := m.calls
	m.calls++
	if idx >= len(m.script) {
		if !m.repeats {
			return GenerateResult{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "mock script exhausted")
		}
		idx = len(m.script) - 1
	}

	reply := m.script[idx]
	if reply.Err != nil {
		return GenerateResult{}, reply.Err
	}

	result := reply.Result
	if result.Tokens == (TokenCounts{}) {
		result.Tokens = TokenCounts{
			Prompt:     utils.EstimateTokens(req.System + req.Text),
			Completion: utils.EstimateTokens(result.Text),
		}
	}
	if result.Latency == 0 {
		result.Latency = time.Millisecond
	}
	return result, nil
}

// ModelName implements Client.
func (m *MockClient) ModelName() string {
	return "mock"
}

// Calls returns how many times Generate was invoked.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
