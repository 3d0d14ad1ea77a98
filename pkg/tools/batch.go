package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"gameagent/pkg/logx"
	"gameagent/pkg/utils"
)

// ToolRequest is one tool invocation requested by the model. Parameters may
// arrive as a JSON-encoded string instead of a decoded object.
type ToolRequest struct {
	ID         string
	Name       string
	Parameters any
}

// ToolCall is one finalized tool invocation with its result and accounting.
// Immutable once the batch executor returns it.
type ToolCall struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Parameters   map[string]any `json:"parameters"`
	Result       any            `json:"result,omitempty"`
	Success      bool           `json:"success"`
	Error        string         `json:"error,omitempty"`
	Elapsed      time.Duration  `json:"elapsed_ns"`
	InputTokens  int            `json:"input_tokens"`
	OutputTokens int            `json:"output_tokens"`
}

// Batch is an ordered sequence of tool calls issued in one model turn.
type Batch struct {
	Calls []ToolCall `json:"calls"`
}

// Succeeded returns how many calls in the batch succeeded.
func (b *Batch) Succeeded() int {
	n := 0
	for i := range b.Calls {
		if b.Calls[i].Success {
			n++
		}
	}
	return n
}

// Failed returns how many calls in the batch failed.
func (b *Batch) Failed() int {
	return len(b.Calls) - b.Succeeded()
}

// TotalElapsed returns the summed execution time across the batch.
func (b *Batch) TotalElapsed() time.Duration {
	var total time.Duration
	for i := range b.Calls {
		total += b.Calls[i].Elapsed
	}
	return total
}

// TotalTokens returns input+output token estimates across the batch.
func (b *Batch) TotalTokens() int {
	total := 0
	for i := range b.Calls {
		total += b.Calls[i].InputTokens + b.Calls[i].OutputTokens
	}
	return total
}

// ExecutionSummary aggregates lifetime executor statistics.
type ExecutionSummary struct {
	Batches     int            `json:"batches"`
	Calls       int            `json:"calls"`
	Succeeded   int            `json:"succeeded"`
	Failed      int            `json:"failed"`
	SuccessRate float64        `json:"success_rate"`
	PerTool     map[string]int `json:"per_tool"`
	TotalTokens int            `json:"total_tokens"`
}

// Executor runs tool batches sequentially against the registry, capturing
// per-call timing, token estimates, and failures without aborting siblings.
type Executor struct {
	registry *Registry
	logger   *logx.Logger

	mu          sync.Mutex
	batches     int
	calls       int
	succeeded   int
	perTool     map[string]int
	totalTokens int
}

// NewExecutor creates a batch executor over the given registry.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{
		registry: registry,
		logger:   logx.NewLogger("tools"),
		perTool:  make(map[string]int),
	}
}

// ExecuteBatch runs the requested calls in order. A single call's failure is
// recorded on that call only; the rest of the batch still runs.
func (e *Executor) ExecuteBatch(ctx context.Context, requests []ToolRequest) *Batch {
	batch := &Batch{Calls: make([]ToolCall, 0, len(requests))}

	for i := range requests {
		batch.Calls = append(batch.Calls, e.executeOne(ctx, &requests[i]))
	}

	e.mu.Lock()
	e.batches++
	e.calls += len(batch.Calls)
	e.succeeded += batch.Succeeded()
	for i := range batch.Calls {
		e.perTool[batch.Calls[i].Name]++
	}
	e.totalTokens += batch.TotalTokens()
	e.mu.Unlock()

	e.logger.DebugDomain("tools", "Executed batch: %d calls, %d failed, %s elapsed",
		len(batch.Calls), batch.Failed(), batch.TotalElapsed())

	return batch
}

func (e *Executor) executeOne(ctx context.Context, req *ToolRequest) ToolCall {
	call := ToolCall{
		ID:         req.ID,
		Name:       req.Name,
		Parameters: decodeParameters(req.Parameters),
	}
	if call.ID == "" {
		call.ID = uuid.NewString()
	}

	paramsJSON, _ := json.Marshal(call.Parameters)
	call.InputTokens = utils.EstimateTokens(string(paramsJSON))

	start := time.Now()
	result, err := e.registry.Dispatch(ctx, req.Name, call.Parameters)
	call.Elapsed = time.Since(start)

	if err != nil {
		call.Success = false
		call.Error = err.Error()
		call.OutputTokens = utils.EstimateTokens(call.Error)
		e.logger.Warn("Tool %s failed after %.3fs: %v", req.Name, call.Elapsed.Seconds(), err)
		return call
	}

	call.Success = true
	call.Result = result
	resultJSON, _ := json.Marshal(result)
	call.OutputTokens = utils.EstimateTokens(string(resultJSON))
	return call
}

// decodeParameters tolerates parameters arriving as a JSON-encoded string,
// a decoded object, or nothing. Decode failures default to empty.
func decodeParameters(params any) map[string]any {
	switch p := params.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return p
	case string:
		var decoded map[string]any
		if err := json.Unmarshal([]byte(p), &decoded); err != nil || decoded == nil {
			return map[string]any{}
		}
		return decoded
	default:
		return map[string]any{}
	}
}

// FormatForReinjection renders the batch as a deterministic text block that
// is appended to the conversation before the next model call.
func FormatForReinjection(batch *Batch) string {
	var sb strings.Builder
	sb.WriteString("=== TOOL RESULTS ===\n")

	for i := range batch.Calls {
		call := &batch.Calls[i]
		if i > 0 {
			sb.WriteString("---\n")
		}

		paramsJSON, _ := json.Marshal(call.Parameters)
		fmt.Fprintf(&sb, "tool: %s\nparameters: %s\n", call.Name, paramsJSON)

		if call.Success {
			resultJSON, _ := json.Marshal(call.Result)
			fmt.Fprintf(&sb, "result: %s\n", resultJSON)
		} else {
			fmt.Fprintf(&sb, "error: %s\n", call.Error)
		}
	}

	sb.WriteString("=== END TOOL RESULTS ===")
	return sb.String()
}

// Summary returns lifetime execution statistics.
func (e *Executor) Summary() ExecutionSummary {
	e.mu.Lock()
	defer e.mu.Unlock()

	summary := ExecutionSummary{
		Batches:     e.batches,
		Calls:       e.calls,
		Succeeded:   e.succeeded,
		Failed:      e.calls - e.succeeded,
		PerTool:     make(map[string]int, len(e.perTool)),
		TotalTokens: e.totalTokens,
	}
	for name, count := range e.perTool {
		summary.PerTool[name] = count
	}
	if e.calls > 0 {
		summary.SuccessRate = float64(e.succeeded) / float64(e.calls)
	}
	return summary
}
