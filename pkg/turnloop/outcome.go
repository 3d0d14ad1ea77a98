package turnloop

import (
	"time"

	"gameagent/pkg/board"
	"gameagent/pkg/llm"
	"gameagent/pkg/parser"
	"gameagent/pkg/tools"
)

// TurnRequest asks the resolver to produce one agent response.
type TurnRequest struct {
	// SeatID names the agent to resolve for.
	SeatID string
	// Kind selects the response schema: active turn or observation.
	Kind parser.Kind
	// Snapshot is the current board. Nil keeps the previous snapshot.
	Snapshot *board.Snapshot
	// AllowedActions restricts legal action types for the active seat.
	// Empty means any known action type is accepted.
	AllowedActions []string
}

// TurnOutcome is the fully resolved result of one turn.
type TurnOutcome struct {
	// Success reports whether a usable structured reply was produced,
	// including replies rescued by lenient repair or the inert fallback.
	Success bool
	// Data is the validated response object.
	Data map[string]any
	// Action is the structured action for active turns, nil for observations.
	Action map[string]any
	// Fallback is true when the action came from the inert fallback rather
	// than the model.
	Fallback bool
	// Repaired is true when any repair was applied during parsing.
	Repaired bool
	// ErrorKind classifies the failure when Success is false, or the parse
	// problem that triggered the fallback.
	ErrorKind string

	// ModelCalls counts provider round trips made for this turn.
	ModelCalls int
	// Batches holds every executed tool batch, in order.
	Batches []*tools.Batch
	// Tokens aggregates usage across all model calls.
	Tokens llm.TokenCounts
	// CostUSD is the estimated spend for this turn.
	CostUSD float64
	// Elapsed is end-to-end resolution time.
	Elapsed time.Duration
}

// ToolCallCount returns the total tool calls across all batches.
func (o *TurnOutcome) ToolCallCount() int {
	n := 0
	for _, batch := range o.Batches {
		n += len(batch.Calls)
	}
	return n
}

// ActionType returns the resolved action's type, or empty.
func (o *TurnOutcome) ActionType() string {
	if o.Action == nil {
		return ""
	}
	t, _ := o.Action["type"].(string)
	return t
}
