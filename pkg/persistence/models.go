package persistence

import "time"

// TurnRecord is one resolved turn as stored in the turns table.
type TurnRecord struct {
	ID               int64     `json:"id"`
	SessionID        string    `json:"session_id"`
	SeatID           string    `json:"seat_id"`
	Kind             string    `json:"kind"` // active_turn or observation
	Success          bool      `json:"success"`
	ActionType       string    `json:"action_type"`
	ModelCalls       int       `json:"model_calls"`
	ToolCalls        int       `json:"tool_calls"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	ThinkingTokens   int       `json:"thinking_tokens"`
	CostUSD          float64   `json:"cost_usd"`
	LatencyMs        int64     `json:"latency_ms"`
	ErrorKind        string    `json:"error_kind"`
	CreatedAt        time.Time `json:"created_at"`
}

// ChatMessage is one line of table talk as stored in the chat_messages table.
type ChatMessage struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	SeatID    string    `json:"seat_id"`
	Speaker   string    `json:"speaker"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionSummary aggregates one session's turns for reporting.
type SessionSummary struct {
	SessionID   string  `json:"session_id"`
	Turns       int     `json:"turns"`
	Successes   int     `json:"successes"`
	TotalTokens int     `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost_usd"`
}
