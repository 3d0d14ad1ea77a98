package persistence

import (
	"database/sql"
	"fmt"
	"time"
)

// Store provides typed operations over the database for one session.
type Store struct {
	db        *sql.DB
	sessionID string
}

// NewStore creates a Store bound to a connection and session.
func NewStore(db *sql.DB, sessionID string) *Store {
	return &Store{db: db, sessionID: sessionID}
}

// BeginSession records the session row. Idempotent per session ID.
func (s *Store) BeginSession(modelName string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO sessions (id, started_at, model_name) VALUES (?, ?, ?)`,
		s.sessionID, time.Now().UTC(), modelName,
	)
	if err != nil {
		return fmt.Errorf("failed to record session %s: %w", s.sessionID, err)
	}
	return nil
}

// InsertTurn records one resolved turn.
func (s *Store) InsertTurn(rec *TurnRecord) error {
	query := `
		INSERT INTO turns (
			session_id, seat_id, kind, success, action_type,
			model_calls, tool_calls, prompt_tokens, completion_tokens,
			thinking_tokens, cost_usd, latency_ms, error_kind, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	result, err := s.db.Exec(query,
		s.sessionID, rec.SeatID, rec.Kind, rec.Success, rec.ActionType,
		rec.ModelCalls, rec.ToolCalls, rec.PromptTokens, rec.CompletionTokens,
		rec.ThinkingTokens, rec.CostUSD, rec.LatencyMs, rec.ErrorKind, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert turn for seat %s: %w", rec.SeatID, err)
	}

	rec.ID, _ = result.LastInsertId()
	rec.SessionID = s.sessionID
	return nil
}

// InsertChatMessage records one line of table talk.
func (s *Store) InsertChatMessage(seatID, speaker, message string) error {
	_, err := s.db.Exec(
		`INSERT INTO chat_messages (session_id, seat_id, speaker, message, created_at) VALUES (?, ?, ?, ?, ?)`,
		s.sessionID, seatID, speaker, message, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chat message from %s: %w", speaker, err)
	}
	return nil
}

// RecentChatMessages returns the most recent table talk for the session,
// oldest first.
func (s *Store) RecentChatMessages(limit int) ([]ChatMessage, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, seat_id, speaker, message, created_at
		FROM chat_messages
		WHERE session_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, s.sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.SeatID, &m.Speaker, &m.Message, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat messages: %w", err)
	}

	// Reverse into chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// TurnsForSeat returns all recorded turns for one seat, oldest first.
func (s *Store) TurnsForSeat(seatID string) ([]TurnRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, seat_id, kind, success, action_type,
			model_calls, tool_calls, prompt_tokens, completion_tokens,
			thinking_tokens, cost_usd, latency_ms, error_kind, created_at
		FROM turns
		WHERE session_id = ? AND seat_id = ?
		ORDER BY id ASC
	`, s.sessionID, seatID)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns for seat %s: %w", seatID, err)
	}
	defer func() { _ = rows.Close() }()

	var records []TurnRecord
	for rows.Next() {
		var r TurnRecord
		if err := rows.Scan(&r.ID, &r.SessionID, &r.SeatID, &r.Kind, &r.Success, &r.ActionType,
			&r.ModelCalls, &r.ToolCalls, &r.PromptTokens, &r.CompletionTokens,
			&r.ThinkingTokens, &r.CostUSD, &r.LatencyMs, &r.ErrorKind, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate turn records: %w", err)
	}
	return records, nil
}

// Summary aggregates the session's turns.
func (s *Store) Summary() (SessionSummary, error) {
	summary := SessionSummary{SessionID: s.sessionID}

	err := s.db.QueryRow(`
		SELECT COUNT(*),
			COALESCE(SUM(success), 0),
			COALESCE(SUM(prompt_tokens + completion_tokens + thinking_tokens), 0),
			COALESCE(SUM(cost_usd), 0)
		FROM turns
		WHERE session_id = ?
	`, s.sessionID).Scan(&summary.Turns, &summary.Successes, &summary.TotalTokens, &summary.TotalCost)
	if err != nil {
		return SessionSummary{}, fmt.Errorf("failed to aggregate session summary: %w", err)
	}
	return summary, nil
}
