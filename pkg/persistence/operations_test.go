package persistence

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// testStore opens a throwaway database directly, bypassing the process-wide
// singleton so tests stay independent.
func testStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite", "file:"+path+"?_foreign_keys=ON")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	db.SetMaxOpenConns(1)

	if err := initializeSchema(db); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}

	store := NewStore(db, "test-session")
	if err := store.BeginSession("mock"); err != nil {
		t.Fatalf("BeginSession failed: %v", err)
	}
	return store
}

func TestSchemaIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if err := initializeSchema(db); err != nil {
		t.Fatalf("first init: %v", err)
	}
	if err := initializeSchema(db); err != nil {
		t.Fatalf("second init: %v", err)
	}

	version, err := getSchemaVersion(db)
	if err != nil {
		t.Fatal(err)
	}
	if version != CurrentSchemaVersion {
		t.Errorf("schema version = %d, want %d", version, CurrentSchemaVersion)
	}
}

func TestBeginSessionIdempotent(t *testing.T) {
	store := testStore(t)
	if err := store.BeginSession("mock"); err != nil {
		t.Errorf("repeated BeginSession failed: %v", err)
	}
}

func TestInsertAndQueryTurns(t *testing.T) {
	store := testStore(t)

	rec := &TurnRecord{
		SeatID:           "seat-1",
		Kind:             "active_turn",
		Success:          true,
		ActionType:       "build_settlement",
		ModelCalls:       2,
		ToolCalls:        3,
		PromptTokens:     1200,
		CompletionTokens: 300,
		ThinkingTokens:   150,
		CostUSD:          0.0123,
		LatencyMs:        840,
	}
	if err := store.InsertTurn(rec); err != nil {
		t.Fatalf("InsertTurn failed: %v", err)
	}
	if rec.ID == 0 {
		t.Error("InsertTurn did not set the record ID")
	}
	if rec.SessionID != "test-session" {
		t.Errorf("session ID = %q", rec.SessionID)
	}

	if err := store.InsertTurn(&TurnRecord{SeatID: "seat-2", Kind: "observation", Success: false, ErrorKind: "invalid_json"}); err != nil {
		t.Fatal(err)
	}

	turns, err := store.TurnsForSeat("seat-1")
	if err != nil {
		t.Fatalf("TurnsForSeat failed: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("got %d turns for seat-1, want 1", len(turns))
	}
	got := turns[0]
	if got.ActionType != "build_settlement" || got.ToolCalls != 3 || got.PromptTokens != 1200 {
		t.Errorf("round-tripped turn mismatch: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at not set")
	}
}

func TestChatMessagesChronological(t *testing.T) {
	store := testStore(t)

	for _, text := range []string{"first", "second", "third"} {
		if err := store.InsertChatMessage("seat-1", "Ada", text); err != nil {
			t.Fatalf("InsertChatMessage failed: %v", err)
		}
	}

	messages, err := store.RecentChatMessages(2)
	if err != nil {
		t.Fatalf("RecentChatMessages failed: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	// Limited to the 2 newest, returned oldest first.
	if messages[0].Message != "second" || messages[1].Message != "third" {
		t.Errorf("unexpected order: %q, %q", messages[0].Message, messages[1].Message)
	}
}

func TestSummaryAggregates(t *testing.T) {
	store := testStore(t)

	inserts := []*TurnRecord{
		{SeatID: "seat-1", Kind: "active_turn", Success: true, PromptTokens: 100, CompletionTokens: 50, CostUSD: 0.01},
		{SeatID: "seat-1", Kind: "observation", Success: true, PromptTokens: 80, ThinkingTokens: 20, CostUSD: 0.005},
		{SeatID: "seat-2", Kind: "active_turn", Success: false, ErrorKind: "rate_limit"},
	}
	for _, rec := range inserts {
		if err := store.InsertTurn(rec); err != nil {
			t.Fatal(err)
		}
	}

	summary, err := store.Summary()
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if summary.Turns != 3 || summary.Successes != 2 {
		t.Errorf("turns=%d successes=%d", summary.Turns, summary.Successes)
	}
	if summary.TotalTokens != 250 {
		t.Errorf("total tokens = %d, want 250", summary.TotalTokens)
	}
	if summary.TotalCost < 0.0149 || summary.TotalCost > 0.0151 {
		t.Errorf("total cost = %f", summary.TotalCost)
	}
}
