package prompt

import (
	"strings"
	"testing"

	"gameagent/pkg/parser"
)

func TestBuildActiveTurn(t *testing.T) {
	b := NewDefaultBuilder()
	system, user := b.Build(&TurnContext{
		SeatName:       "Ada",
		SeatColor:      "red",
		Kind:           parser.KindActiveTurn,
		RecencySummary: "Blaise built a road",
		Memory:         "save for a city",
		ChatTranscript: "Blaise: nothing personal",
		BoardChanged:   true,
		AllowedActions: []string{"roll_dice", "end_turn", "wait_for_response"},
	})

	for _, want := range []string{"Ada", "red", parser.FieldThinking, parser.FieldAction, parser.FieldMemory, parser.FieldTableTalk} {
		if !strings.Contains(system, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}

	for _, want := range []string{
		"=== GAME UPDATE ===",
		"Blaise built a road",
		"The board has changed",
		"=== YOUR MEMORY ===",
		"save for a city",
		"=== TABLE TALK ===",
		"Blaise: nothing personal",
		"It is your turn to act.",
		"- roll_dice: roll the dice to start your turn. Example parameters: {}",
		"- end_turn: end your turn. Example parameters: {}",
		"- wait_for_response: do nothing and wait. Example parameters: {}",
	} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q", want)
		}
	}
}

func TestBuildActionLines(t *testing.T) {
	b := NewDefaultBuilder()
	_, user := b.Build(&TurnContext{
		SeatName:       "Ada",
		SeatColor:      "red",
		Kind:           parser.KindActiveTurn,
		RecencySummary: "The game is just starting.",
		AllowedActions: []string{"build_road", "BUILD_CITY", "mystery_move"},
	})

	for _, want := range []string{
		`- build_road: place a road between two adjacent nodes. Example parameters: {"from": 3, "to": 4}`,
		`- build_city: upgrade one of your settlements to a city. Example parameters: {"node": 12}`,
		"- mystery_move: take the mystery_move action. Example parameters: {}",
	} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q", want)
		}
	}
}

func TestBuildObservation(t *testing.T) {
	b := NewDefaultBuilder()
	system, user := b.Build(&TurnContext{
		SeatName:       "Curie",
		SeatColor:      "white",
		Kind:           parser.KindObservation,
		RecencySummary: "The game is just starting.",
	})

	if strings.Contains(system, parser.FieldAction) {
		t.Error("observation system prompt should not require an action field")
	}
	if !strings.Contains(user, "It is not your turn.") {
		t.Error("observation user prompt missing the observe instruction")
	}
	if strings.Contains(user, "=== YOUR MEMORY ===") {
		t.Error("empty memory should not render a memory section")
	}
	if strings.Contains(user, "=== TABLE TALK ===") {
		t.Error("empty transcript should not render a chat section")
	}
}

func TestBuildDeterministic(t *testing.T) {
	b := NewDefaultBuilder()
	tc := &TurnContext{
		SeatName:       "Ada",
		SeatColor:      "red",
		Kind:           parser.KindActiveTurn,
		RecencySummary: "Curie ended their turn",
	}

	s1, u1 := b.Build(tc)
	s2, u2 := b.Build(tc)
	if s1 != s2 || u1 != u2 {
		t.Error("Build is not deterministic for identical contexts")
	}
}
