// Package prompt renders the system and user prompts for one turn. The turn
// resolver owns conversation accumulation; this package only produces the
// opening text.
package prompt

import (
	"fmt"
	"strings"

	"gameagent/pkg/parser"
)

// TurnContext carries everything the builder needs for one prompt.
type TurnContext struct {
	// SeatName is the agent's display name.
	SeatName string
	// SeatColor is the agent's player color.
	SeatColor string
	// Kind selects the response schema the model must follow.
	Kind parser.Kind
	// RecencySummary is the one-line summary of the latest game event.
	RecencySummary string
	// Memory is the agent's current memory note, may be empty.
	Memory string
	// ChatTranscript is the rendered table-talk window, may be empty.
	ChatTranscript string
	// BoardChanged reports whether the snapshot differs from the last one
	// this agent saw.
	BoardChanged bool
	// AllowedActions lists the action types currently legal for the seat.
	// Only rendered for the active-turn kind.
	AllowedActions []string
}

// Builder produces the prompts for a turn. Implementations must be
// deterministic for a given context.
type Builder interface {
	// Build returns the system and user prompts.
	Build(tc *TurnContext) (system, user string)
}

// FinalRoundNotice is appended to the conversation on the forced final
// round, when tools are withdrawn.
const FinalRoundNotice = "Tools are no longer available. Reply with your final JSON response now."

// actionHint is the per-action help line rendered into the prompt.
type actionHint struct {
	desc    string
	example string
}

// actionHints pairs each known action type with a short description and
// example parameters. Unknown types still render through a generic fallback.
var actionHints = map[string]actionHint{
	"roll_dice":        {"roll the dice to start your turn", "{}"},
	"build_road":       {"place a road between two adjacent nodes", `{"from": 3, "to": 4}`},
	"build_settlement": {"place a settlement on an open node", `{"node": 12}`},
	"build_city":       {"upgrade one of your settlements to a city", `{"node": 12}`},
	"move_robber":      {"move the robber to a resource hex", `{"hex": 7}`},
	"play_card":        {"play a development card from your hand", `{"card": "knight"}`},
	"trade_offer":      {"offer a resource trade to the table", `{"give": "wood", "receive": "brick"}`},
	"end_turn":         {"end your turn", "{}"},
	parser.ActionWait:  {"do nothing and wait", "{}"},
}

func hintFor(actionType string) actionHint {
	if hint, ok := actionHints[strings.ToLower(actionType)]; ok {
		return hint
	}
	return actionHint{"take the " + actionType + " action", "{}"}
}

// DefaultBuilder renders the standard prompt layout.
type DefaultBuilder struct{}

// NewDefaultBuilder creates the standard prompt builder.
func NewDefaultBuilder() *DefaultBuilder {
	return &DefaultBuilder{}
}

// Build implements Builder.
func (b *DefaultBuilder) Build(tc *TurnContext) (string, string) {
	return b.buildSystem(tc), b.buildUser(tc)
}

func (b *DefaultBuilder) buildSystem(tc *TurnContext) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are %s, playing the %s pieces in a settlement-building board game.\n\n", tc.SeatName, tc.SeatColor)

	sb.WriteString("You may call the provided board query tools to inspect nodes, rank building spots, and evaluate expansion paths before answering. ")
	sb.WriteString("Tool results are facts about the current board; trust them over your own recall.\n\n")

	sb.WriteString("Your final reply must be a single JSON object with these fields:\n")
	fmt.Fprintf(&sb, "- %q (string, required): your private reasoning\n", parser.FieldThinking)
	if tc.Kind == parser.KindActiveTurn {
		fmt.Fprintf(&sb, "- %q (object, required): {\"type\": <action type>, \"parameters\": {...}}\n", parser.FieldAction)
	}
	fmt.Fprintf(&sb, "- %q (string, optional): replace your memory note\n", parser.FieldMemory)
	fmt.Fprintf(&sb, "- %q (string, optional): something to say to the table\n", parser.FieldTableTalk)

	sb.WriteString("\nReply with the JSON object only. No prose outside it.")
	return sb.String()
}

func (b *DefaultBuilder) buildUser(tc *TurnContext) string {
	var sb strings.Builder

	sb.WriteString("=== GAME UPDATE ===\n")
	sb.WriteString(tc.RecencySummary)
	sb.WriteString("\n")
	if tc.BoardChanged {
		sb.WriteString("The board has changed since you last looked. Use the tools to re-check anything you depend on.\n")
	}

	if tc.Memory != "" {
		sb.WriteString("\n=== YOUR MEMORY ===\n")
		sb.WriteString(tc.Memory)
		sb.WriteString("\n")
	}

	if tc.ChatTranscript != "" {
		sb.WriteString("\n=== TABLE TALK ===\n")
		sb.WriteString(tc.ChatTranscript)
		sb.WriteString("\n")
	}

	switch tc.Kind {
	case parser.KindActiveTurn:
		sb.WriteString("\nIt is your turn to act.")
		if len(tc.AllowedActions) > 0 {
			sb.WriteString(" Legal actions right now:\n")
			for _, actionType := range tc.AllowedActions {
				hint := hintFor(actionType)
				fmt.Fprintf(&sb, "- %s: %s. Example parameters: %s\n", strings.ToLower(actionType), hint.desc, hint.example)
			}
		}
	case parser.KindObservation:
		sb.WriteString("\nIt is not your turn. Observe, update your memory if useful, and speak up only if you have something worth saying.")
	}

	return sb.String()
}
