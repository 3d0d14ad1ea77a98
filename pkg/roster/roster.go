// Package roster tracks per-seat agent state: memory, queued game events,
// and usage counters. One AgentState exists per seat for the whole session.
package roster

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Event is one game-state change queued for an agent since its last prompt.
type Event struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Counters accumulates per-agent usage over the session.
type Counters struct {
	Requests  int `json:"requests"`
	Successes int `json:"successes"`
	Failures  int `json:"failures"`
	Tokens    int `json:"tokens"`
}

// AgentState is the engine's view of one seat. Mutated only by the turn
// resolver; never destroyed mid-game.
type AgentState struct {
	Name  string `json:"name"`
	ID    string `json:"id"`
	Color string `json:"color"`

	// PendingRequest is true only between request-sent and request-resolved.
	PendingRequest bool `json:"pending_request"`

	// Memory is a single short note, overwritten each turn, never appended.
	Memory string `json:"memory"`

	// LastFingerprint is the hash of the last snapshot this agent saw,
	// used only for change detection.
	LastFingerprint string `json:"last_fingerprint"`

	Counters Counters `json:"counters"`

	events []Event
}

// Registry holds every tracked agent and fans game events out to them.
type Registry struct {
	mu     sync.Mutex
	agents map[string]*AgentState
	order  []string // Registration order, for deterministic iteration
}

// NewRegistry creates an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*AgentState)}
}

// Register creates or replaces the agent for a seat.
func (r *Registry) Register(name, id, color string) *AgentState {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[id]; !exists {
		r.order = append(r.order, id)
	}
	agent := &AgentState{Name: name, ID: id, Color: color}
	r.agents[id] = agent
	return agent
}

// Get returns the agent for a seat ID.
func (r *Registry) Get(id string) (*AgentState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return nil, fmt.Errorf("no agent registered for seat %q", id)
	}
	return agent, nil
}

// Agents returns all agents in registration order.
func (r *Registry) Agents() []*AgentState {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]*AgentState, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.agents[id])
	}
	return result
}

// RecordEvent appends the event to every tracked agent's queue, suppressing
// exact duplicates of that agent's most recent entry (same type+message).
// affectedIDs is advisory; all agents observe all events.
func (r *Registry) RecordEvent(eventType, message string, _ []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	event := Event{Type: eventType, Message: message, Timestamp: time.Now().UTC()}
	for _, id := range r.order {
		agent := r.agents[id]
		if n := len(agent.events); n > 0 {
			last := agent.events[n-1]
			if last.Type == eventType && last.Message == message {
				continue
			}
		}
		agent.events = append(agent.events, event)
	}
}

// PendingEvents returns a copy of an agent's queued events.
func (r *Registry) PendingEvents(id string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return nil
	}
	events := make([]Event, len(agent.events))
	copy(events, agent.events)
	return events
}

// ClearEvents empties an agent's queue and returns what was cleared. Called
// only after a turn's action has been finalized, so an agent that errors
// mid-turn keeps its context for a retry.
func (r *Registry) ClearEvents(id string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return nil
	}
	cleared := agent.events
	agent.events = nil
	return cleared
}

// startingLine is returned when an agent has no queued events yet.
const startingLine = "The game is just starting."

var actionTokenRe = regexp.MustCompile(`ActionType\.([A-Z_]+)`)

// actionPhrases maps raw action tokens to natural-language phrasing.
var actionPhrases = map[string]string{
	"BUILD_ROAD":       "built a road",
	"BUILD_SETTLEMENT": "built a settlement",
	"BUILD_CITY":       "built a city",
	"ROLL_DICE":        "rolled the dice",
	"MOVE_ROBBER":      "moved the robber",
	"PLAY_CARD":        "played a card",
	"TRADE_OFFER":      "offered a trade",
	"END_TURN":         "ended their turn",
}

// BuildRecencySummary renders the single most recent unprocessed event for
// an agent as one natural-language line, normalizing raw action tokens and
// substituting seat IDs with registered names.
func (r *Registry) BuildRecencySummary(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok || len(agent.events) == 0 {
		return startingLine
	}

	latest := agent.events[len(agent.events)-1]
	line := latest.Message

	line = actionTokenRe.ReplaceAllStringFunc(line, func(token string) string {
		raw := strings.TrimPrefix(token, "ActionType.")
		if phrase, ok := actionPhrases[raw]; ok {
			return phrase
		}
		return strings.ToLower(strings.ReplaceAll(raw, "_", " "))
	})

	// Substitute "player <id>" references with registered names.
	for _, seatID := range r.order {
		seat := r.agents[seatID]
		ref := regexp.MustCompile(`(?i)\bplayer\s+` + regexp.QuoteMeta(seatID) + `\b`)
		line = ref.ReplaceAllString(line, seat.Name)
	}

	return line
}
