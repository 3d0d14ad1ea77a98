package turnloop

import (
	"sync"
	"time"

	"gameagent/pkg/config"
	"gameagent/pkg/logx"
)

// State is one phase of turn resolution. Phases advance strictly forward
// except for the TOOLS_REQUESTED / AWAITING_MODEL cycle.
type State string

const (
	StateIdle           State = "IDLE"
	StateBuildingPrompt State = "BUILDING_PROMPT"
	StateAwaitingModel  State = "AWAITING_MODEL"
	StateToolsRequested State = "TOOLS_REQUESTED"
	StateFinalizing     State = "FINALIZING"
	StateResolved       State = "RESOLVED"
)

// StatusListener receives phase changes for one seat.
type StatusListener func(seatID string, state State)

// StatusBroadcaster publishes resolution phases to listeners, enforcing a
// minimum dwell between transitions so human observers can follow along.
// The dwell is advisory only; it never affects resolution semantics.
type StatusBroadcaster struct {
	mu         sync.Mutex
	listeners  []StatusListener
	minDwell   time.Duration
	lastChange time.Time
	current    map[string]State
	logger     *logx.Logger
}

// NewStatusBroadcaster creates a broadcaster with the configured dwell.
func NewStatusBroadcaster(cfg *config.StatusConfig) *StatusBroadcaster {
	dwellMs := cfg.MinDwellMs
	if dwellMs <= 0 {
		dwellMs = config.DefaultStatusDwellMs
	}
	return &StatusBroadcaster{
		minDwell: time.Duration(dwellMs) * time.Millisecond,
		current:  make(map[string]State),
		logger:   logx.NewLogger("status"),
	}
}

// Subscribe registers a listener for all future phase changes.
func (b *StatusBroadcaster) Subscribe(listener StatusListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, listener)
}

// Set publishes a phase change, sleeping first if the previous phase has not
// been visible for the minimum dwell. The terminal RESOLVED phase publishes
// immediately: dwell never delays the end of a turn.
func (b *StatusBroadcaster) Set(seatID string, state State) {
	b.mu.Lock()
	if state != StateResolved && !b.lastChange.IsZero() {
		if remaining := b.minDwell - time.Since(b.lastChange); remaining > 0 {
			b.mu.Unlock()
			time.Sleep(remaining)
			b.mu.Lock()
		}
	}
	b.lastChange = time.Now()
	b.current[seatID] = state
	listeners := make([]StatusListener, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.Unlock()

	b.logger.DebugDomain("status", "%s -> %s", seatID, state)
	for _, listener := range listeners {
		listener(seatID, state)
	}
}

// Current returns the last published phase for a seat.
func (b *StatusBroadcaster) Current(seatID string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if state, ok := b.current[seatID]; ok {
		return state
	}
	return StateIdle
}
