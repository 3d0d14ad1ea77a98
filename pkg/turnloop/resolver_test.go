package turnloop

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gameagent/pkg/board"
	"gameagent/pkg/chat"
	"gameagent/pkg/config"
	"gameagent/pkg/llm"
	"gameagent/pkg/llm/llmerrors"
	"gameagent/pkg/parser"
	"gameagent/pkg/roster"
	"gameagent/pkg/tools"
)

const finalReply = `{
	"internal_thinking": "The 8-pip node is clearly the strongest opening spot.",
	"action": {"type": "build_settlement", "parameters": {"node": 1}},
	"memory_update": "claimed node 1",
	"table_talk": "I like my corner of the board."
}`

func testConfig() *config.Config {
	return &config.Config{
		TurnLoop: config.TurnLoopConfig{IterationBudget: 2, MaxReplyTokens: 512},
		Parser:   config.ParserConfig{EnableRepairs: true},
		Chat:     config.ChatConfig{Window: 6},
		Status:   config.StatusConfig{MinDwellMs: 1},
	}
}

func testSnapshot() *board.Snapshot {
	return &board.Snapshot{
		Sites: []board.ResourceSite{
			{ID: 1, Resource: "wood", Number: 8},
			{ID: 2, Resource: "brick", Number: 5},
		},
		Nodes: []board.Node{
			{ID: 1, SiteIDs: []int{1, 2}, Neighbors: []int{2}},
			{ID: 2, SiteIDs: []int{2}, Neighbors: []int{1}},
		},
	}
}

type fixture struct {
	resolver *Resolver
	client   *llm.MockClient
	registry *roster.Registry
	chat     *chat.Service
	cfg      *config.Config
}

func newFixture(t *testing.T, script ...llm.MockReply) *fixture {
	t.Helper()

	cfg := testConfig()
	client := llm.NewMockClient(script...)
	registry := roster.NewRegistry()
	registry.Register("Ada", "seat-1", "red")

	chatService := chat.NewService(&cfg.Chat)

	resolver, err := New(Options{
		Config:   cfg,
		Client:   client,
		Registry: registry,
		Library:  tools.NewLibrary(),
		Chat:     chatService,
	})
	require.NoError(t, err)

	return &fixture{resolver: resolver, client: client, registry: registry, chat: chatService, cfg: cfg}
}

func activeRequest() *TurnRequest {
	return &TurnRequest{
		SeatID:   "seat-1",
		Kind:     parser.KindActiveTurn,
		Snapshot: testSnapshot(),
	}
}

func TestResolveTurnDirectReply(t *testing.T) {
	f := newFixture(t, llm.MockReply{Result: llm.GenerateResult{Text: finalReply, StopReason: "end_turn"}})

	outcome, err := f.resolver.ResolveTurn(context.Background(), activeRequest())
	require.NoError(t, err)

	assert.True(t, outcome.Success)
	assert.False(t, outcome.Fallback)
	assert.Equal(t, 1, outcome.ModelCalls)
	assert.Equal(t, "build_settlement", outcome.ActionType())
	assert.Equal(t, 0, outcome.ToolCallCount())
	assert.Positive(t, outcome.Tokens.Total())

	// Non-final rounds advertise the full tool set.
	require.Len(t, f.client.Requests, 1)
	assert.Len(t, f.client.Requests[0].Tools, 3)

	assert.Equal(t, StateResolved, f.resolver.Status().Current("seat-1"))
}

func TestResolveTurnWithToolRound(t *testing.T) {
	f := newFixture(t,
		llm.MockReply{Result: llm.GenerateResult{
			Text:       "Let me inspect that node first.",
			StopReason: "tool_use",
			ToolRequests: []tools.ToolRequest{
				{ID: "t1", Name: tools.ToolInspectNode, Parameters: map[string]any{"node_id": float64(1)}},
			},
		}},
		llm.MockReply{Result: llm.GenerateResult{Text: finalReply, StopReason: "end_turn"}},
	)

	outcome, err := f.resolver.ResolveTurn(context.Background(), activeRequest())
	require.NoError(t, err)

	assert.Equal(t, 2, outcome.ModelCalls)
	assert.Equal(t, 1, outcome.ToolCallCount())
	require.Len(t, outcome.Batches, 1)
	assert.Equal(t, 1, outcome.Batches[0].Succeeded())

	// The second call sees the interim text and the reinjected tool results.
	require.Len(t, f.client.Requests, 2)
	second := f.client.Requests[0].Text
	followup := f.client.Requests[1].Text
	assert.NotContains(t, second, "=== TOOL RESULTS ===")
	assert.Contains(t, followup, "Let me inspect that node first.")
	assert.Contains(t, followup, "=== TOOL RESULTS ===")
	assert.Contains(t, followup, `"total_pips":9`)
}

func TestLoopBoundedWithForcedFinalRound(t *testing.T) {
	// A model that always wants tools: the loop must stop at budget+1 calls
	// and strip tools from the last one.
	f := newFixture(t, llm.MockReply{Result: llm.GenerateResult{
		StopReason: "tool_use",
		ToolRequests: []tools.ToolRequest{
			{ID: "t1", Name: tools.ToolInspectNode, Parameters: map[string]any{"node_id": float64(1)}},
		},
	}})

	outcome, err := f.resolver.ResolveTurn(context.Background(), activeRequest())
	require.NoError(t, err)

	budget := f.cfg.TurnLoop.IterationBudget
	assert.Equal(t, budget+1, outcome.ModelCalls)
	assert.Equal(t, budget+1, f.client.Calls())
	assert.Len(t, outcome.Batches, budget)

	requests := f.client.Requests
	require.Len(t, requests, budget+1)
	for i := 0; i < budget; i++ {
		assert.NotEmpty(t, requests[i].Tools, "call %d should advertise tools", i)
	}
	last := requests[budget]
	assert.Empty(t, last.Tools, "final call must be tool-free")
	assert.Contains(t, last.Text, "Tools are no longer available")

	// The final reply had no JSON, so the turn falls back to an inert action.
	assert.True(t, outcome.Success)
	assert.True(t, outcome.Fallback)
	assert.Equal(t, ActionEndTurn, outcome.ActionType())
}

func TestWaitActionAlwaysAllowed(t *testing.T) {
	waitReply := `{
		"internal_thinking": "Nothing worth doing before the trade resolves.",
		"action": {"type": "wait_for_response", "parameters": {}}
	}`

	cfg := testConfig()
	cfg.Parser.StrictMode = true
	client := llm.NewMockClient(llm.MockReply{Result: llm.GenerateResult{Text: waitReply}})
	registry := roster.NewRegistry()
	registry.Register("Ada", "seat-1", "red")

	resolver, err := New(Options{
		Config:   cfg,
		Client:   client,
		Registry: registry,
		Library:  tools.NewLibrary(),
	})
	require.NoError(t, err)

	// Waiting must pass validation even under a narrow allow-list.
	req := activeRequest()
	req.AllowedActions = []string{"roll_dice", "end_turn"}

	outcome, err := resolver.ResolveTurn(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, outcome.Success)
	assert.False(t, outcome.Fallback)
	assert.Equal(t, parser.ActionWait, outcome.ActionType())

	// The prompt lists the wait action alongside the configured ones.
	require.NotEmpty(t, client.Requests)
	assert.Contains(t, client.Requests[0].Text, parser.ActionWait)
}

func TestFirstActiveRoundForcesTools(t *testing.T) {
	f := newFixture(t,
		llm.MockReply{Result: llm.GenerateResult{
			StopReason: "tool_use",
			ToolRequests: []tools.ToolRequest{
				{Name: tools.ToolInspectNode, Parameters: map[string]any{"node_id": float64(1)}},
			},
		}},
		llm.MockReply{Result: llm.GenerateResult{Text: finalReply}},
	)

	_, err := f.resolver.ResolveTurn(context.Background(), activeRequest())
	require.NoError(t, err)

	requests := f.client.Requests
	require.Len(t, requests, 2)
	assert.True(t, requests[0].ForceTools, "opening round must demand a tool call")
	assert.False(t, requests[1].ForceTools)
}

func TestObservationNeverForcesTools(t *testing.T) {
	f := newFixture(t, llm.MockReply{Result: llm.GenerateResult{
		Text: `{"internal_thinking": "Quiet round, nothing to add."}`,
	}})

	_, err := f.resolver.ResolveTurn(context.Background(), &TurnRequest{
		SeatID: "seat-1",
		Kind:   parser.KindObservation,
	})
	require.NoError(t, err)

	require.NotEmpty(t, f.client.Requests)
	assert.False(t, f.client.Requests[0].ForceTools)
}

func TestParseFallbackIsInert(t *testing.T) {
	f := newFixture(t, llm.MockReply{Result: llm.GenerateResult{Text: "I refuse to answer in JSON."}})

	outcome, err := f.resolver.ResolveTurn(context.Background(), activeRequest())
	require.NoError(t, err)

	assert.True(t, outcome.Success)
	assert.True(t, outcome.Fallback)
	assert.Equal(t, "invalid_json", outcome.ErrorKind)
	assert.Equal(t, ActionEndTurn, outcome.ActionType())
	assert.Equal(t, "(no reasoning provided)", outcome.Data[parser.FieldThinking])

	// The rescued turn still counts as a failure in the agent's counters.
	counters := f.registry.CountersFor("seat-1")
	assert.Equal(t, 1, counters.Requests)
	assert.Equal(t, 1, counters.Failures)
}

func TestObservationFallbackHasNoAction(t *testing.T) {
	f := newFixture(t, llm.MockReply{Result: llm.GenerateResult{Text: "no json here"}})

	outcome, err := f.resolver.ResolveTurn(context.Background(), &TurnRequest{
		SeatID: "seat-1",
		Kind:   parser.KindObservation,
	})
	require.NoError(t, err)

	assert.True(t, outcome.Fallback)
	assert.Nil(t, outcome.Action)
	assert.Empty(t, outcome.ActionType())
}

func TestFinalizationAppliesMemoryAndChat(t *testing.T) {
	f := newFixture(t, llm.MockReply{Result: llm.GenerateResult{Text: finalReply}})

	_, err := f.resolver.ResolveTurn(context.Background(), activeRequest())
	require.NoError(t, err)

	assert.Equal(t, "claimed node 1", f.registry.Memory("seat-1"))

	recent := f.chat.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, "Ada", recent[0].Speaker)
	assert.Equal(t, "I like my corner of the board.", recent[0].Text)
}

func TestEventsClearedOnlyAfterFinalize(t *testing.T) {
	f := newFixture(t,
		llm.MockReply{Err: llmerrors.NewError(llmerrors.ErrorTypeAuth, "invalid api key")},
		llm.MockReply{Result: llm.GenerateResult{Text: finalReply}},
	)
	f.registry.RecordEvent("dice", "rolled a 6", nil)

	// First attempt fails before a reply: the queue must survive.
	_, err := f.resolver.ResolveTurn(context.Background(), activeRequest())
	require.Error(t, err)
	assert.Len(t, f.registry.PendingEvents("seat-1"), 1)

	// The retry succeeds and consumes the queue.
	_, err = f.resolver.ResolveTurn(context.Background(), activeRequest())
	require.NoError(t, err)
	assert.Empty(t, f.registry.PendingEvents("seat-1"))
}

func TestModelErrorPropagates(t *testing.T) {
	f := newFixture(t, llm.MockReply{Err: llmerrors.NewError(llmerrors.ErrorTypeAuth, "invalid api key")})

	outcome, err := f.resolver.ResolveTurn(context.Background(), activeRequest())
	require.Error(t, err)

	assert.False(t, outcome.Success)
	assert.Equal(t, "auth", outcome.ErrorKind)
	assert.Equal(t, 1, outcome.ModelCalls)
	assert.Equal(t, StateResolved, f.resolver.Status().Current("seat-1"))

	counters := f.registry.CountersFor("seat-1")
	assert.Equal(t, 1, counters.Failures)
}

func TestOverrideReplacesAction(t *testing.T) {
	f := newFixture(t, llm.MockReply{Result: llm.GenerateResult{Text: finalReply}})
	f.cfg.Override.Enabled = true
	f.resolver.SetOverride(func(seatID string, proposed map[string]any) (map[string]any, bool) {
		assert.Equal(t, "seat-1", seatID)
		assert.Equal(t, "build_settlement", proposed["type"])
		return map[string]any{"type": ActionEndTurn, "parameters": map[string]any{}}, true
	})

	outcome, err := f.resolver.ResolveTurn(context.Background(), activeRequest())
	require.NoError(t, err)

	assert.Equal(t, ActionEndTurn, outcome.ActionType())
	action := outcome.Data[parser.FieldAction].(map[string]any)
	assert.Equal(t, ActionEndTurn, action["type"])
}

func TestOverrideMergesOperatorNotes(t *testing.T) {
	f := newFixture(t, llm.MockReply{Result: llm.GenerateResult{Text: finalReply}})
	f.cfg.Override.Enabled = true
	f.resolver.SetOverride(func(string, map[string]any) (map[string]any, bool) {
		return map[string]any{
			"type":                ActionEndTurn,
			"parameters":          map[string]any{},
			parser.FieldMemory:    "hold resources for a city",
			parser.FieldTableTalk: "Changed my mind, passing.",
		}, true
	})

	outcome, err := f.resolver.ResolveTurn(context.Background(), activeRequest())
	require.NoError(t, err)

	assert.Equal(t, ActionEndTurn, outcome.ActionType())
	assert.NotContains(t, outcome.Action, parser.FieldMemory)
	assert.NotContains(t, outcome.Action, parser.FieldTableTalk)

	// Operator notes replace the model's memory and table talk.
	assert.Equal(t, "hold resources for a city", f.registry.Memory("seat-1"))
	recent := f.chat.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, "Changed my mind, passing.", recent[0].Text)
}

func TestOverrideDisabledByConfig(t *testing.T) {
	f := newFixture(t, llm.MockReply{Result: llm.GenerateResult{Text: finalReply}})
	f.resolver.SetOverride(func(string, map[string]any) (map[string]any, bool) {
		t.Error("override hook called while disabled")
		return nil, false
	})

	outcome, err := f.resolver.ResolveTurn(context.Background(), activeRequest())
	require.NoError(t, err)
	assert.Equal(t, "build_settlement", outcome.ActionType())
}

func TestThinkingBudgetSchedule(t *testing.T) {
	f := newFixture(t, llm.MockReply{Result: llm.GenerateResult{
		StopReason: "tool_use",
		ToolRequests: []tools.ToolRequest{
			{Name: tools.ToolInspectNode, Parameters: map[string]any{"node_id": float64(1)}},
		},
	}})
	f.cfg.TurnLoop.ThinkingBudgets = []int{1024, 256}

	_, err := f.resolver.ResolveTurn(context.Background(), activeRequest())
	require.NoError(t, err)

	requests := f.client.Requests
	require.Len(t, requests, 3)
	assert.Equal(t, 1024, requests[0].ThinkingBudget)
	assert.Equal(t, 256, requests[1].ThinkingBudget)
	assert.Equal(t, 256, requests[2].ThinkingBudget, "schedule shorter than rounds repeats its last entry")
}

func TestCostAccounting(t *testing.T) {
	modelCfg := &config.ModelCfg{
		Name:         "mock",
		CpmTokensIn:  3.0,
		CpmTokensOut: 15.0,
	}
	tokens := llm.TokenCounts{Prompt: 1_000_000, Completion: 500_000, Thinking: 500_000}
	assert.InDelta(t, 3.0+15.0, estimateCost(modelCfg, tokens), 0.0001)
	assert.Zero(t, estimateCost(nil, tokens))
}

func TestRateLimiterDeniesTurn(t *testing.T) {
	cfg := testConfig()
	client := llm.NewMockClient(llm.MockReply{Result: llm.GenerateResult{Text: finalReply}})
	registry := roster.NewRegistry()
	registry.Register("Ada", "seat-1", "red")

	resolver, err := New(Options{
		Config:   cfg,
		Client:   client,
		Registry: registry,
		Library:  tools.NewLibrary(),
		Acquire: func(context.Context, int) error {
			return llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "budget exceeded")
		},
	})
	require.NoError(t, err)

	outcome, err := resolver.ResolveTurn(context.Background(), activeRequest())
	require.Error(t, err)
	assert.Equal(t, "rate_limit", outcome.ErrorKind)
	assert.Zero(t, client.Calls(), "model must not be called when the limiter denies")
}

func TestStatusPhaseSequence(t *testing.T) {
	f := newFixture(t,
		llm.MockReply{Result: llm.GenerateResult{
			StopReason: "tool_use",
			ToolRequests: []tools.ToolRequest{
				{Name: tools.ToolInspectNode, Parameters: map[string]any{"node_id": float64(1)}},
			},
		}},
		llm.MockReply{Result: llm.GenerateResult{Text: finalReply}},
	)

	var phases []State
	f.resolver.Status().Subscribe(func(_ string, state State) {
		phases = append(phases, state)
	})

	_, err := f.resolver.ResolveTurn(context.Background(), activeRequest())
	require.NoError(t, err)

	want := []State{
		StateBuildingPrompt,
		StateAwaitingModel,
		StateToolsRequested,
		StateAwaitingModel,
		StateFinalizing,
		StateResolved,
	}
	assert.Equal(t, want, phases)
}

func TestPromptCarriesRecencyAndMemory(t *testing.T) {
	f := newFixture(t, llm.MockReply{Result: llm.GenerateResult{Text: finalReply}})
	f.registry.SetMemory("seat-1", "watch the wood port")
	f.registry.RecordEvent("action", "player seat-1 chose ActionType.ROLL_DICE", nil)

	_, err := f.resolver.ResolveTurn(context.Background(), activeRequest())
	require.NoError(t, err)

	user := f.client.Requests[0].Text
	assert.Contains(t, user, "watch the wood port")
	assert.Contains(t, user, "rolled the dice")
	assert.False(t, strings.Contains(user, "ActionType."), "raw action tokens must be normalized")
}
