// Package turnloop implements single-threaded turn resolution: prompt
// assembly, the bounded tool-calling loop against the model, reply parsing,
// and finalization of the agent's state.
package turnloop

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gameagent/pkg/chat"
	"gameagent/pkg/config"
	"gameagent/pkg/eventlog"
	"gameagent/pkg/llm"
	"gameagent/pkg/llm/llmerrors"
	"gameagent/pkg/logx"
	"gameagent/pkg/metrics"
	"gameagent/pkg/parser"
	"gameagent/pkg/persistence"
	"gameagent/pkg/prompt"
	"gameagent/pkg/roster"
	"gameagent/pkg/tools"
	"gameagent/pkg/utils"
)

// ActionEndTurn is the inert fallback action when an active turn cannot
// produce a usable action.
const ActionEndTurn = "end_turn"

// OverrideFn lets an operator replace the model's proposed action before
// finalization. Returning false keeps the proposal unchanged.
type OverrideFn func(seatID string, proposed map[string]any) (map[string]any, bool)

// Options wires a Resolver's dependencies. Config, Client, Registry, and
// Library are required; the rest default to working no-op implementations.
type Options struct {
	Config   *config.Config
	ModelCfg *config.ModelCfg
	Client   llm.Client
	Registry *roster.Registry
	Library  *tools.Library

	Builder  prompt.Builder
	Chat     *chat.Service
	Status   *StatusBroadcaster
	Recorder metrics.Recorder
	Store    *persistence.Store
	Events   *eventlog.Writer

	// Acquire blocks until the rate limiter admits the estimated tokens.
	// Nil disables limiting.
	Acquire func(ctx context.Context, tokens int) error
}

// Resolver drives one turn at a time. It is deliberately single-threaded:
// a second ResolveTurn call must not start before the first returns.
type Resolver struct {
	cfg      *config.Config
	modelCfg *config.ModelCfg
	client   llm.Client
	registry *roster.Registry
	library  *tools.Library

	toolRegistry *tools.Registry
	executor     *tools.Executor
	parser       *parser.Parser
	builder      prompt.Builder
	chat         *chat.Service
	status       *StatusBroadcaster
	recorder     metrics.Recorder
	store        *persistence.Store
	events       *eventlog.Writer
	acquire      func(ctx context.Context, tokens int) error
	override     OverrideFn

	logger *logx.Logger
}

// New creates a turn resolver.
func New(opts Options) (*Resolver, error) {
	if opts.Config == nil || opts.Client == nil || opts.Registry == nil || opts.Library == nil {
		return nil, fmt.Errorf("turnloop: Config, Client, Registry, and Library are required")
	}

	builder := opts.Builder
	if builder == nil {
		builder = prompt.NewDefaultBuilder()
	}
	status := opts.Status
	if status == nil {
		status = NewStatusBroadcaster(&opts.Config.Status)
	}
	var recorder metrics.Recorder = opts.Recorder
	if recorder == nil {
		recorder = metrics.NopRecorder{}
	}

	toolRegistry := tools.NewRegistry(opts.Library)

	return &Resolver{
		cfg:          opts.Config,
		modelCfg:     opts.ModelCfg,
		client:       opts.Client,
		registry:     opts.Registry,
		library:      opts.Library,
		toolRegistry: toolRegistry,
		executor:     tools.NewExecutor(toolRegistry),
		parser: parser.New(parser.Options{
			EnableRepairs: opts.Config.Parser.EnableRepairs,
			StrictMode:    opts.Config.Parser.StrictMode,
		}),
		builder:  builder,
		chat:     opts.Chat,
		status:   status,
		recorder: recorder,
		store:    opts.Store,
		events:   opts.Events,
		acquire:  opts.Acquire,
		logger:   logx.NewLogger("turnloop"),
	}, nil
}

// SetOverride installs the operator override hook.
func (r *Resolver) SetOverride(fn OverrideFn) {
	r.override = fn
}

// Status returns the resolver's status broadcaster.
func (r *Resolver) Status() *StatusBroadcaster {
	return r.status
}

// Parser returns the resolver's reply parser, for diagnostics.
func (r *Resolver) Parser() *parser.Parser {
	return r.parser
}

// Executor returns the resolver's tool batch executor, for diagnostics.
func (r *Resolver) Executor() *tools.Executor {
	return r.executor
}

// ResolveTurn produces one agent response. The conversation is accumulated
// into a single growing text: each tool round appends the model's interim
// text and the formatted tool results, then the model is called again. At
// most iteration budget + 1 model calls are made; the last is tool-free.
func (r *Resolver) ResolveTurn(ctx context.Context, req *TurnRequest) (*TurnOutcome, error) {
	start := time.Now()

	agent, err := r.registry.Get(req.SeatID)
	if err != nil {
		return nil, err
	}

	r.registry.SetPending(req.SeatID, true)
	defer r.registry.SetPending(req.SeatID, false)

	r.status.Set(req.SeatID, StateBuildingPrompt)

	boardChanged := false
	if req.Snapshot != nil {
		r.library.UpdateSnapshot(req.Snapshot)
		boardChanged = r.registry.SetFingerprint(req.SeatID, req.Snapshot.Fingerprint())
	}

	transcript := ""
	if r.chat != nil {
		transcript = r.chat.Transcript()
	}

	allowedActions := withWaitAction(req.AllowedActions)

	system, user := r.builder.Build(&prompt.TurnContext{
		SeatName:       agent.Name,
		SeatColor:      agent.Color,
		Kind:           req.Kind,
		RecencySummary: r.registry.BuildRecencySummary(req.SeatID),
		Memory:         r.registry.Memory(req.SeatID),
		ChatTranscript: transcript,
		BoardChanged:   boardChanged,
		AllowedActions: allowedActions,
	})

	r.logEvent(req.SeatID, eventlog.KindPromptSent, map[string]any{
		"kind":        string(req.Kind),
		"prompt_size": len(system) + len(user),
	})

	outcome := &TurnOutcome{}
	rawReply, loopErr := r.runLoop(ctx, req, system, user, outcome)
	if loopErr != nil {
		outcome.ErrorKind = llmerrors.TypeOf(loopErr).String()
		outcome.Elapsed = time.Since(start)
		r.finalizeFailure(req, outcome)
		return outcome, loopErr
	}

	parsed := r.parser.Parse(rawReply, req.Kind, allowedActions)
	outcome.Repaired = parsed.Repaired
	if !parsed.Success {
		r.recorder.IncParseFailure(req.SeatID, string(parsed.Kind))
		r.logger.Warn("Parse failed for %s (%s): %s", req.SeatID, parsed.Kind, parsed.Detail)
		outcome.ErrorKind = string(parsed.Kind)
		outcome.Fallback = true
		parsed.Data = fallbackData(req.Kind)
	}
	outcome.Success = true
	outcome.Data = parsed.Data

	r.finalize(req, agent, outcome, parsed.Success)
	outcome.Elapsed = time.Since(start)
	r.recordTurn(req, outcome)
	r.status.Set(req.SeatID, StateResolved)
	return outcome, nil
}

// runLoop executes the bounded model/tool conversation and returns the final
// raw reply text.
func (r *Resolver) runLoop(ctx context.Context, req *TurnRequest, system, user string, outcome *TurnOutcome) (string, error) {
	iterationBudget := r.cfg.TurnLoop.IterationBudget
	if iterationBudget <= 0 {
		iterationBudget = config.DefaultIterationBudget
	}
	maxCalls := iterationBudget + 1

	accumulator := user

	for call := 0; call < maxCalls; call++ {
		withTools := call < iterationBudget
		if !withTools {
			accumulator += "\n\n" + prompt.FinalRoundNotice
		}

		genReq := llm.GenerateRequest{
			System:         system,
			Text:           accumulator,
			ThinkingBudget: r.thinkingBudgetFor(call),
			MaxTokens:      r.maxReplyTokens(),
		}
		if withTools {
			genReq.Tools = r.toolRegistry.Definitions()
			// The opening round of an active turn must ground itself in
			// current board facts before proposing anything.
			genReq.ForceTools = call == 0 && req.Kind == parser.KindActiveTurn
		}

		if r.acquire != nil {
			estimate := utils.EstimateTokens(system+accumulator) + genReq.MaxTokens
			if err := r.acquire(ctx, estimate); err != nil {
				return "", err
			}
		}

		r.status.Set(req.SeatID, StateAwaitingModel)
		result, err := r.client.Generate(ctx, genReq)
		outcome.ModelCalls++

		if err != nil {
			errType := llmerrors.TypeOf(err).String()
			r.recorder.ObserveModelCall(r.client.ModelName(), req.SeatID, string(req.Kind),
				metrics.ModelCallTokens{}, 0, false, errType, 0)
			r.logEvent(req.SeatID, eventlog.KindError, map[string]any{
				"error":      err.Error(),
				"error_type": errType,
				"call":       call,
			})
			return "", err
		}

		outcome.Tokens.Prompt += result.Tokens.Prompt
		outcome.Tokens.Completion += result.Tokens.Completion
		outcome.Tokens.Thinking += result.Tokens.Thinking

		callCost := estimateCost(r.modelCfg, result.Tokens)
		outcome.CostUSD += callCost
		r.recorder.ObserveModelCall(r.client.ModelName(), req.SeatID, string(req.Kind),
			metrics.ModelCallTokens{
				Prompt:     result.Tokens.Prompt,
				Completion: result.Tokens.Completion,
				Thinking:   result.Tokens.Thinking,
			}, callCost, true, "", result.Latency)
		r.logEvent(req.SeatID, eventlog.KindModelResponse, map[string]any{
			"call":          call,
			"latency_ms":    result.Latency.Milliseconds(),
			"stop_reason":   result.StopReason,
			"tool_requests": len(result.ToolRequests),
			"text_size":     len(result.Text),
		})

		if len(result.ToolRequests) == 0 || !withTools {
			return result.Text, nil
		}

		r.status.Set(req.SeatID, StateToolsRequested)
		batch := r.executor.ExecuteBatch(ctx, result.ToolRequests)
		outcome.Batches = append(outcome.Batches, batch)

		for i := range batch.Calls {
			c := &batch.Calls[i]
			r.recorder.ObserveToolCall(c.Name, c.Success, c.Elapsed)
		}
		r.logEvent(req.SeatID, eventlog.KindToolBatch, map[string]any{
			"calls":     len(batch.Calls),
			"failed":    batch.Failed(),
			"elapsed_m": batch.TotalElapsed().Milliseconds(),
		})

		if result.Text != "" {
			accumulator += "\n\n" + result.Text
		}
		accumulator += "\n\n" + tools.FormatForReinjection(batch)
	}

	// Unreachable: the final iteration always returns.
	return "", llmerrors.NewError(llmerrors.ErrorTypeUnknown, "conversation loop exited without a reply")
}

// finalize applies a successful (or rescued) reply to the agent's state.
func (r *Resolver) finalize(req *TurnRequest, agent *roster.AgentState, outcome *TurnOutcome, parsedOK bool) {
	r.status.Set(req.SeatID, StateFinalizing)

	if req.Kind == parser.KindActiveTurn {
		if action, ok := outcome.Data[parser.FieldAction].(map[string]any); ok {
			if r.override != nil && r.cfg.Override.Enabled {
				if merged, replaced := r.override(req.SeatID, action); replaced && merged != nil {
					// Operator notes ride alongside the replacement action and
					// land in the reply fields, not the action object.
					if note, ok := merged[parser.FieldMemory].(string); ok && note != "" {
						outcome.Data[parser.FieldMemory] = note
					}
					delete(merged, parser.FieldMemory)
					if line, ok := merged[parser.FieldTableTalk].(string); ok && line != "" {
						outcome.Data[parser.FieldTableTalk] = line
					}
					delete(merged, parser.FieldTableTalk)
					action = merged
					outcome.Data[parser.FieldAction] = merged
				}
			}
			outcome.Action = action
		}
	}

	if note, ok := outcome.Data[parser.FieldMemory].(string); ok && note != "" {
		r.registry.SetMemory(req.SeatID, note)
	}

	if line, ok := outcome.Data[parser.FieldTableTalk].(string); ok && line != "" && r.chat != nil {
		r.chat.Post(req.SeatID, agent.Name, line)
		if r.store != nil {
			if err := r.store.InsertChatMessage(req.SeatID, agent.Name, line); err != nil {
				r.logger.Warn("Failed to persist chat message: %v", err)
			}
		}
		r.logEvent(req.SeatID, eventlog.KindTableTalk, map[string]any{"text": line})
	}

	r.registry.RecordOutcome(req.SeatID, parsedOK, outcome.Tokens.Total())
	// Events are cleared only now, so a turn that errored out earlier keeps
	// its context for the retry.
	r.registry.ClearEvents(req.SeatID)
}

// finalizeFailure records a turn that never produced a reply.
func (r *Resolver) finalizeFailure(req *TurnRequest, outcome *TurnOutcome) {
	r.registry.RecordOutcome(req.SeatID, false, outcome.Tokens.Total())
	r.recordTurn(req, outcome)
	r.status.Set(req.SeatID, StateResolved)
}

// recordTurn writes the turn to persistence, the event log, and metrics.
func (r *Resolver) recordTurn(req *TurnRequest, outcome *TurnOutcome) {
	r.recorder.ObserveTurn(req.SeatID, string(req.Kind), outcome.Success, outcome.Elapsed)

	r.logEvent(req.SeatID, eventlog.KindTurnResolved, map[string]any{
		"success":     outcome.Success,
		"fallback":    outcome.Fallback,
		"action":      outcome.ActionType(),
		"model_calls": outcome.ModelCalls,
		"tool_calls":  outcome.ToolCallCount(),
		"tokens":      outcome.Tokens.Total(),
		"cost_usd":    outcome.CostUSD,
		"elapsed_ms":  outcome.Elapsed.Milliseconds(),
		"error_kind":  outcome.ErrorKind,
	})

	if r.store != nil {
		rec := &persistence.TurnRecord{
			SeatID:           req.SeatID,
			Kind:             string(req.Kind),
			Success:          outcome.Success,
			ActionType:       outcome.ActionType(),
			ModelCalls:       outcome.ModelCalls,
			ToolCalls:        outcome.ToolCallCount(),
			PromptTokens:     outcome.Tokens.Prompt,
			CompletionTokens: outcome.Tokens.Completion,
			ThinkingTokens:   outcome.Tokens.Thinking,
			CostUSD:          outcome.CostUSD,
			LatencyMs:        outcome.Elapsed.Milliseconds(),
			ErrorKind:        outcome.ErrorKind,
		}
		if err := r.store.InsertTurn(rec); err != nil {
			r.logger.Warn("Failed to persist turn record: %v", err)
		}
	}
}

// logEvent writes to the event log when one is configured.
func (r *Resolver) logEvent(seatID, kind string, payload map[string]any) {
	if r.events == nil {
		return
	}
	if err := r.events.Write(seatID, kind, payload); err != nil {
		r.logger.Warn("Failed to write event log entry: %v", err)
	}
}

// thinkingBudgetFor returns the per-round thinking budget: the configured
// schedule entry when present, the last entry when the schedule is shorter
// than the round index, or the flat default.
func (r *Resolver) thinkingBudgetFor(call int) int {
	budgets := r.cfg.TurnLoop.ThinkingBudgets
	if len(budgets) == 0 {
		return config.DefaultThinkingBudget
	}
	if call < len(budgets) {
		return budgets[call]
	}
	return budgets[len(budgets)-1]
}

// maxReplyTokens resolves the reply cap from turn-loop config, model config,
// then the default.
func (r *Resolver) maxReplyTokens() int {
	if r.cfg.TurnLoop.MaxReplyTokens > 0 {
		return r.cfg.TurnLoop.MaxReplyTokens
	}
	if r.modelCfg != nil && r.modelCfg.MaxReplyTokens > 0 {
		return r.modelCfg.MaxReplyTokens
	}
	return config.DefaultMaxReplyTokens
}

// withWaitAction appends the universal wait action to a non-empty allow-list
// that lacks it. Whatever the legal game actions are, a seat may always
// choose to do nothing.
func withWaitAction(allowed []string) []string {
	if len(allowed) == 0 {
		return allowed
	}
	for _, t := range allowed {
		if strings.EqualFold(t, parser.ActionWait) {
			return allowed
		}
	}
	out := make([]string, 0, len(allowed)+1)
	out = append(out, allowed...)
	return append(out, parser.ActionWait)
}

// fallbackData builds the deterministic inert reply used when parsing fails
// outright.
func fallbackData(kind parser.Kind) map[string]any {
	data := map[string]any{
		parser.FieldThinking: "(no reasoning provided)",
	}
	if kind == parser.KindActiveTurn {
		data[parser.FieldAction] = map[string]any{
			"type":       ActionEndTurn,
			"parameters": map[string]any{},
		}
	}
	return data
}
