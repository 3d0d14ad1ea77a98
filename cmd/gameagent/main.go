// Command gameagent runs a self-contained session of the turn-resolution
// engine: it registers the table's agents, feeds them a demo board, and
// resolves turns round-robin until interrupted.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/term"

	"gameagent/pkg/board"
	"gameagent/pkg/chat"
	"gameagent/pkg/config"
	"gameagent/pkg/eventlog"
	"gameagent/pkg/limiter"
	"gameagent/pkg/llm/factory"
	"gameagent/pkg/logx"
	"gameagent/pkg/metrics"
	"gameagent/pkg/parser"
	"gameagent/pkg/persistence"
	"gameagent/pkg/roster"
	"gameagent/pkg/tools"
	"gameagent/pkg/turnloop"
)

func main() {
	var configPath string
	var metricsAddr string
	var rounds int
	flag.StringVar(&configPath, "config", "", "Path to config file (YAML)")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9091)")
	flag.IntVar(&rounds, "rounds", 0, "Stop after this many full rounds (0 = run until interrupted)")
	flag.Parse()

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}

	logger := logx.NewLogger("main")

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg = config.Default()
		cfg.ApplyDefaults()
		err = cfg.Validate()
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	modelCfg := cfg.ActiveModel()
	if modelCfg == nil {
		log.Fatalf("No model configured")
	}

	client, err := factory.NewClient(modelCfg)
	if err != nil {
		log.Fatalf("Failed to create model client: %v", err)
	}

	sessionID := uuid.NewString()

	var store *persistence.Store
	if cfg.Storage.DatabasePath != "" {
		if err := persistence.Initialize(cfg.Storage.DatabasePath, sessionID); err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer func() { _ = persistence.Close() }()
		store = persistence.Ops()
		if err := store.BeginSession(modelCfg.Name); err != nil {
			log.Fatalf("Failed to record session: %v", err)
		}
	}

	var events *eventlog.Writer
	if cfg.Storage.EventLogDir != "" {
		events, err = eventlog.NewWriter(cfg.Storage.EventLogDir, sessionID)
		if err != nil {
			log.Fatalf("Failed to create event log: %v", err)
		}
		defer func() { _ = events.Close() }()
	}

	var recorder metrics.Recorder = metrics.NopRecorder{}
	if metricsAddr != "" {
		recorder = metrics.NewPrometheusRecorder()
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if serveErr := http.ListenAndServe(metricsAddr, nil); serveErr != nil {
				logger.Error("Metrics server failed: %v", serveErr)
			}
		}()
		logger.Info("Serving metrics on %s/metrics", metricsAddr)
	}

	registry := roster.NewRegistry()
	registry.Register("Ada", "seat-1", "red")
	registry.Register("Blaise", "seat-2", "blue")
	registry.Register("Curie", "seat-3", "white")

	chatService := chat.NewService(&cfg.Chat)
	library := tools.NewLibrary()

	bucket := limiter.NewTokenBucket(modelCfg.Name, modelCfg.MaxTokensPerMinute, recorder)
	defer bucket.Stop()

	status := turnloop.NewStatusBroadcaster(&cfg.Status)
	status.Subscribe(func(seatID string, state turnloop.State) {
		logger.Info("[%s] %s", seatID, state)
	})

	resolver, err := turnloop.New(turnloop.Options{
		Config:   cfg,
		ModelCfg: modelCfg,
		Client:   client,
		Registry: registry,
		Library:  library,
		Chat:     chatService,
		Status:   status,
		Recorder: recorder,
		Store:    store,
		Events:   events,
		Acquire:  bucket.Acquire,
	})
	if err != nil {
		log.Fatalf("Failed to create resolver: %v", err)
	}

	if cfg.Override.Enabled && term.IsTerminal(int(os.Stdin.Fd())) {
		resolver.SetOverride(promptOverride)
		logger.Info("Operator override enabled (interactive terminal detected)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Received signal %v, shutting down", sig)
		cancel()
	}()

	runSession(ctx, logger, registry, resolver, rounds)

	if store != nil {
		if summary, sumErr := store.Summary(); sumErr == nil {
			logger.Info("Session %s: %d turns, %d succeeded, %d tokens, $%.4f",
				summary.SessionID, summary.Turns, summary.Successes, summary.TotalTokens, summary.TotalCost)
			if events != nil {
				_ = events.Write("", eventlog.KindSessionEnd, map[string]any{
					"turns":        summary.Turns,
					"successes":    summary.Successes,
					"total_tokens": summary.TotalTokens,
					"cost_usd":     summary.TotalCost,
				})
			}
		}
	}

	if cfg.Metrics.PrometheusURL != "" {
		reportSeatMetrics(logger, cfg.Metrics.PrometheusURL, registry)
	}
}

// reportSeatMetrics queries per-seat token and cost totals back from
// Prometheus at session end. Best-effort: a missing or unreachable server
// only logs a warning.
func reportSeatMetrics(logger *logx.Logger, prometheusURL string, registry *roster.Registry) {
	query, err := metrics.NewQueryService(prometheusURL)
	if err != nil {
		logger.Warn("Failed to create metrics query service: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, agent := range registry.Agents() {
		seat, err := query.GetSeatMetrics(ctx, agent.ID)
		if err != nil {
			logger.Warn("Failed to query metrics for %s: %v", agent.ID, err)
			continue
		}
		logger.Info("%s (%s): %d tokens (%d prompt / %d completion / %d thinking), $%.4f",
			agent.Name, agent.ID, seat.TotalTokens,
			seat.PromptTokens, seat.CompletionTokens, seat.ThinkingTokens, seat.TotalCost)
	}
}

// runSession resolves turns round-robin: each seat gets one active turn per
// round while the others observe.
func runSession(ctx context.Context, logger *logx.Logger, registry *roster.Registry, resolver *turnloop.Resolver, rounds int) {
	snapshot := demoBoard()
	agents := registry.Agents()

	for round := 0; rounds <= 0 || round < rounds; round++ {
		for _, active := range agents {
			if ctx.Err() != nil {
				return
			}

			outcome, err := resolver.ResolveTurn(ctx, &turnloop.TurnRequest{
				SeatID:   active.ID,
				Kind:     parser.KindActiveTurn,
				Snapshot: snapshot,
			})
			if err != nil {
				logger.Error("Turn for %s failed: %v", active.ID, err)
				continue
			}

			actionType := outcome.ActionType()
			logger.Info("%s resolved: action=%s calls=%d tools=%d tokens=%d cost=$%.4f",
				active.ID, actionType, outcome.ModelCalls, outcome.ToolCallCount(),
				outcome.Tokens.Total(), outcome.CostUSD)

			registry.RecordEvent("action",
				fmt.Sprintf("player %s chose ActionType.%s", active.ID, strings.ToUpper(actionType)), nil)

			for _, observer := range agents {
				if observer.ID == active.ID || ctx.Err() != nil {
					continue
				}
				if _, obsErr := resolver.ResolveTurn(ctx, &turnloop.TurnRequest{
					SeatID: observer.ID,
					Kind:   parser.KindObservation,
				}); obsErr != nil {
					logger.Warn("Observation for %s failed: %v", observer.ID, obsErr)
				}
			}
		}
	}
}

// promptOverride asks the operator to accept or replace a proposed action.
// An empty line accepts; anything else becomes the replacement action type,
// followed by optional prompts for a memory note and a table-talk line that
// the resolver merges into the reply.
func promptOverride(seatID string, proposed map[string]any) (map[string]any, bool) {
	actionType, _ := proposed["type"].(string)
	fmt.Printf("\n[%s] model proposes %q - press enter to accept, or type a replacement action: ", seatID, actionType)

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return nil, false
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, false
	}

	merged := map[string]any{
		"type":       line,
		"parameters": map[string]any{},
	}

	fmt.Print("memory note (enter to skip): ")
	if note, readErr := reader.ReadString('\n'); readErr == nil {
		if note = strings.TrimSpace(note); note != "" {
			merged[parser.FieldMemory] = note
		}
	}

	fmt.Print("say to the table (enter to skip): ")
	if talk, readErr := reader.ReadString('\n'); readErr == nil {
		if talk = strings.TrimSpace(talk); talk != "" {
			merged[parser.FieldTableTalk] = talk
		}
	}

	return merged, true
}

// demoBoard builds a small board for standalone runs: six nodes around two
// production sites plus a port.
func demoBoard() *board.Snapshot {
	return &board.Snapshot{
		Sites: []board.ResourceSite{
			{ID: 1, Resource: "wood", Number: 8},
			{ID: 2, Resource: "brick", Number: 5},
			{ID: 3, Resource: "wheat", Number: 10},
			{ID: 4, Resource: "desert", Number: 0},
		},
		Nodes: []board.Node{
			{ID: 1, SiteIDs: []int{1, 2}, Neighbors: []int{2, 6}},
			{ID: 2, SiteIDs: []int{1, 3}, Neighbors: []int{1, 3}, Port: "generic"},
			{ID: 3, SiteIDs: []int{2, 3}, Neighbors: []int{2, 4}},
			{ID: 4, SiteIDs: []int{3, 4}, Neighbors: []int{3, 5}},
			{ID: 5, SiteIDs: []int{4}, Neighbors: []int{4, 6}, Port: "wood"},
			{ID: 6, SiteIDs: []int{1}, Neighbors: []int{5, 1}},
		},
	}
}
