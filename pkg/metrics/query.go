package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// SeatMetrics represents aggregated metrics for one seat over the session.
type SeatMetrics struct {
	SeatID           string  `json:"seat_id"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	ThinkingTokens   int64   `json:"thinking_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	TotalCost        float64 `json:"total_cost_usd"`
}

// QueryService queries aggregated metrics back from Prometheus.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a metrics query service for the given Prometheus
// server URL.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// GetSeatMetrics retrieves aggregated token and cost metrics for one seat,
// summed across all models and turn kinds.
func (q *QueryService) GetSeatMetrics(ctx context.Context, seatID string) (*SeatMetrics, error) {
	metrics := &SeatMetrics{SeatID: seatID}

	var err error
	if metrics.PromptTokens, err = q.sumQuery(ctx,
		fmt.Sprintf(`sum(llm_tokens_total{seat_id=%q, type="prompt"})`, seatID)); err != nil {
		return nil, fmt.Errorf("failed to query prompt tokens: %w", err)
	}
	if metrics.CompletionTokens, err = q.sumQuery(ctx,
		fmt.Sprintf(`sum(llm_tokens_total{seat_id=%q, type="completion"})`, seatID)); err != nil {
		return nil, fmt.Errorf("failed to query completion tokens: %w", err)
	}
	if metrics.ThinkingTokens, err = q.sumQuery(ctx,
		fmt.Sprintf(`sum(llm_tokens_total{seat_id=%q, type="thinking"})`, seatID)); err != nil {
		return nil, fmt.Errorf("failed to query thinking tokens: %w", err)
	}
	metrics.TotalTokens = metrics.PromptTokens + metrics.CompletionTokens + metrics.ThinkingTokens

	costQuery := fmt.Sprintf(`sum(llm_costs_total{seat_id=%q})`, seatID)
	costResult, _, err := q.queryAPI.Query(ctx, costQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query total cost: %w", err)
	}
	if vector, ok := costResult.(model.Vector); ok && len(vector) > 0 {
		metrics.TotalCost = float64(vector[0].Value)
	}

	return metrics, nil
}

// sumQuery runs a scalar sum() query and returns the value, zero when the
// series does not exist yet.
func (q *QueryService) sumQuery(ctx context.Context, query string) (int64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, err
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return int64(vector[0].Value), nil
	}
	return 0, nil
}
