// Package metrics provides Prometheus-based recording of engine activity
// and services for querying aggregated metrics back.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder abstracts metrics recording so tests can substitute a no-op.
type Recorder interface {
	ObserveModelCall(model, seatID, kind string, tokens ModelCallTokens, cost float64, success bool, errorType string, duration time.Duration)
	ObserveToolCall(tool string, success bool, duration time.Duration)
	ObserveTurn(seatID, kind string, success bool, duration time.Duration)
	IncParseFailure(seatID, errorKind string)
	IncThrottle(model, reason string)
}

// ModelCallTokens carries the token usage labels for one model call.
type ModelCallTokens struct {
	Prompt     int
	Completion int
	Thinking   int
}

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	costsTotal      *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	toolCallsTotal  *prometheus.CounterVec
	toolDuration    *prometheus.HistogramVec
	turnsTotal      *prometheus.CounterVec
	turnDuration    *prometheus.HistogramVec
	parseFailures   *prometheus.CounterVec
	throttleTotal   *prometheus.CounterVec
}

// NewPrometheusRecorder creates a Prometheus-based metrics recorder. Metrics
// are registered on the default registry, so construct at most one per
// process.
func NewPrometheusRecorder() *PrometheusRecorder {
	return &PrometheusRecorder{
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "Total number of model calls by model, seat, turn kind, and status",
			},
			[]string{"model", "seat_id", "kind", "status", "error_type"},
		),
		tokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tokens_total",
				Help: "Total number of tokens used in model calls",
			},
			[]string{"model", "seat_id", "kind", "type"},
		),
		costsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_costs_total",
				Help: "Total cost in USD for model calls",
			},
			[]string{"model", "seat_id", "kind"},
		),
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_request_duration_seconds",
				Help:    "Duration of model calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model", "seat_id", "kind"},
		),
		toolCallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_calls_total",
				Help: "Total number of board query tool executions",
			},
			[]string{"tool", "status"},
		),
		toolDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tool_call_duration_seconds",
				Help:    "Duration of board query tool executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		turnsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turns_total",
				Help: "Total number of resolved turns by seat, kind, and status",
			},
			[]string{"seat_id", "kind", "status"},
		),
		turnDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "turn_duration_seconds",
				Help:    "End-to-end turn resolution time in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
			},
			[]string{"seat_id", "kind"},
		),
		parseFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parse_failures_total",
				Help: "Total number of model replies that failed parsing",
			},
			[]string{"seat_id", "error_kind"},
		),
		throttleTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_throttle_total",
				Help: "Total number of model call throttling events",
			},
			[]string{"model", "reason"},
		),
	}
}

// ObserveModelCall records metrics for one completed model call.
func (p *PrometheusRecorder) ObserveModelCall(
	model, seatID, kind string,
	tokens ModelCallTokens,
	cost float64,
	success bool,
	errorType string,
	duration time.Duration,
) {
	status := "success"
	if !success {
		status = "error"
	}

	p.requestsTotal.WithLabelValues(model, seatID, kind, status, errorType).Inc()

	if success {
		p.tokensTotal.WithLabelValues(model, seatID, kind, "prompt").Add(float64(tokens.Prompt))
		p.tokensTotal.WithLabelValues(model, seatID, kind, "completion").Add(float64(tokens.Completion))
		p.tokensTotal.WithLabelValues(model, seatID, kind, "thinking").Add(float64(tokens.Thinking))
		p.costsTotal.WithLabelValues(model, seatID, kind).Add(cost)
	}

	p.requestDuration.WithLabelValues(model, seatID, kind).Observe(duration.Seconds())
}

// ObserveToolCall records one board query tool execution.
func (p *PrometheusRecorder) ObserveToolCall(tool string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	p.toolCallsTotal.WithLabelValues(tool, status).Inc()
	p.toolDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// ObserveTurn records one resolved turn.
func (p *PrometheusRecorder) ObserveTurn(seatID, kind string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	p.turnsTotal.WithLabelValues(seatID, kind, status).Inc()
	p.turnDuration.WithLabelValues(seatID, kind).Observe(duration.Seconds())
}

// IncParseFailure increments the parse failure counter.
func (p *PrometheusRecorder) IncParseFailure(seatID, errorKind string) {
	p.parseFailures.WithLabelValues(seatID, errorKind).Inc()
}

// IncThrottle increments the throttle counter for rate limiting events.
func (p *PrometheusRecorder) IncThrottle(model, reason string) {
	p.throttleTotal.WithLabelValues(model, reason).Inc()
}

// NopRecorder discards all observations. Used in tests and when metrics are
// disabled.
type NopRecorder struct{}

// ObserveModelCall implements Recorder.
func (NopRecorder) ObserveModelCall(string, string, string, ModelCallTokens, float64, bool, string, time.Duration) {
}

// ObserveToolCall implements Recorder.
func (NopRecorder) ObserveToolCall(string, bool, time.Duration) {}

// ObserveTurn implements Recorder.
func (NopRecorder) ObserveTurn(string, string, bool, time.Duration) {}

// IncParseFailure implements Recorder.
func (NopRecorder) IncParseFailure(string, string) {}

// IncThrottle implements Recorder.
func (NopRecorder) IncThrottle(string, string) {}
