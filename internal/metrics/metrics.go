// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerai_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledgerai_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	questionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerai_questions_total",
			Help: "Questions answered, by mode and outcome (ok or the error kind).",
		},
		[]string{"mode", "outcome"},
	)

	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledgerai_pipeline_stage_duration_seconds",
			Help:    "Latency of each question pipeline stage.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		},
		[]string{"stage"},
	)

	resultRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ledgerai_result_rows",
			Help:    "Rows returned per executed question.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	synthesisFallbackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledgerai_synthesis_fallback_total",
			Help: "Answers that fell back to the fixed text because synthesis failed.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		questionsTotal,
		stageDurationSeconds,
		resultRows,
		synthesisFallbackTotal,
	)
}

// Pipeline stage labels.
const (
	StageSchema     = "schema"
	StageGenerate   = "generate"
	StageExecute    = "execute"
	StageSynthesize = "synthesize"
	StageAgent      = "agent"
)

func ObserveHTTPRequest(method, route, status string, elapsed time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, status).Observe(elapsed.Seconds())
}

func ObserveStage(stage string, elapsed time.Duration) {
	stageDurationSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func ObserveQuestion(mode, outcome string, rows int) {
	questionsTotal.WithLabelValues(mode, outcome).Inc()
	if outcome == "ok" {
		resultRows.Observe(float64(rows))
	}
}

func IncrementSynthesisFallback() {
	synthesisFallbackTotal.Inc()
}
