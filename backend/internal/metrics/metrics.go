package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage labels for StageLatency
const (
	StageSanitize = "sanitize"
	StagePropose  = "propose"
	StageAssess   = "assess"
	StagePolicy   = "policy"
)

// Standard Prometheus collectors for the guardrail
var (
	// guardrail_invocations_total (counter): pipeline runs started
	InvocationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guardrail_invocations_total",
		Help: "Total number of guardrail pipeline invocations",
	})

	// guardrail_decisions_total{decision=allow|deny|escalate}
	DecisionCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guardrail_decisions_total",
		Help: "Number of policy decisions, failures counted as deny",
	}, []string{"decision"})

	// guardrail_signals_total{signal=hidden_text|meta_refresh|...}
	SignalDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guardrail_signals_total",
		Help: "Number of times a risk signal was extracted from page content",
	}, []string{"signal"})

	// guardrail_generation_failures_total{kind=generation_auth|...}
	GenerationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guardrail_generation_failures_total",
		Help: "Number of failed intent generations by failure kind",
	}, []string{"kind"})

	// guardrail_degraded_parses_total (counter)
	DegradedParses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guardrail_degraded_parses_total",
		Help: "Number of page bodies handled as plain text after markup parsing failed",
	})

	// guardrail_stage_latency_seconds{stage}
	StageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "guardrail_stage_latency_seconds",
		Help:    "Latency of each pipeline stage in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	// guardrail_latency_seconds (histogram): whole pipeline duration
	LatencyHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "guardrail_latency_seconds",
		Help:    "Pipeline processing latency in seconds",
		Buckets: prometheus.DefBuckets,
	})
)

// RecordSignals increments the signal counter once per signal
func RecordSignals(signals []string) {
	for _, s := range signals {
		SignalDetected.WithLabelValues(s).Inc()
	}
}

// RecordDecision increments the decision counter
func RecordDecision(decision string) {
	DecisionCount.WithLabelValues(decision).Inc()
}

// RecordGenerationFailure increments the failure counter for kind
func RecordGenerationFailure(kind string) {
	GenerationFailures.WithLabelValues(kind).Inc()
}

// ObserveStage records how long a stage took
func ObserveStage(stage string, d time.Duration) {
	StageLatency.WithLabelValues(stage).Observe(d.Seconds())
}
