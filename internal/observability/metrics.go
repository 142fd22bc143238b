package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ent0n29/aspbot/internal/errs"
)

// Pipeline stages, used as metric labels and window keys.
const (
	StageWakeWord    = "wake_word"
	StageTranscribe  = "transcribe"
	StageRetrieve    = "retrieve"
	StageGenerate    = "generate"
	StageSynthesize  = "synthesize"
	StageInteraction = "interaction_total"
)

// Interaction outcomes.
const (
	OutcomeNoWake   = "no_wake"
	OutcomeAnswered = "answered"
	OutcomeFallback = "fallback"
	OutcomeFailed   = "failed"
)

// RAG decisions.
const (
	DecisionAnswered       = "answered"
	DecisionNoDocuments    = "no_documents"
	DecisionBelowThreshold = "below_threshold"
	DecisionCacheHit       = "cache_hit"
	DecisionRefusal        = "refusal"
	DecisionLowOverlap     = "low_overlap"
)

// Metrics groups all Prometheus instruments used by the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Interactions   *prometheus.CounterVec
	StageLatency   *prometheus.HistogramVec
	StageErrors    *prometheus.CounterVec
	RAGDecisions   *prometheus.CounterVec
	ActiveSessions prometheus.Gauge
	SessionEvents  *prometheus.CounterVec
	HealthProbe    *prometheus.GaugeVec

	window *stageWindow
}

// NewMetrics registers instruments on reg, or the default registry when reg is nil.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Interactions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interactions_total",
			Help:      "Voice interactions by outcome.",
		}, []string{"outcome"}),
		StageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_latency_ms",
			Help:      "Pipeline stage latency in milliseconds.",
			Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2000, 4000, 8000, 16000},
		}, []string{"stage"}),
		StageErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_errors_total",
			Help:      "Pipeline stage failures by stage and error kind.",
		}, []string{"stage", "kind"}),
		RAGDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rag_decisions_total",
			Help:      "Retrieval gate decisions.",
		}, []string{"decision"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of sessions seen recently.",
		}),
		SessionEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		HealthProbe: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "health_probe",
			Help:      "Last capability probe result (1 operational, 0 not).",
		}, []string{"service"}),
		window: newStageWindow(256),
	}
}

// ObserveStage records latency for stage and, when err is set, a failure by kind.
func (m *Metrics) ObserveStage(stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	ms := float64(d.Microseconds()) / 1000
	m.StageLatency.WithLabelValues(stage).Observe(ms)
	m.window.Observe(stage, ms)
	if err != nil {
		m.StageErrors.WithLabelValues(stage, errorKind(err)).Inc()
	}
}

func (m *Metrics) ObserveInteraction(outcome string) {
	if m == nil {
		return
	}
	m.Interactions.WithLabelValues(outcome).Inc()
	m.window.ObserveIndicator("outcome_" + outcome)
}

func (m *Metrics) ObserveRAGDecision(decision string) {
	if m == nil {
		return
	}
	m.RAGDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) SessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) SetHealth(service string, ok bool) {
	if m == nil {
		return
	}
	v := 0.0
	if ok {
		v = 1
	}
	m.HealthProbe.WithLabelValues(service).Set(v)
}

// StageSnapshot returns rolling latency percentiles per stage.
func (m *Metrics) StageSnapshot() StageSnapshot {
	if m == nil {
		return StageSnapshot{GeneratedAt: time.Now().UTC()}
	}
	return m.window.Snapshot()
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	if k := errs.KindOf(err); k != "" {
		return string(k)
	}
	return "unknown"
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
