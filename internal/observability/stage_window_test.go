package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ent0n29/aspbot/internal/errs"
)

func TestStageWindowSnapshot(t *testing.T) {
	w := newStageWindow(8)
	w.Observe(StageSynthesize, 500)
	w.Observe(StageSynthesize, 700)
	w.Observe(StageSynthesize, 900)
	w.ObserveIndicator("outcome_answered")
	w.ObserveIndicator("outcome_answered")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != StageSynthesize || s.Samples != 3 {
		t.Fatalf("stage = %q/%d, want %q/3", s.Stage, s.Samples, StageSynthesize)
	}
	if s.LastMS != 900 || s.MaxMS != 900 {
		t.Fatalf("LastMS/MaxMS = %.2f/%.2f, want 900/900", s.LastMS, s.MaxMS)
	}
	if s.P50MS != 700 {
		t.Fatalf("P50MS = %.2f, want 700", s.P50MS)
	}
	if s.P95MS <= 700 || s.P95MS > 900 {
		t.Fatalf("P95MS = %.2f, want (700,900]", s.P95MS)
	}
	if s.TargetP95MS != 1500 {
		t.Fatalf("TargetP95MS = %.2f, want 1500", s.TargetP95MS)
	}
	if snap.Outcomes["outcome_answered"] != 2 {
		t.Fatalf("Outcomes = %v, want outcome_answered=2", snap.Outcomes)
	}
}

func TestStageWindowWrapsAround(t *testing.T) {
	w := newStageWindow(2)
	for _, v := range []float64{10, 20, 30} {
		w.Observe(StageRetrieve, v)
	}
	s := w.Snapshot().Stages[0]
	if s.Samples != 2 || s.AvgMS != 25 {
		t.Fatalf("Samples/AvgMS = %d/%.2f, want 2/25", s.Samples, s.AvgMS)
	}
}

func TestMetricsStageErrorKinds(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())
	m.ObserveStage(StageTranscribe, 10*time.Millisecond, errs.Speech("error transcribing audio", errors.New("boom")))
	m.ObserveStage(StageRetrieve, time.Millisecond, context.DeadlineExceeded)
	m.ObserveStage(StageGenerate, time.Millisecond, nil)

	if got := testutil.ToFloat64(m.StageErrors.WithLabelValues(StageTranscribe, "speech_processing")); got != 1 {
		t.Fatalf("speech errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.StageErrors.WithLabelValues(StageRetrieve, "timeout")); got != 1 {
		t.Fatalf("timeout errors = %v, want 1", got)
	}
	if n := len(m.StageSnapshot().Stages); n != 3 {
		t.Fatalf("snapshot stages = %d, want 3", n)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveStage(StageWakeWord, time.Millisecond, nil)
	m.ObserveInteraction(OutcomeFailed)
	m.SetHealth("wake_word", true)
	if snap := m.StageSnapshot(); len(snap.Stages) != 0 {
		t.Fatalf("nil metrics snapshot = %+v, want empty", snap)
	}
}
