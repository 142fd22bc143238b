package voice

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/aspbot/internal/observability"
)

// Health service names reported by /health.
const (
	ServiceWakeWord      = "wake_word"
	ServiceSpeechToText  = "speech_to_text"
	ServiceTextToSpeech  = "text_to_speech"
	ServiceKnowledgeBase = "knowledge_base"
)

// HealthReport is the aggregate view of every capability probe.
type HealthReport struct {
	Status   string          `json:"status"`
	Version  string          `json:"version"`
	Services map[string]bool `json:"services"`
}

// Health runs capability probes concurrently. A probe that fails, times out or
// panics is reported as false; Check itself never fails.
type Health struct {
	version string
	timeout time.Duration
	probes  map[string]Prober
	metrics *observability.Metrics
	log     *zap.Logger
}

func NewHealth(version string, timeout time.Duration, metrics *observability.Metrics, log *zap.Logger) *Health {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Health{
		version: version,
		timeout: timeout,
		probes:  make(map[string]Prober),
		metrics: metrics,
		log:     log,
	}
}

// Register adds a probe. Values that do not implement Prober count as operational
// when non-nil.
func (h *Health) Register(name string, capability any) {
	if p, ok := capability.(Prober); ok {
		h.probes[name] = p
		return
	}
	h.probes[name] = staticProbe(capability != nil)
}

func (h *Health) Check(ctx context.Context) HealthReport {
	report := HealthReport{Status: "ok", Version: h.version, Services: make(map[string]bool, len(h.probes))}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, p := range h.probes {
		wg.Add(1)
		go func(name string, p Prober) {
			defer wg.Done()
			ok := h.probe(ctx, name, p)
			mu.Lock()
			report.Services[name] = ok
			mu.Unlock()
		}(name, p)
	}
	wg.Wait()

	for name, ok := range report.Services {
		h.metrics.SetHealth(name, ok)
		if !ok {
			report.Status = "degraded"
		}
	}
	return report
}

func (h *Health) probe(ctx context.Context, name string, p Prober) (ok bool) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	done := make(chan bool, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				h.log.Warn("health probe panicked", zap.String("service", name), zap.Any("panic", r))
				done <- false
			}
		}()
		done <- p.IsOperational(ctx)
	}()
	select {
	case ok = <-done:
	case <-ctx.Done():
		ok = false
	}
	if !ok {
		h.log.Warn("health probe failed", zap.String("service", name))
	}
	return ok
}

type staticProbe bool

func (s staticProbe) IsOperational(context.Context) bool { return bool(s) }
