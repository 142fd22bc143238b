package voice

import (
	"context"
	"testing"
	"time"
)

type funcProbe func(ctx context.Context) bool

func (f funcProbe) IsOperational(ctx context.Context) bool { return f(ctx) }

func TestHealthAllOperational(t *testing.T) {
	h := NewHealth("1.0.0", time.Second, nil, nil)
	h.Register(ServiceWakeWord, &MockDetector{})
	h.Register(ServiceSpeechToText, NewMockRecognizer("въпрос", "bg"))
	h.Register(ServiceTextToSpeech, &MockSynthesizer{})
	h.Register(ServiceKnowledgeBase, funcProbe(func(context.Context) bool { return true }))

	got := h.Check(context.Background())
	if got.Status != "ok" || got.Version != "1.0.0" {
		t.Fatalf("Check() = %+v, want ok 1.0.0", got)
	}
	for _, name := range []string{ServiceWakeWord, ServiceSpeechToText, ServiceTextToSpeech, ServiceKnowledgeBase} {
		if !got.Services[name] {
			t.Fatalf("Services[%s] = false, want true", name)
		}
	}
}

func TestHealthDegradedOnFailurePanicOrTimeout(t *testing.T) {
	h := NewHealth("1.0.0", 50*time.Millisecond, nil, nil)
	h.Register(ServiceWakeWord, funcProbe(func(context.Context) bool { return true }))
	h.Register(ServiceSpeechToText, funcProbe(func(context.Context) bool { panic("boom") }))
	h.Register(ServiceTextToSpeech, funcProbe(func(ctx context.Context) bool {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return true
	}))
	h.Register(ServiceKnowledgeBase, funcProbe(func(context.Context) bool { return false }))

	got := h.Check(context.Background())
	if got.Status != "degraded" {
		t.Fatalf("Status = %q, want degraded", got.Status)
	}
	want := map[string]bool{
		ServiceWakeWord:      true,
		ServiceSpeechToText:  false,
		ServiceTextToSpeech:  false,
		ServiceKnowledgeBase: false,
	}
	for name, ok := range want {
		if got.Services[name] != ok {
			t.Fatalf("Services[%s] = %v, want %v", name, got.Services[name], ok)
		}
	}
}

func TestHealthNonProberCapability(t *testing.T) {
	h := NewHealth("dev", time.Second, nil, nil)
	h.Register(ServiceWakeWord, struct{}{})
	h.Register(ServiceKnowledgeBase, nil)

	got := h.Check(context.Background())
	if !got.Services[ServiceWakeWord] || got.Services[ServiceKnowledgeBase] {
		t.Fatalf("Services = %v", got.Services)
	}
}
