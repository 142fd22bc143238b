package voice

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ent0n29/aspbot/internal/audio"
	"github.com/ent0n29/aspbot/internal/errs"
)

func TestHTTPSynthesizerSynthesize(t *testing.T) {
	var got speechRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		wav, _ := audio.EncodeWAVPCM16LE(loudPCM(240), 24000)
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	s := NewHTTPSynthesizer(SynthesizerConfig{URL: srv.URL, Model: "tts-1", Voice: "alloy"}, nil)
	out, err := s.Synthesize(context.Background(), "**Адрес:** ул. Витоша 1")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if !audio.IsWAV(out) {
		t.Fatalf("Synthesize() output is not WAV")
	}
	if got.Model != "tts-1" || got.Voice != "alloy" || got.ResponseFormat != "wav" {
		t.Fatalf("request = %+v", got)
	}
	if got.Input != "Адрес: улица Витоша 1" {
		t.Fatalf("input = %q", got.Input)
	}
}

func TestHTTPSynthesizerWrapsRawPCM(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(loudPCM(240))
	}))
	defer srv.Close()

	s := NewHTTPSynthesizer(SynthesizerConfig{URL: srv.URL, Voice: "alloy"}, nil)
	out, err := s.Synthesize(context.Background(), "здравей")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	pcm, rate, err := audio.DecodeWAV(out)
	if err != nil {
		t.Fatalf("DecodeWAV() error = %v", err)
	}
	if rate != 24000 || len(pcm) != 480 {
		t.Fatalf("decoded rate=%d len=%d, want 24000/480", rate, len(pcm))
	}
}

func TestHTTPSynthesizerInitFailureIsRetried(t *testing.T) {
	s := NewHTTPSynthesizer(SynthesizerConfig{URL: "http://tts.local/v1/audio/speech"}, nil)
	if _, err := s.Synthesize(context.Background(), "здравей"); !errors.Is(err, errs.ErrSpeechProcessing) {
		t.Fatalf("Synthesize() error = %v, want speech_processing", err)
	}
	if s.IsOperational(context.Background()) {
		t.Fatalf("IsOperational() = true without a voice")
	}

	// Fixing the config behind the handle makes the next call succeed.
	s.cfg.Voice = "alloy"
	if !s.IsOperational(context.Background()) {
		t.Fatalf("IsOperational() = false after voice was set")
	}
}

func TestHTTPSynthesizerEmptyText(t *testing.T) {
	s := NewHTTPSynthesizer(SynthesizerConfig{URL: "http://tts.local", Voice: "alloy"}, nil)
	if _, err := s.Synthesize(context.Background(), "  **  "); !errors.Is(err, errs.ErrSpeechProcessing) {
		t.Fatalf("Synthesize() error = %v, want speech_processing", err)
	}
}
