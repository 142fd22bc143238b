package voice

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ent0n29/aspbot/internal/audio"
	"github.com/ent0n29/aspbot/internal/errs"
	"github.com/ent0n29/aspbot/internal/reliability"
)

func testClient(service string) *reliability.Client {
	c := reliability.NewClient(service, 2*time.Second, nil)
	c.BackoffBase = time.Millisecond
	c.BackoffCap = time.Millisecond
	return c
}

func TestHTTPRecognizerTranscribe(t *testing.T) {
	var gotModel, gotLang, gotFormat, gotAuth string
	var gotFile []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm() error = %v", err)
		}
		gotModel = r.FormValue("model")
		gotLang = r.FormValue("language")
		gotFormat = r.FormValue("response_format")
		gotAuth = r.Header.Get("Authorization")
		f, _, err := r.FormFile("file")
		if err == nil {
			gotFile, _ = io.ReadAll(f)
			_ = f.Close()
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":" Какви услуги предлагате? ","language":"bulgarian","segments":[{"avg_logprob":0},{"avg_logprob":0}]}`)
	}))
	defer srv.Close()

	r := NewHTTPRecognizer(srv.URL, "whisper-1", "bg", "sk-test", testClient("stt"))
	got, err := r.Transcribe(context.Background(), loudPCM(1600))
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got.Text != "Какви услуги предлагате?" {
		t.Fatalf("Text = %q", got.Text)
	}
	if got.Language != "bg" {
		t.Fatalf("Language = %q, want bg", got.Language)
	}
	if got.Confidence != 1 {
		t.Fatalf("Confidence = %v, want 1", got.Confidence)
	}
	if gotModel != "whisper-1" || gotLang != "bg" || gotFormat != "verbose_json" {
		t.Fatalf("form = %q/%q/%q", gotModel, gotLang, gotFormat)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if !audio.IsWAV(gotFile) {
		t.Fatalf("uploaded file is not WAV")
	}
}

func TestHTTPRecognizerDefaultConfidence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"text":"здравей"}`)
	}))
	defer srv.Close()

	r := NewHTTPRecognizer(srv.URL, "whisper-1", "bg", "", testClient("stt"))
	got, err := r.Transcribe(context.Background(), loudPCM(160))
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got.Confidence != 0.9 {
		t.Fatalf("Confidence = %v, want 0.9", got.Confidence)
	}
}

func TestHTTPRecognizerFailureIsSpeechError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad model", http.StatusBadRequest)
	}))
	defer srv.Close()

	r := NewHTTPRecognizer(srv.URL, "nope", "bg", "", testClient("stt"))
	_, err := r.Transcribe(context.Background(), loudPCM(160))
	if !errors.Is(err, errs.ErrSpeechProcessing) {
		t.Fatalf("Transcribe() error = %v, want speech_processing", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1 (4xx is not retried)", calls.Load())
	}
	if r.IsOperational(context.Background()) {
		t.Fatalf("IsOperational() = true, want false")
	}
}

func TestHTTPRecognizerRejectsEmptyAudio(t *testing.T) {
	r := NewHTTPRecognizer("http://127.0.0.1:1", "whisper-1", "bg", "", testClient("stt"))
	_, err := r.Transcribe(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "empty audio") {
		t.Fatalf("Transcribe() error = %v, want empty audio", err)
	}
}
