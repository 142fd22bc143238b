package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/aspbot/internal/audio"
	"github.com/ent0n29/aspbot/internal/errs"
	"github.com/ent0n29/aspbot/internal/lazy"
	"github.com/ent0n29/aspbot/internal/reliability"
)

// SynthesizerConfig describes an OpenAI-compatible /v1/audio/speech endpoint.
type SynthesizerConfig struct {
	URL     string
	Model   string
	Voice   string
	APIKey  string
	Timeout time.Duration
}

type speechRequest struct {
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	Input          string `json:"input"`
	ResponseFormat string `json:"response_format"`
}

type speechBackend struct {
	endpoint string
	client   *reliability.Client
}

// HTTPSynthesizer synthesizes speech over HTTP. Its backend is set up on first
// use; a failed setup is attempted again on the next call.
type HTTPSynthesizer struct {
	cfg     SynthesizerConfig
	backend *lazy.Handle[speechBackend]
}

func NewHTTPSynthesizer(cfg SynthesizerConfig, log *zap.Logger) *HTTPSynthesizer {
	s := &HTTPSynthesizer{cfg: cfg}
	s.backend = lazy.New(func(context.Context) (speechBackend, error) {
		u, err := url.Parse(strings.TrimSpace(s.cfg.URL))
		if err != nil || u.Scheme == "" || u.Host == "" {
			return speechBackend{}, fmt.Errorf("invalid TTS_URL %q", s.cfg.URL)
		}
		if strings.TrimSpace(s.cfg.Voice) == "" {
			return speechBackend{}, errors.New("TTS_VOICE is required")
		}
		return speechBackend{
			endpoint: u.String(),
			client:   reliability.NewClient("tts", s.cfg.Timeout, log),
		}, nil
	})
	return s
}

func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	b, err := s.backend.Get(ctx)
	if err != nil {
		return nil, errs.Speech("error initializing speech synthesizer", err)
	}
	input := speechText(text)
	if input == "" {
		return nil, errs.Speech("error synthesizing speech", errEmptyText)
	}
	payload, err := json.Marshal(speechRequest{
		Model:          s.cfg.Model,
		Voice:          s.cfg.Voice,
		Input:          input,
		ResponseFormat: "wav",
	})
	if err != nil {
		return nil, errs.Speech("error synthesizing speech", err)
	}

	out, err := b.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if key := strings.TrimSpace(s.cfg.APIKey); key != "" {
			req.Header.Set("Authorization", "Bearer "+key)
		}
		return req, nil
	})
	if err != nil {
		return nil, errs.Speech("error synthesizing speech", err)
	}
	if len(out) == 0 {
		return nil, errs.Speech("error synthesizing speech", errors.New("empty audio response"))
	}
	if !audio.IsWAV(out) {
		// Some engines return bare PCM even when asked for WAV.
		return audio.EncodeWAVPCM16LE(out, 24000)
	}
	return out, nil
}

// IsOperational only makes sure the backend can be initialized.
func (s *HTTPSynthesizer) IsOperational(ctx context.Context) bool {
	_, err := s.backend.Get(ctx)
	return err == nil
}
