package voice

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/aspbot/internal/reliability"
)

var errEmptyText = errors.New("nothing to synthesize")

// EngineConfig selects and configures the speech engines.
type EngineConfig struct {
	Provider        string // auto|http|mock
	STTURL          string
	STTModel        string
	STTLanguage     string
	TTSURL          string
	TTSModel        string
	TTSVoice        string
	APIKey          string
	WakePhrase      string
	EnergyThreshold float64
	Timeout         time.Duration
	// MockUtterance is what the mock recognizer hears.
	MockUtterance string
}

// Engines bundles the three speech capabilities.
type Engines struct {
	Provider    string
	Detector    WakeWordDetector
	Recognizer  SpeechRecognizer
	Synthesizer SpeechSynthesizer
}

// NewEngines builds the configured engines. auto uses http when an API key is
// set and mock otherwise.
func NewEngines(cfg EngineConfig, log *zap.Logger) (Engines, error) {
	if log == nil {
		log = zap.NewNop()
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" || provider == "auto" {
		provider = "mock"
		if strings.TrimSpace(cfg.APIKey) != "" {
			provider = "http"
		}
	}

	switch provider {
	case "http":
		if strings.TrimSpace(cfg.STTURL) == "" {
			return Engines{}, errors.New("STT_URL is required for http voice provider")
		}
		rec := NewHTTPRecognizer(cfg.STTURL, cfg.STTModel, cfg.STTLanguage, cfg.APIKey,
			reliability.NewClient("stt", cfg.Timeout, log))
		det, err := NewPhraseDetector(rec, cfg.WakePhrase, cfg.EnergyThreshold)
		if err != nil {
			return Engines{}, err
		}
		syn := NewHTTPSynthesizer(SynthesizerConfig{
			URL:     cfg.TTSURL,
			Model:   cfg.TTSModel,
			Voice:   cfg.TTSVoice,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
		}, log)
		return Engines{Provider: provider, Detector: det, Recognizer: rec, Synthesizer: syn}, nil
	case "mock":
		utterance := strings.TrimSpace(cfg.MockUtterance)
		if utterance == "" {
			utterance = "Какви услуги предлагате?"
		}
		return Engines{
			Provider:    provider,
			Detector:    &MockDetector{EnergyThreshold: cfg.EnergyThreshold},
			Recognizer:  NewMockRecognizer(utterance, cfg.STTLanguage),
			Synthesizer: &MockSynthesizer{},
		}, nil
	default:
		return Engines{}, fmt.Errorf("unsupported voice provider %q", cfg.Provider)
	}
}
