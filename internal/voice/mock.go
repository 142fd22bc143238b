package voice

import (
	"context"
	"encoding/binary"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ent0n29/aspbot/internal/audio"
	"github.com/ent0n29/aspbot/internal/errs"
)

// mockWakeConfidence is what the energy-gated mock detector reports on a hit.
const mockWakeConfidence = 0.8

// MockDetector treats any audio louder than the threshold as the wake phrase.
type MockDetector struct {
	EnergyThreshold float64
}

func (d *MockDetector) Detect(ctx context.Context, raw []byte) (DetectionResult, error) {
	if err := ctx.Err(); err != nil {
		return DetectionResult{}, errs.WakeWord("error detecting wake word", err)
	}
	pcm, _, err := audio.PCM16(raw)
	if err != nil {
		return DetectionResult{}, errs.WakeWord("error decoding audio", err)
	}
	if len(pcm) == 0 || audio.RMS(pcm) < d.EnergyThreshold {
		return DetectionResult{}, nil
	}
	return DetectionResult{Detected: true, Confidence: mockWakeConfidence}, nil
}

func (d *MockDetector) IsOperational(context.Context) bool { return true }

// MockRecognizer returns a fixed utterance for any non-silent audio.
type MockRecognizer struct {
	Text     string
	Language string
}

func NewMockRecognizer(text, language string) *MockRecognizer {
	if strings.TrimSpace(language) == "" {
		language = "bg"
	}
	return &MockRecognizer{Text: text, Language: language}
}

func (r *MockRecognizer) Transcribe(ctx context.Context, raw []byte) (TranscriptionResult, error) {
	if err := ctx.Err(); err != nil {
		return TranscriptionResult{}, errs.Speech("error transcribing audio", err)
	}
	pcm, _, err := audio.PCM16(raw)
	if err != nil {
		return TranscriptionResult{}, errs.Speech("error decoding audio", err)
	}
	if audio.RMS(pcm) == 0 {
		return TranscriptionResult{Language: r.Language}, nil
	}
	return TranscriptionResult{Text: r.Text, Confidence: defaultTranscriptionConfidence, Language: r.Language}, nil
}

func (r *MockRecognizer) IsOperational(ctx context.Context) bool {
	_, err := r.Transcribe(ctx, audio.Silence(time.Second, audio.DefaultSampleRate))
	return err == nil
}

// MockSynthesizer renders a quiet tone whose length follows the text length.
type MockSynthesizer struct {
	SampleRate int
}

func (s *MockSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Speech("error synthesizing speech", err)
	}
	text = speechText(text)
	if text == "" {
		return nil, errs.Speech("error synthesizing speech", errEmptyText)
	}
	rate := s.SampleRate
	if rate <= 0 {
		rate = audio.DefaultSampleRate
	}
	// Roughly 60ms per character, capped at 20s.
	d := time.Duration(utf8.RuneCountInString(text)) * 60 * time.Millisecond
	if d > 20*time.Second {
		d = 20 * time.Second
	}
	pcm := audio.Silence(d, rate)
	for i := 0; i < len(pcm)/2; i++ {
		v := int16(800 * math.Sin(2*math.Pi*220*float64(i)/float64(rate)))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return audio.EncodeWAVPCM16LE(pcm, rate)
}

func (s *MockSynthesizer) IsOperational(context.Context) bool { return true }
