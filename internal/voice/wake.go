package voice

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ent0n29/aspbot/internal/audio"
	"github.com/ent0n29/aspbot/internal/errs"
)

// wakeGreeting is an optional greeting spoken before the wake phrase.
const wakeGreeting = `(?:(?:здравей|здравейте|здрасти|хей|ей|добър ден|hey|hi|ok|okay)[\s,.:;!?-]+)?`

// PhraseDetector detects a spoken wake phrase. Quiet audio is rejected on
// energy alone; louder audio is transcribed and the phrase must open the utterance.
type PhraseDetector struct {
	recognizer      SpeechRecognizer
	pattern         *regexp.Regexp
	energyThreshold float64
}

func NewPhraseDetector(recognizer SpeechRecognizer, phrase string, energyThreshold float64) (*PhraseDetector, error) {
	words := strings.Fields(strings.ToLower(phrase))
	if len(words) == 0 {
		return nil, fmt.Errorf("wake phrase is required")
	}
	// A configured phrase may start with a greeting itself; the optional greeting covers it.
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.Trim(w, ",.!?"); w != "" {
			quoted = append(quoted, regexp.QuoteMeta(w))
		}
	}
	if len(quoted) == 0 {
		return nil, fmt.Errorf("wake phrase %q has no words", phrase)
	}
	expr := `(?i)^\s*` + wakeGreeting + strings.Join(quoted, `[\s,.:;!?-]+`) + `(?:$|[\s,.:;!?-])`
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile wake phrase: %w", err)
	}
	return &PhraseDetector{recognizer: recognizer, pattern: re, energyThreshold: energyThreshold}, nil
}

func (d *PhraseDetector) Detect(ctx context.Context, raw []byte) (DetectionResult, error) {
	pcm, sampleRate, err := audio.PCM16(raw)
	if err != nil {
		return DetectionResult{}, errs.WakeWord("error decoding audio", err)
	}
	if len(pcm) == 0 || audio.RMS(pcm) < d.energyThreshold {
		return DetectionResult{Detected: false, Confidence: 0}, nil
	}

	wav, err := audio.EncodeWAVPCM16LE(pcm, sampleRate)
	if err != nil {
		return DetectionResult{}, errs.WakeWord("error encoding audio", err)
	}
	tr, err := d.recognizer.Transcribe(ctx, wav)
	if err != nil {
		return DetectionResult{}, errs.WakeWord("error detecting wake word", err)
	}
	if !d.Matches(tr.Text) {
		return DetectionResult{Detected: false, Confidence: 0}, nil
	}
	return DetectionResult{Detected: true, Confidence: clamp01(tr.Confidence)}, nil
}

// Matches reports whether text opens with the wake phrase. Only the start of the
// utterance counts, so the phrase said mid-sentence does not trigger.
func (d *PhraseDetector) Matches(text string) bool {
	return d.pattern.MatchString(strings.TrimSpace(text))
}

// IsOperational probes the underlying recognizer when it can be probed.
func (d *PhraseDetector) IsOperational(ctx context.Context) bool {
	if p, ok := d.recognizer.(Prober); ok {
		return p.IsOperational(ctx)
	}
	return d.recognizer != nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0 || v != v:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
