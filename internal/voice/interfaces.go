// Package voice defines the speech capabilities and runs the voice interaction pipeline.
package voice

import "context"

// DetectionResult is one wake-word check.
type DetectionResult struct {
	Detected   bool    `json:"detected"`
	Confidence float64 `json:"confidence"`
}

// TranscriptionResult is the recognized text of one audio buffer.
type TranscriptionResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
}

// WakeWordDetector consumes mono 16-bit PCM (or WAV) audio.
type WakeWordDetector interface {
	Detect(ctx context.Context, audio []byte) (DetectionResult, error)
}

type SpeechRecognizer interface {
	Transcribe(ctx context.Context, audio []byte) (TranscriptionResult, error)
}

// SpeechSynthesizer returns WAV audio for text.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Prober is implemented by capabilities that can check their own availability.
// IsOperational must not panic and reports any failure as false.
type Prober interface {
	IsOperational(ctx context.Context) bool
}
