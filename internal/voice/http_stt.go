package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/aspbot/internal/audio"
	"github.com/ent0n29/aspbot/internal/errs"
	"github.com/ent0n29/aspbot/internal/reliability"
)

// defaultTranscriptionConfidence is reported when the engine gives no per-segment scores.
const defaultTranscriptionConfidence = 0.9

type transcriptionResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		AvgLogprob *float64 `json:"avg_logprob"`
	} `json:"segments"`
}

// HTTPRecognizer calls an OpenAI-compatible /v1/audio/transcriptions endpoint.
type HTTPRecognizer struct {
	url      string
	model    string
	language string
	apiKey   string
	client   *reliability.Client
}

func NewHTTPRecognizer(url, model, language, apiKey string, client *reliability.Client) *HTTPRecognizer {
	return &HTTPRecognizer{
		url:      strings.TrimSpace(url),
		model:    strings.TrimSpace(model),
		language: strings.TrimSpace(language),
		apiKey:   strings.TrimSpace(apiKey),
		client:   client,
	}
}

func (r *HTTPRecognizer) Transcribe(ctx context.Context, raw []byte) (TranscriptionResult, error) {
	wav, err := asWAV(raw)
	if err != nil {
		return TranscriptionResult{}, errs.Speech("error decoding audio", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return TranscriptionResult{}, errs.Speech("error building transcription request", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return TranscriptionResult{}, errs.Speech("error building transcription request", err)
	}
	_ = mw.WriteField("model", r.model)
	if r.language != "" {
		_ = mw.WriteField("language", r.language)
	}
	_ = mw.WriteField("temperature", "0")
	_ = mw.WriteField("response_format", "verbose_json")
	if err := mw.Close(); err != nil {
		return TranscriptionResult{}, errs.Speech("error building transcription request", err)
	}
	payload, contentType := body.Bytes(), mw.FormDataContentType()

	b, err := r.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		if r.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+r.apiKey)
		}
		return req, nil
	})
	if err != nil {
		return TranscriptionResult{}, errs.Speech("error transcribing audio", err)
	}

	var out transcriptionResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return TranscriptionResult{}, errs.Speech("error decoding transcription", err)
	}
	lang := strings.TrimSpace(out.Language)
	if lang == "" || len(lang) > 3 {
		// verbose_json reports full language names; keep the configured code instead.
		lang = r.language
	}
	return TranscriptionResult{
		Text:       strings.TrimSpace(out.Text),
		Confidence: segmentConfidence(out),
		Language:   lang,
	}, nil
}

// IsOperational transcribes one second of silence.
func (r *HTTPRecognizer) IsOperational(ctx context.Context) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	_, err := r.Transcribe(ctx, audio.Silence(time.Second, audio.DefaultSampleRate))
	return err == nil
}

// segmentConfidence averages exp(avg_logprob) over segments.
func segmentConfidence(out transcriptionResponse) float64 {
	var sum float64
	var n int
	for _, s := range out.Segments {
		if s.AvgLogprob == nil {
			continue
		}
		sum += math.Exp(*s.AvgLogprob)
		n++
	}
	if n == 0 {
		return defaultTranscriptionConfidence
	}
	return clamp01(sum / float64(n))
}

// asWAV wraps raw PCM in a WAV container; WAV input is validated and passed through.
func asWAV(raw []byte) ([]byte, error) {
	if audio.IsWAV(raw) {
		if _, _, err := audio.DecodeWAV(raw); err != nil {
			return nil, err
		}
		return raw, nil
	}
	pcm, rate, err := audio.PCM16(raw)
	if err != nil {
		return nil, err
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("empty audio")
	}
	return audio.EncodeWAVPCM16LE(pcm, rate)
}
