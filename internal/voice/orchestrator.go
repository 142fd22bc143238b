package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ent0n29/aspbot/internal/errs"
	"github.com/ent0n29/aspbot/internal/knowledge"
	"github.com/ent0n29/aspbot/internal/observability"
	"github.com/ent0n29/aspbot/internal/policy"
	"github.com/ent0n29/aspbot/internal/rag"
	"github.com/ent0n29/aspbot/internal/session"
)

// Answerer is the retrieval-augmented answering step. A result with no
// passages carries the default response.
type Answerer interface {
	Answer(ctx context.Context, query string) (rag.Result, error)
}

// Config holds the pipeline's gates.
type Config struct {
	StageTimeout          time.Duration
	WakeWordMinConfidence float64
	// TranscriptionMinConfidence skips retrieval for less certain transcripts
	// and answers with DefaultResponse. Zero disables the gate.
	TranscriptionMinConfidence float64
	DefaultResponse            string
}

// InteractionResult is one run of the pipeline. When WakeWordDetected is false
// only SessionID is set.
type InteractionResult struct {
	WakeWordDetected bool    `json:"wake_word_detected"`
	Transcription    *string `json:"transcription,omitempty"`
	Answer           *string `json:"answer,omitempty"`
	AudioResponse    []byte  `json:"audio_response,omitempty"`
	SessionID        string  `json:"session_id"`

	Session                 session.Session     `json:"-"`
	Detection               DetectionResult     `json:"-"`
	TranscriptionConfidence float64             `json:"-"`
	Passages                []knowledge.Passage `json:"-"`
	Outcome                 string              `json:"-"`
}

// StageEvent reports a completed stage of a running interaction.
type StageEvent struct {
	SessionID string
	Stage     string
	Elapsed   time.Duration
	Detail    any
}

// StageHandler receives stage events. It runs on the interaction's goroutine.
type StageHandler func(StageEvent)

// StageError is a failed interaction. The session id stays available for tracing.
type StageError struct {
	SessionID string
	Stage     string
	Err       error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// Orchestrator runs wake word → transcription → retrieval and answer → synthesis,
// stopping early when no wake word is heard.
type Orchestrator struct {
	detector    WakeWordDetector
	recognizer  SpeechRecognizer
	answerer    Answerer
	synthesizer SpeechSynthesizer
	cfg         Config
	metrics     *observability.Metrics
	log         *zap.Logger
}

func NewOrchestrator(
	detector WakeWordDetector,
	recognizer SpeechRecognizer,
	answerer Answerer,
	synthesizer SpeechSynthesizer,
	cfg Config,
	metrics *observability.Metrics,
	log *zap.Logger,
) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		detector:    detector,
		recognizer:  recognizer,
		answerer:    answerer,
		synthesizer: synthesizer,
		cfg:         cfg,
		metrics:     metrics,
		log:         log,
	}
}

// RunInteraction runs the whole pipeline on one audio buffer. Once the wake
// word is confirmed the run is all-or-nothing: any stage failure returns a
// *StageError and no partial result.
func (o *Orchestrator) RunInteraction(ctx context.Context, audioData []byte, onStage StageHandler) (res InteractionResult, err error) {
	sess := session.New()
	log := o.log.With(zap.String("session_id", sess.ID))
	ctx, span := observability.StartSpan(ctx, "voice.run_interaction", attribute.String("session.id", sess.ID))
	start := time.Now()
	defer func() {
		o.metrics.ObserveStage(observability.StageInteraction, time.Since(start), err)
		if err != nil {
			o.metrics.ObserveInteraction(observability.OutcomeFailed)
		} else {
			o.metrics.ObserveInteraction(res.Outcome)
		}
		observability.EndSpan(span, err)
	}()

	emit := func(stage string, began time.Time, detail any) {
		if onStage != nil {
			onStage(StageEvent{SessionID: sess.ID, Stage: stage, Elapsed: time.Since(began), Detail: detail})
		}
	}
	fail := func(stage string, err error) (InteractionResult, error) {
		log.Warn("interaction failed", zap.String("stage", stage), zap.Error(err))
		return InteractionResult{}, &StageError{SessionID: sess.ID, Stage: stage, Err: err}
	}

	began := time.Now()
	det, err := o.DetectWakeWord(ctx, audioData)
	if err != nil {
		return fail(observability.StageWakeWord, err)
	}
	emit(observability.StageWakeWord, began, det)
	if !det.Detected {
		log.Debug("no wake word", zap.Float64("confidence", det.Confidence))
		return InteractionResult{
			WakeWordDetected: false,
			SessionID:        sess.ID,
			Session:          sess,
			Detection:        det,
			Outcome:          observability.OutcomeNoWake,
		}, nil
	}

	began = time.Now()
	tr, err := o.Transcribe(ctx, audioData)
	if err != nil {
		return fail(observability.StageTranscribe, err)
	}
	emit(observability.StageTranscribe, began, tr)
	log.Info("transcribed",
		zap.String("text", policy.Redacted(tr.Text)),
		zap.Float64("confidence", tr.Confidence),
		zap.String("language", tr.Language),
	)

	began = time.Now()
	var answer rag.Result
	if o.cfg.TranscriptionMinConfidence > 0 && tr.Confidence < o.cfg.TranscriptionMinConfidence {
		log.Info("transcription below confidence gate, skipping retrieval",
			zap.Float64("confidence", tr.Confidence),
			zap.Float64("min_confidence", o.cfg.TranscriptionMinConfidence),
		)
		answer = rag.Result{Answer: o.cfg.DefaultResponse, Passages: []knowledge.Passage{}}
	} else {
		answer, err = o.AnswerQuery(ctx, tr.Text)
		if err != nil {
			return fail(observability.StageRetrieve, err)
		}
	}
	emit(observability.StageRetrieve, began, answer)

	began = time.Now()
	speech, err := o.Synthesize(ctx, answer.Answer)
	if err != nil {
		return fail(observability.StageSynthesize, err)
	}
	emit(observability.StageSynthesize, began, len(speech))

	outcome := observability.OutcomeAnswered
	if answer.IsFallback() {
		outcome = observability.OutcomeFallback
	}
	text, reply := tr.Text, answer.Answer
	return InteractionResult{
		WakeWordDetected:        true,
		Transcription:           &text,
		Answer:                  &reply,
		AudioResponse:           speech,
		SessionID:               sess.ID,
		Session:                 sess,
		Detection:               det,
		TranscriptionConfidence: tr.Confidence,
		Passages:                answer.Passages,
		Outcome:                 outcome,
	}, nil
}

// DetectWakeWord reports detection only when the detector hears the wake word
// with at least the configured confidence.
func (o *Orchestrator) DetectWakeWord(ctx context.Context, audioData []byte) (DetectionResult, error) {
	var det DetectionResult
	err := o.stage(ctx, observability.StageWakeWord, errs.KindWakeWord, func(ctx context.Context) error {
		var err error
		det, err = o.detector.Detect(ctx, audioData)
		return err
	})
	if err != nil {
		return DetectionResult{}, err
	}
	det.Confidence = clamp01(det.Confidence)
	if det.Detected && det.Confidence < o.cfg.WakeWordMinConfidence {
		det.Detected = false
	}
	return det, nil
}

// Transcribe forwards any transcript; confidence is informational here.
func (o *Orchestrator) Transcribe(ctx context.Context, audioData []byte) (TranscriptionResult, error) {
	var tr TranscriptionResult
	err := o.stage(ctx, observability.StageTranscribe, errs.KindSpeechProcessing, func(ctx context.Context) error {
		var err error
		tr, err = o.recognizer.Transcribe(ctx, audioData)
		return err
	})
	if err != nil {
		return TranscriptionResult{}, err
	}
	tr.Text = strings.TrimSpace(tr.Text)
	tr.Confidence = clamp01(tr.Confidence)
	return tr, nil
}

// AnswerQuery answers text from the knowledge base. Missing relevant documents
// yields the default response, never an error.
func (o *Orchestrator) AnswerQuery(ctx context.Context, query string) (rag.Result, error) {
	res, err := o.answerer.Answer(ctx, query)
	if errors.Is(err, errs.ErrNoRelevantDocuments) {
		return rag.Result{Answer: o.cfg.DefaultResponse, Passages: []knowledge.Passage{}}, nil
	}
	if err != nil {
		if errs.KindOf(err) == "" {
			err = errs.RAG("error querying RAG system", err)
		}
		return rag.Result{}, err
	}
	if res.IsFallback() {
		res.Answer = o.cfg.DefaultResponse
		res.Passages = []knowledge.Passage{}
	}
	return res, nil
}

func (o *Orchestrator) Synthesize(ctx context.Context, text string) ([]byte, error) {
	var out []byte
	err := o.stage(ctx, observability.StageSynthesize, errs.KindSpeechProcessing, func(ctx context.Context) error {
		var err error
		out, err = o.synthesizer.Synthesize(ctx, text)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errs.Speech("error synthesizing speech", errEmptyText)
	}
	return out, nil
}

// stage runs fn under the stage timeout, records it, and makes sure a failure
// carries an error kind.
func (o *Orchestrator) stage(ctx context.Context, name string, kind errs.Kind, fn func(ctx context.Context) error) (err error) {
	ctx, span := observability.StartSpan(ctx, "voice."+name)
	if o.cfg.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.StageTimeout)
		defer cancel()
	}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", name, r)
		}
		if err != nil && errs.KindOf(err) == "" {
			err = &errs.Error{Kind: kind, Message: "error in " + name + " stage", Err: err}
		}
		o.metrics.ObserveStage(name, time.Since(start), err)
		observability.EndSpan(span, err)
	}()
	return fn(ctx)
}
