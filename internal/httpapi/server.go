package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/aspbot/internal/auth"
	"github.com/ent0n29/aspbot/internal/config"
	"github.com/ent0n29/aspbot/internal/errs"
	"github.com/ent0n29/aspbot/internal/history"
	"github.com/ent0n29/aspbot/internal/knowledge"
	"github.com/ent0n29/aspbot/internal/observability"
	"github.com/ent0n29/aspbot/internal/policy"
	"github.com/ent0n29/aspbot/internal/rag"
	"github.com/ent0n29/aspbot/internal/reliability"
	"github.com/ent0n29/aspbot/internal/session"
	"github.com/ent0n29/aspbot/internal/voice"
)

const maxBodyBytes = 32 << 20

// Pipeline is the voice pipeline as seen by the transport: each stage on its
// own, and the whole interaction.
type Pipeline interface {
	DetectWakeWord(ctx context.Context, audio []byte) (voice.DetectionResult, error)
	Transcribe(ctx context.Context, audio []byte) (voice.TranscriptionResult, error)
	AnswerQuery(ctx context.Context, query string) (rag.Result, error)
	Synthesize(ctx context.Context, text string) ([]byte, error)
	RunInteraction(ctx context.Context, audio []byte, onStage voice.StageHandler) (voice.InteractionResult, error)
}

type HealthChecker interface {
	Check(ctx context.Context) voice.HealthReport
}

// Dependencies are the collaborators a Server serves. Auth and History may be nil.
type Dependencies struct {
	Pipeline Pipeline
	Health   HealthChecker
	Sessions *session.Manager
	History  *history.Recorder
	Auth     *auth.Authenticator
	Metrics  *observability.Metrics
}

type Server struct {
	cfg      config.Config
	pipeline Pipeline
	health   HealthChecker
	sessions *session.Manager
	history  *history.Recorder
	auth     *auth.Authenticator
	metrics  *observability.Metrics
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, deps Dependencies, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	sessions := deps.Sessions
	if sessions == nil {
		sessions = session.NewManager(cfg.SessionInactivityTimeout)
	}
	return &Server{
		cfg:      cfg,
		pipeline: deps.Pipeline,
		health:   deps.Health,
		sessions: sessions,
		history:  deps.History,
		auth:     deps.Auth,
		metrics:  deps.Metrics,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleLiveness)
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Route("/api/v1", func(r chi.Router) {
		if s.auth != nil {
			r.Use(s.auth.Middleware)
		}
		r.Post("/wake-word", s.handleWakeWord)
		r.Post("/transcribe", s.handleTranscribe)
		r.Post("/rag", s.handleRAG)
		r.Post("/tts", s.handleTTS)
		r.Post("/interact", s.handleInteract)
		r.Get("/interact/ws", s.handleInteractWS)
	})

	return r
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": s.sessions.ActiveCount(),
	})
}

// handleHealth always answers 200; degraded capabilities show up in the body.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		respondJSON(w, http.StatusOK, voice.HealthReport{Status: "degraded", Version: s.cfg.Version, Services: map[string]bool{}})
		return
	}
	respondJSON(w, http.StatusOK, s.health.Check(r.Context()))
}

type wakeWordRequest struct {
	AudioData []byte `json:"audio_data"`
}

type wakeWordResponse struct {
	Detected   bool    `json:"detected"`
	Confidence float64 `json:"confidence"`
	SessionID  string  `json:"session_id,omitempty"`
}

func (s *Server) handleWakeWord(w http.ResponseWriter, r *http.Request) {
	var req wakeWordRequest
	if !s.decodeAudioRequest(w, r, &req, &req.AudioData) {
		return
	}
	det, err := s.pipeline.DetectWakeWord(r.Context(), req.AudioData)
	if err != nil {
		s.respondPipelineError(w, err)
		return
	}
	resp := wakeWordResponse{Detected: det.Detected, Confidence: det.Confidence}
	if det.Detected {
		resp.SessionID = s.openSession(session.New())
	}
	respondJSON(w, http.StatusOK, resp)
}

type transcribeRequest struct {
	AudioData []byte `json:"audio_data"`
	SessionID string `json:"session_id"`
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	var req transcribeRequest
	if !s.decodeAudioRequest(w, r, &req, &req.AudioData) {
		return
	}
	s.touchSession(req.SessionID)
	tr, err := s.pipeline.Transcribe(r.Context(), req.AudioData)
	if err != nil {
		s.respondPipelineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tr)
}

type ragRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

type ragResponse struct {
	Answer          string              `json:"answer"`
	SourceDocuments []knowledge.Passage `json:"source_documents"`
	Query           string              `json:"query"`
}

func (s *Server) handleRAG(w http.ResponseWriter, r *http.Request) {
	var req ragRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}
	s.touchSession(req.SessionID)
	res, err := s.pipeline.AnswerQuery(r.Context(), query)
	if err != nil {
		s.respondPipelineError(w, err)
		return
	}
	docs := res.Passages
	if docs == nil {
		docs = []knowledge.Passage{}
	}
	respondJSON(w, http.StatusOK, ragResponse{Answer: res.Answer, SourceDocuments: docs, Query: req.Query})
}

type ttsRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id"`
}

type ttsResponse struct {
	AudioData []byte `json:"audio_data"`
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	var req ttsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}
	s.touchSession(req.SessionID)
	out, err := s.pipeline.Synthesize(r.Context(), req.Text)
	if err != nil {
		s.respondPipelineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ttsResponse{AudioData: out})
}

type interactRequest struct {
	AudioData []byte `json:"audio_data"`
}

func (s *Server) handleInteract(w http.ResponseWriter, r *http.Request) {
	var req interactRequest
	if !s.decodeAudioRequest(w, r, &req, &req.AudioData) {
		return
	}
	res, err := s.interact(r.Context(), req.AudioData, nil)
	if err != nil {
		s.respondPipelineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// interact runs one interaction and does the transport bookkeeping around it.
func (s *Server) interact(ctx context.Context, audio []byte, onStage voice.StageHandler) (voice.InteractionResult, error) {
	res, err := s.pipeline.RunInteraction(ctx, audio, onStage)
	if err != nil {
		var stageErr *voice.StageError
		if errors.As(err, &stageErr) && stageErr.SessionID != "" {
			s.openSession(session.Session{ID: stageErr.SessionID, CreatedAt: time.Now().UTC()})
			s.history.Record(history.Record{
				SessionID: stageErr.SessionID,
				Outcome:   observability.OutcomeFailed,
				Error:     err.Error(),
			})
		}
		return voice.InteractionResult{}, err
	}

	sess := res.Session
	if sess.ID == "" {
		sess = session.Session{ID: res.SessionID, CreatedAt: time.Now().UTC()}
	}
	s.openSession(sess)
	s.history.Record(recordOf(res))
	return res, nil
}

func recordOf(res voice.InteractionResult) history.Record {
	rec := history.Record{SessionID: res.SessionID, Outcome: res.Outcome}
	if res.Transcription != nil {
		rec.Transcription = policy.Redacted(*res.Transcription)
	}
	if res.Answer != nil {
		rec.Answer = *res.Answer
	}
	for _, p := range res.Passages {
		src, _ := p.Metadata["source"].(string)
		rec.Passages = append(rec.Passages, history.PassageRef{Source: src, Score: p.Score})
	}
	return rec
}

func (s *Server) openSession(sess session.Session) string {
	s.sessions.Register(sess)
	s.metrics.SessionEvent("created")
	s.metrics.SetActiveSessions(s.sessions.ActiveCount())
	return sess.ID
}

// touchSession refreshes a session named by a stage request. Unknown ids are
// accepted; they only serve tracing.
func (s *Server) touchSession(id string) {
	if strings.TrimSpace(id) == "" {
		return
	}
	if err := s.sessions.Touch(id); err != nil {
		s.log.Debug("stage request for unknown session", zap.String("session_id", id))
	}
}

// decodeAudioRequest decodes a JSON body with base64 audio, answering 400
// when the body or the audio is malformed.
func (s *Server) decodeAudioRequest(w http.ResponseWriter, r *http.Request, out any, audio *[]byte) bool {
	if err := decodeJSON(w, r, out); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	if len(*audio) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "audio_data is required")
		return false
	}
	return true
}

func (s *Server) respondPipelineError(w http.ResponseWriter, err error) {
	status, code := classifyError(err)
	if status >= http.StatusInternalServerError {
		s.log.Warn("request failed", zap.String("code", code), zap.Error(err))
	}
	respondError(w, status, code, errorMessage(err))
}

func classifyError(err error) (int, string) {
	switch {
	case reliability.IsUnavailable(err):
		return http.StatusServiceUnavailable, "unavailable"
	case errs.KindOf(err) != "":
		return http.StatusInternalServerError, string(errs.KindOf(err))
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// errorMessage prefers the capability error over the stage wrapper around it.
func errorMessage(err error) string {
	var e *errs.Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return err.Error()
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
