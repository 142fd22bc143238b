// Package app wires configuration into a running service.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ent0n29/aspbot/internal/auth"
	"github.com/ent0n29/aspbot/internal/config"
	"github.com/ent0n29/aspbot/internal/history"
	"github.com/ent0n29/aspbot/internal/httpapi"
	"github.com/ent0n29/aspbot/internal/knowledge"
	"github.com/ent0n29/aspbot/internal/observability"
	"github.com/ent0n29/aspbot/internal/rag"
	"github.com/ent0n29/aspbot/internal/session"
	"github.com/ent0n29/aspbot/internal/voice"
)

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Sessions     *session.Manager
	Orchestrator *voice.Orchestrator
	Health       *voice.Health
	Metrics      *observability.Metrics
	Providers    ProviderInfo

	// Cleanup should be called on shutdown to release external resources (DB, cache, pending writes).
	Cleanup func() error
}

// Build wires every component. reg receives the metrics; nil means the default registry.
func Build(ctx context.Context, cfg config.Config, reg prometheus.Registerer, log *zap.Logger) (*BuildResult, error) {
	if log == nil {
		log = zap.NewNop()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace, reg)

	engines, err := resolveVoice(cfg, log.Named("voice"))
	if err != nil {
		return nil, err
	}

	generator, brain, err := resolveGenerator(cfg, log.Named("rag"))
	if err != nil {
		return nil, err
	}

	embedder, embedderKind := newEmbedder(cfg, log.Named("knowledge"))
	retriever := knowledge.NewVectorRetriever(knowledgeBackend(cfg, embedder, log.Named("knowledge")), log.Named("knowledge"))

	cache, err := rag.NewCache(ctx, cfg.RedisURL, log.Named("cache"))
	if err != nil {
		_ = retriever.Close()
		return nil, fmt.Errorf("answer cache init failed: %w", err)
	}

	answers := rag.NewOrchestrator(retriever, generator, rag.Config{
		TopK:            cfg.RetrievalTopK,
		Threshold:       cfg.RelevanceThreshold,
		DefaultResponse: cfg.DefaultResponse,
		RefusalPhrase:   cfg.DefaultResponse,
		StageTimeout:    cfg.StageTimeout,
		CacheTTL:        cfg.AnswerCacheTTL,
	}, cache, metrics, log.Named("rag"))

	orchestrator := voice.NewOrchestrator(
		engines.Detector,
		engines.Recognizer,
		answers,
		engines.Synthesizer,
		voice.Config{
			StageTimeout:               cfg.StageTimeout,
			WakeWordMinConfidence:      cfg.WakeWordMinConfidence,
			TranscriptionMinConfidence: cfg.TranscriptionMinConfidence,
			DefaultResponse:            cfg.DefaultResponse,
		},
		metrics,
		log.Named("voice"),
	)

	health := voice.NewHealth(cfg.Version, cfg.StageTimeout, metrics, log.Named("health"))
	health.Register(voice.ServiceWakeWord, engines.Detector)
	health.Register(voice.ServiceSpeechToText, engines.Recognizer)
	health.Register(voice.ServiceTextToSpeech, engines.Synthesizer)
	health.Register(voice.ServiceKnowledgeBase, retriever)

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(e session.Entry) {
		log.Debug("session expired", zap.String("session_id", e.ID), zap.Int("stages", e.Stages))
		metrics.SessionEvent("expired")
		metrics.SetActiveSessions(sessions.ActiveCount())
	})

	historyStore, err := history.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		_ = cache.Close()
		_ = retriever.Close()
		return nil, fmt.Errorf("history store init failed: %w", err)
	}
	recorder := history.NewRecorder(historyStore, 5*time.Second, func() {
		metrics.SessionEvent("history_write_failed")
	}, log.Named("history"))

	var authenticator *auth.Authenticator
	if cfg.AuthDisabled {
		log.Warn("API authentication is disabled")
	} else {
		authenticator = auth.New(cfg.JWTSecret, cfg.APIKey, false, log.Named("auth"))
	}

	api := httpapi.New(cfg, httpapi.Dependencies{
		Pipeline: orchestrator,
		Health:   health,
		Sessions: sessions,
		History:  recorder,
		Auth:     authenticator,
		Metrics:  metrics,
	}, log.Named("http"))

	cleanup := func() error {
		var errs []string
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := recorder.Flush(flushCtx); err != nil {
			errs = append(errs, "history flush: "+err.Error())
		}
		if err := historyStore.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := cache.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := retriever.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Sessions:     sessions,
		Orchestrator: orchestrator,
		Health:       health,
		Metrics:      metrics,
		Providers: ProviderInfo{
			Voice:       engines.Provider,
			Brain:       brain,
			VectorStore: cfg.VectorStore,
			Embedder:    embedderKind,
		},
		Cleanup: cleanup,
	}, nil
}
