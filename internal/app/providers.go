package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ent0n29/aspbot/internal/config"
	"github.com/ent0n29/aspbot/internal/knowledge"
	"github.com/ent0n29/aspbot/internal/lazy"
	"github.com/ent0n29/aspbot/internal/rag"
	"github.com/ent0n29/aspbot/internal/reliability"
	"github.com/ent0n29/aspbot/internal/voice"
)

// ProviderInfo describes which backends were resolved, for startup logging.
type ProviderInfo struct {
	Voice       string
	Brain       string
	VectorStore string
	Embedder    string
}

func resolveVoice(cfg config.Config, log *zap.Logger) (voice.Engines, error) {
	engines, err := voice.NewEngines(voice.EngineConfig{
		Provider:        cfg.VoiceProvider,
		STTURL:          cfg.STTURL,
		STTModel:        cfg.STTModel,
		STTLanguage:     cfg.STTLanguage,
		TTSURL:          cfg.TTSURL,
		TTSModel:        cfg.TTSModel,
		TTSVoice:        cfg.TTSVoice,
		APIKey:          cfg.OpenAIAPIKey,
		WakePhrase:      cfg.WakePhrase,
		EnergyThreshold: cfg.WakeWordEnergyThreshold,
		Timeout:         cfg.StageTimeout,
	}, log)
	if err != nil {
		return voice.Engines{}, fmt.Errorf("voice provider init failed: %w", err)
	}
	return engines, nil
}

func resolveGenerator(cfg config.Config, log *zap.Logger) (rag.Generator, string, error) {
	gen, err := rag.NewGenerator(rag.GeneratorConfig{
		Mode:          cfg.BrainProvider,
		URL:           cfg.LLMURL,
		Model:         cfg.LLMModel,
		APIKey:        cfg.OpenAIAPIKey,
		RefusalPhrase: cfg.DefaultResponse,
		Timeout:       cfg.StageTimeout,
	}, log)
	if err != nil {
		return nil, "", fmt.Errorf("generator init failed: %w", err)
	}
	brain := "mock"
	if _, ok := gen.(*rag.HTTPGenerator); ok {
		brain = "http"
	}
	return gen, brain, nil
}

// newEmbedder uses the remote embedding model when it is configured and a
// deterministic hashing embedder otherwise.
func newEmbedder(cfg config.Config, log *zap.Logger) (knowledge.Embedder, string) {
	if strings.TrimSpace(cfg.EmbeddingURL) != "" && strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
		client := reliability.NewClient("embeddings", cfg.StageTimeout, log)
		return knowledge.NewHTTPEmbedder(cfg.EmbeddingURL, cfg.EmbeddingModel, cfg.OpenAIAPIKey, client), "http"
	}
	return knowledge.NewHashEmbedder(cfg.EmbeddingDim), "hash"
}

func storeOptions(cfg config.Config) knowledge.StoreOptions {
	return knowledge.StoreOptions{
		Kind:         cfg.VectorStore,
		SQLitePath:   cfg.VectorStorePath,
		DatabaseURL:  cfg.DatabaseURL,
		EmbeddingDim: cfg.EmbeddingDim,
	}
}

// knowledgeBackend returns the lazy initializer of the retrieval backend. The
// store is opened on first retrieval or health probe, not at startup.
func knowledgeBackend(cfg config.Config, embedder knowledge.Embedder, log *zap.Logger) lazy.InitFunc[knowledge.Backend] {
	return func(ctx context.Context) (knowledge.Backend, error) {
		store, err := knowledge.NewStore(ctx, storeOptions(cfg))
		if err != nil {
			return knowledge.Backend{}, err
		}
		if n, err := store.Count(ctx); err == nil {
			log.Info("knowledge base opened", zap.String("store", cfg.VectorStore), zap.Int("chunks", n))
			if n == 0 {
				log.Warn("knowledge base is empty; run the ingest command to index documents")
			}
		}
		return knowledge.Backend{Embedder: embedder, Store: store}, nil
	}
}

// NewIndexer builds the ingestion pipeline with the same embedder and store
// settings the server retrieves with.
func NewIndexer(ctx context.Context, cfg config.Config, log *zap.Logger) (*knowledge.Indexer, error) {
	embedder, _ := newEmbedder(cfg, log)
	store, err := knowledge.NewStore(ctx, storeOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("vector store init failed: %w", err)
	}
	return &knowledge.Indexer{
		Splitter: knowledge.Splitter{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap},
		Embedder: embedder,
		Store:    store,
		Log:      log,
	}, nil
}
