package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("API_KEY", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RetrievalTopK != 3 {
		t.Fatalf("RetrievalTopK = %d, want 3", cfg.RetrievalTopK)
	}
	if cfg.RelevanceThreshold != 0.7 {
		t.Fatalf("RelevanceThreshold = %v, want 0.7", cfg.RelevanceThreshold)
	}
	if cfg.DefaultResponse != DefaultResponse {
		t.Fatalf("DefaultResponse = %q, want package default", cfg.DefaultResponse)
	}
	if cfg.ChunkSize != 1000 || cfg.ChunkOverlap != 200 {
		t.Fatalf("chunking = %d/%d, want 1000/200", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.TranscriptionMinConfidence != 0 {
		t.Fatalf("TranscriptionMinConfidence = %v, want 0 (disabled)", cfg.TranscriptionMinConfidence)
	}
	if cfg.StageTimeout != 30*time.Second {
		t.Fatalf("StageTimeout = %v, want 30s", cfg.StageTimeout)
	}
	if cfg.VoiceProvider != "auto" || cfg.BrainProvider != "auto" || cfg.VectorStore != "auto" {
		t.Fatalf("providers = %q/%q/%q, want auto", cfg.VoiceProvider, cfg.BrainProvider, cfg.VectorStore)
	}
}

func TestLoadUsesExplicitThresholds(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("API_KEY", "secret")
	t.Setenv("RETRIEVAL_TOP_K", "5")
	t.Setenv("RELEVANCE_THRESHOLD", "0.55")
	t.Setenv("DEFAULT_RESPONSE", "Не знам.")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RetrievalTopK != 5 || cfg.RelevanceThreshold != 0.55 || cfg.DefaultResponse != "Не знам." {
		t.Fatalf("unexpected config: top_k=%d threshold=%v default=%q", cfg.RetrievalTopK, cfg.RelevanceThreshold, cfg.DefaultResponse)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		key, value, want string
	}{
		{"RELEVANCE_THRESHOLD", "1.5", "RELEVANCE_THRESHOLD"},
		{"RETRIEVAL_TOP_K", "zero", "RETRIEVAL_TOP_K parse error"},
		{"CHUNK_OVERLAP", "1000", "CHUNK_OVERLAP"},
		{"VOICE_PROVIDER", "azure", "invalid VOICE_PROVIDER"},
		{"SESSION_INACTIVITY_TIMEOUT", "1s", "SESSION_INACTIVITY_TIMEOUT"},
	}
	for _, tc := range cases {
		setCoreEnvEmpty(t)
		t.Setenv("API_KEY", "secret")
		t.Setenv(tc.key, tc.value)
		_, err := Load()
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("Load() with %s=%s error = %v, want containing %q", tc.key, tc.value, err, tc.want)
		}
	}
}

func TestLoadRequiresCredentialsUnlessAuthDisabled(t *testing.T) {
	setCoreEnvEmpty(t)
	if _, err := Load(); err == nil {
		t.Fatalf("Load() without credentials expected error")
	}

	t.Setenv("AUTH_DISABLED", "true")
	if _, err := Load(); err != nil {
		t.Fatalf("Load() with AUTH_DISABLED error = %v", err)
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR", "APP_SHUTDOWN_TIMEOUT", "APP_ENVIRONMENT", "APP_DEBUG", "APP_VERSION",
		"APP_METRICS_NAMESPACE", "LOG_LEVEL", "SESSION_INACTIVITY_TIMEOUT", "STAGE_TIMEOUT",
		"RETRIEVAL_TOP_K", "RELEVANCE_THRESHOLD", "DEFAULT_RESPONSE", "CHUNK_SIZE", "CHUNK_OVERLAP",
		"WAKE_PHRASE", "WAKE_WORD_MIN_CONFIDENCE", "WAKE_WORD_ENERGY_THRESHOLD", "TRANSCRIPTION_MIN_CONFIDENCE",
		"VOICE_PROVIDER", "STT_URL", "STT_MODEL", "STT_LANGUAGE", "TTS_URL", "TTS_MODEL", "TTS_VOICE",
		"OPENAI_API_KEY", "BRAIN_PROVIDER", "LLM_URL", "LLM_MODEL", "EMBEDDING_URL", "EMBEDDING_MODEL",
		"EMBEDDING_DIM", "VECTOR_STORE", "VECTOR_STORE_PATH", "DATABASE_URL", "REDIS_URL",
		"ANSWER_CACHE_TTL", "JWT_SECRET", "API_KEY", "AUTH_DISABLED",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
