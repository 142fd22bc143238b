package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultResponse is the fallback phrase spoken when no trustworthy context exists.
const DefaultResponse = "Моля, опитайте се да формулирате въпроса по-точно, за да мога да помогна."

// Config contains all runtime settings for the voice assistant service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	Environment      string
	Debug            bool
	Version          string
	MetricsNamespace string
	LogLevel         string

	SessionInactivityTimeout time.Duration
	StageTimeout             time.Duration

	RetrievalTopK      int
	RelevanceThreshold float64
	DefaultResponse    string
	ChunkSize          int
	ChunkOverlap       int

	WakePhrase                 string
	WakeWordMinConfidence      float64
	WakeWordEnergyThreshold    float64
	TranscriptionMinConfidence float64

	VoiceProvider string
	STTURL        string
	STTModel      string
	STTLanguage   string
	TTSURL        string
	TTSModel      string
	TTSVoice      string
	OpenAIAPIKey  string

	BrainProvider  string
	LLMURL         string
	LLMModel       string
	EmbeddingURL   string
	EmbeddingModel string
	EmbeddingDim   int

	VectorStore     string
	VectorStorePath string
	DatabaseURL     string

	RedisURL       string
	AnswerCacheTTL time.Duration

	JWTSecret    string
	APIKey       string
	AuthDisabled bool
}

// Load reads settings from the environment (and an optional config.yaml) and applies safe defaults.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := Config{
		BindAddr:         trimmed(v, "APP_BIND_ADDR"),
		Environment:      trimmed(v, "APP_ENVIRONMENT"),
		Version:          trimmed(v, "APP_VERSION"),
		MetricsNamespace: trimmed(v, "APP_METRICS_NAMESPACE"),
		LogLevel:         strings.ToLower(trimmed(v, "LOG_LEVEL")),
		DefaultResponse:  trimmed(v, "DEFAULT_RESPONSE"),
		WakePhrase:       trimmed(v, "WAKE_PHRASE"),
		VoiceProvider:    strings.ToLower(trimmed(v, "VOICE_PROVIDER")),
		STTURL:           trimmed(v, "STT_URL"),
		STTModel:         trimmed(v, "STT_MODEL"),
		STTLanguage:      trimmed(v, "STT_LANGUAGE"),
		TTSURL:           trimmed(v, "TTS_URL"),
		TTSModel:         trimmed(v, "TTS_MODEL"),
		TTSVoice:         trimmed(v, "TTS_VOICE"),
		OpenAIAPIKey:     trimmed(v, "OPENAI_API_KEY"),
		BrainProvider:    strings.ToLower(trimmed(v, "BRAIN_PROVIDER")),
		LLMURL:           trimmed(v, "LLM_URL"),
		LLMModel:         trimmed(v, "LLM_MODEL"),
		EmbeddingURL:     trimmed(v, "EMBEDDING_URL"),
		EmbeddingModel:   trimmed(v, "EMBEDDING_MODEL"),
		VectorStore:      strings.ToLower(trimmed(v, "VECTOR_STORE")),
		VectorStorePath:  trimmed(v, "VECTOR_STORE_PATH"),
		DatabaseURL:      trimmed(v, "DATABASE_URL"),
		RedisURL:         trimmed(v, "REDIS_URL"),
		JWTSecret:        trimmed(v, "JWT_SECRET"),
		APIKey:           trimmed(v, "API_KEY"),
	}

	var err error
	if cfg.ShutdownTimeout, err = durationFrom(v, "APP_SHUTDOWN_TIMEOUT"); err != nil {
		return Config{}, err
	}
	if cfg.SessionInactivityTimeout, err = durationFrom(v, "SESSION_INACTIVITY_TIMEOUT"); err != nil {
		return Config{}, err
	}
	if cfg.StageTimeout, err = durationFrom(v, "STAGE_TIMEOUT"); err != nil {
		return Config{}, err
	}
	if cfg.AnswerCacheTTL, err = durationFrom(v, "ANSWER_CACHE_TTL"); err != nil {
		return Config{}, err
	}
	if cfg.Debug, err = boolFrom(v, "APP_DEBUG"); err != nil {
		return Config{}, err
	}
	if cfg.AuthDisabled, err = boolFrom(v, "AUTH_DISABLED"); err != nil {
		return Config{}, err
	}
	if cfg.RetrievalTopK, err = intFrom(v, "RETRIEVAL_TOP_K"); err != nil {
		return Config{}, err
	}
	if cfg.ChunkSize, err = intFrom(v, "CHUNK_SIZE"); err != nil {
		return Config{}, err
	}
	if cfg.ChunkOverlap, err = intFrom(v, "CHUNK_OVERLAP"); err != nil {
		return Config{}, err
	}
	if cfg.EmbeddingDim, err = intFrom(v, "EMBEDDING_DIM"); err != nil {
		return Config{}, err
	}
	if cfg.RelevanceThreshold, err = floatFrom(v, "RELEVANCE_THRESHOLD"); err != nil {
		return Config{}, err
	}
	if cfg.WakeWordMinConfidence, err = floatFrom(v, "WAKE_WORD_MIN_CONFIDENCE"); err != nil {
		return Config{}, err
	}
	if cfg.WakeWordEnergyThreshold, err = floatFrom(v, "WAKE_WORD_ENERGY_THRESHOLD"); err != nil {
		return Config{}, err
	}
	if cfg.TranscriptionMinConfidence, err = floatFrom(v, "TRANSCRIPTION_MIN_CONFIDENCE"); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints. Load calls it; tests building a Config by hand may too.
func (c Config) Validate() error {
	if c.SessionInactivityTimeout < 5*time.Second {
		return fmt.Errorf("SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if c.StageTimeout <= 0 {
		return fmt.Errorf("STAGE_TIMEOUT must be positive")
	}
	if c.RetrievalTopK <= 0 {
		return fmt.Errorf("RETRIEVAL_TOP_K must be positive")
	}
	if c.RelevanceThreshold < 0 || c.RelevanceThreshold > 1 {
		return fmt.Errorf("RELEVANCE_THRESHOLD must be within [0,1]")
	}
	if c.WakeWordMinConfidence < 0 || c.WakeWordMinConfidence > 1 {
		return fmt.Errorf("WAKE_WORD_MIN_CONFIDENCE must be within [0,1]")
	}
	if c.TranscriptionMinConfidence < 0 || c.TranscriptionMinConfidence > 1 {
		return fmt.Errorf("TRANSCRIPTION_MIN_CONFIDENCE must be within [0,1]")
	}
	if strings.TrimSpace(c.DefaultResponse) == "" {
		return fmt.Errorf("DEFAULT_RESPONSE must not be empty")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be >= 0 and smaller than CHUNK_SIZE")
	}
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("EMBEDDING_DIM must be positive")
	}
	if c.AnswerCacheTTL < 0 {
		return fmt.Errorf("ANSWER_CACHE_TTL must be >= 0")
	}
	switch c.VoiceProvider {
	case "auto", "http", "mock":
	default:
		return fmt.Errorf("invalid VOICE_PROVIDER: %q (expected auto|http|mock)", c.VoiceProvider)
	}
	switch c.BrainProvider {
	case "auto", "http", "mock":
	default:
		return fmt.Errorf("invalid BRAIN_PROVIDER: %q (expected auto|http|mock)", c.BrainProvider)
	}
	switch c.VectorStore {
	case "auto", "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid VECTOR_STORE: %q (expected auto|memory|sqlite|postgres)", c.VectorStore)
	}
	if c.VectorStore == "postgres" && c.DatabaseURL == "" {
		return fmt.Errorf("VECTOR_STORE=postgres requires DATABASE_URL")
	}
	if !c.AuthDisabled && c.JWTSecret == "" && c.APIKey == "" {
		return fmt.Errorf("JWT_SECRET or API_KEY is required unless AUTH_DISABLED=true")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	defaults := map[string]any{
		"APP_BIND_ADDR":                ":8000",
		"APP_SHUTDOWN_TIMEOUT":         "15s",
		"APP_ENVIRONMENT":              "production",
		"APP_DEBUG":                    "false",
		"APP_VERSION":                  "0.1.0",
		"APP_METRICS_NAMESPACE":        "aspbot",
		"LOG_LEVEL":                    "info",
		"SESSION_INACTIVITY_TIMEOUT":   "2m",
		"STAGE_TIMEOUT":                "30s",
		"RETRIEVAL_TOP_K":              "3",
		"RELEVANCE_THRESHOLD":          "0.7",
		"DEFAULT_RESPONSE":             DefaultResponse,
		"CHUNK_SIZE":                   "1000",
		"CHUNK_OVERLAP":                "200",
		"WAKE_PHRASE":                  "Здравей АСП",
		"WAKE_WORD_MIN_CONFIDENCE":     "0.5",
		"WAKE_WORD_ENERGY_THRESHOLD":   "300",
		"TRANSCRIPTION_MIN_CONFIDENCE": "0",
		"VOICE_PROVIDER":               "auto",
		"STT_URL":                      "https://api.openai.com/v1/audio/transcriptions",
		"STT_MODEL":                    "whisper-1",
		"STT_LANGUAGE":                 "bg",
		"TTS_URL":                      "https://api.openai.com/v1/audio/speech",
		"TTS_MODEL":                    "tts-1",
		"TTS_VOICE":                    "bg-BG-KalinaNeural",
		"BRAIN_PROVIDER":               "auto",
		"LLM_URL":                      "https://api.openai.com/v1/chat/completions",
		"LLM_MODEL":                    "gpt-4-turbo",
		"EMBEDDING_URL":                "https://api.openai.com/v1/embeddings",
		"EMBEDDING_MODEL":              "text-embedding-3-small",
		"EMBEDDING_DIM":                "1536",
		"VECTOR_STORE":                 "auto",
		"VECTOR_STORE_PATH":            "./data/processed/vector_store.db",
		"ANSWER_CACHE_TTL":             "10m",
		"AUTH_DISABLED":                "false",
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

func trimmed(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

func durationFrom(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(trimmed(v, key))
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFrom(v *viper.Viper, key string) (int, error) {
	n, err := strconv.Atoi(trimmed(v, key))
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFrom(v *viper.Viper, key string) (float64, error) {
	f, err := strconv.ParseFloat(trimmed(v, key), 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFrom(v *viper.Viper, key string) (bool, error) {
	switch strings.ToLower(trimmed(v, key)) {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
