// Package rag answers questions from retrieved knowledge-base passages.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/aspbot/internal/knowledge"
	"github.com/ent0n29/aspbot/internal/reliability"
)

// Generator composes an answer to query grounded in passages. Implementations are
// asked to answer only from the passages and to reply with the refusal phrase
// verbatim otherwise; the orchestrator cannot enforce either.
type Generator interface {
	Generate(ctx context.Context, query string, passages []knowledge.Passage) (string, error)
}

// GeneratorConfig controls generator construction.
type GeneratorConfig struct {
	Mode          string // auto|http|mock
	URL           string
	Model         string
	APIKey        string
	RefusalPhrase string
	Timeout       time.Duration
}

// NewGenerator builds the configured generator. auto picks http when an API key
// is present and mock otherwise.
func NewGenerator(cfg GeneratorConfig, log *zap.Logger) (Generator, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" || mode == "auto" {
		mode = "mock"
		if strings.TrimSpace(cfg.APIKey) != "" && strings.TrimSpace(cfg.URL) != "" {
			mode = "http"
		}
	}

	switch mode {
	case "http":
		if strings.TrimSpace(cfg.URL) == "" {
			return nil, errors.New("LLM_URL is required for http generator")
		}
		client := reliability.NewClient("llm", cfg.Timeout, log)
		return NewHTTPGenerator(cfg.URL, cfg.Model, cfg.APIKey, cfg.RefusalPhrase, client), nil
	case "mock":
		return NewMockGenerator(cfg.RefusalPhrase), nil
	default:
		return nil, fmt.Errorf("unsupported generator mode %q", cfg.Mode)
	}
}
