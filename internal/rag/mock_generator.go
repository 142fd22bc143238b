package rag

import (
	"context"
	"strings"

	"github.com/ent0n29/aspbot/internal/knowledge"
)

// MockGenerator answers with the first sentence of the best passage.
type MockGenerator struct {
	refusal string
}

func NewMockGenerator(refusal string) *MockGenerator {
	return &MockGenerator{refusal: strings.TrimSpace(refusal)}
}

func (g *MockGenerator) Generate(ctx context.Context, _ string, passages []knowledge.Passage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	best := -1
	for i, p := range passages {
		if strings.TrimSpace(p.Content) == "" {
			continue
		}
		if best < 0 || p.Score > passages[best].Score {
			best = i
		}
	}
	if best < 0 {
		return g.refusal, nil
	}
	return firstSentence(passages[best].Content), nil
}

func firstSentence(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	for i, r := range text {
		switch r {
		case '.', '!', '?':
			return text[:i+1]
		}
	}
	return text
}
