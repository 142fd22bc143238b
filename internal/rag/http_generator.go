package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ent0n29/aspbot/internal/knowledge"
	"github.com/ent0n29/aspbot/internal/reliability"
)

const systemPrompt = `Ти си асистент на Агенцията за социално подпомагане. Отговаряй кратко и ясно на български език.
Използвай САМО информацията от предоставените откъси. Не добавяй факти, които не са в тях.
Ако откъсите не съдържат отговора, отговори точно с: %s`

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// HTTPGenerator calls an OpenAI-compatible chat completions endpoint.
type HTTPGenerator struct {
	url     string
	model   string
	apiKey  string
	refusal string
	client  *reliability.Client
}

func NewHTTPGenerator(url, model, apiKey, refusal string, client *reliability.Client) *HTTPGenerator {
	return &HTTPGenerator{
		url:     strings.TrimSpace(url),
		model:   strings.TrimSpace(model),
		apiKey:  strings.TrimSpace(apiKey),
		refusal: strings.TrimSpace(refusal),
		client:  client,
	}
}

func (g *HTTPGenerator) Generate(ctx context.Context, query string, passages []knowledge.Passage) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf(systemPrompt, g.refusal)},
			{Role: "user", Content: buildUserPrompt(query, passages)},
		},
		Temperature: 0,
		MaxTokens:   1000,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	body, err := g.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if g.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+g.apiKey)
		}
		return req, nil
	})
	if err != nil {
		return "", err
	}

	var out chatResponse
	if err := json.Unmarshal(body, &out); err == nil && len(out.Choices) > 0 {
		if text := strings.TrimSpace(out.Choices[0].Message.Content); text != "" {
			return text, nil
		}
	}
	// Some self-hosted gateways answer with a flat object.
	var flat map[string]any
	if err := json.Unmarshal(body, &flat); err == nil {
		if text := strings.TrimSpace(extractText(flat)); text != "" {
			return text, nil
		}
	}
	return "", fmt.Errorf("malformed completion response")
}

func buildUserPrompt(query string, passages []knowledge.Passage) string {
	var b strings.Builder
	b.WriteString("Откъси:\n")
	for i, p := range passages {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, strings.TrimSpace(p.Content))
	}
	b.WriteString("Въпрос: ")
	b.WriteString(strings.TrimSpace(query))
	return b.String()
}

func extractText(obj map[string]any) string {
	for _, k := range []string{"answer", "text", "output", "message"} {
		if s, ok := obj[k].(string); ok {
			return s
		}
	}
	return ""
}
