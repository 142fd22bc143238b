// Package knowledge retrieves ranked knowledge-base passages and indexes documents into a vector store.
package knowledge

import "context"

// Passage is one retrieved knowledge chunk. Score is a similarity in [0,1], higher is better.
type Passage struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
	Score    float64        `json:"score"`
}

// Chunk is an indexed unit of a source document.
type Chunk struct {
	ID        string
	Content   string
	Metadata  map[string]any
	Embedding []float32
}

// Retriever returns passages relevant to query. Results are ranked but callers must not rely on order.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]Passage, error)
}

// Embedder turns texts into vectors of a fixed dimension.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Store persists chunks and searches them by embedding similarity.
type Store interface {
	Upsert(ctx context.Context, chunks []Chunk) error
	Search(ctx context.Context, embedding []float32, topK int) ([]Passage, error)
	Count(ctx context.Context) (int, error)
	Close() error
}
