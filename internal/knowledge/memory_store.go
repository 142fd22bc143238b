package knowledge

import (
	"context"
	"fmt"
	"sync"
)

// InMemoryStore is a brute-force cosine store for local/dev use and tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	order  []string
	chunks map[string]Chunk
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{chunks: make(map[string]Chunk)}
}

func (s *InMemoryStore) Upsert(_ context.Context, chunks []Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("chunk id is required")
		}
		if _, ok := s.chunks[c.ID]; !ok {
			s.order = append(s.order, c.ID)
		}
		c.Metadata = copyMetadata(c.Metadata)
		s.chunks[c.ID] = c
	}
	return nil
}

func (s *InMemoryStore) Search(_ context.Context, embedding []float32, topK int) ([]Passage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Passage, 0, len(s.order))
	for _, id := range s.order {
		c := s.chunks[id]
		out = append(out, Passage{
			Content:  c.Content,
			Metadata: copyMetadata(c.Metadata),
			Score:    cosine(embedding, c.Embedding),
		})
	}
	return rank(out, topK), nil
}

func (s *InMemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

func (s *InMemoryStore) Close() error { return nil }
