package knowledge

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ent0n29/aspbot/internal/errs"
	"github.com/ent0n29/aspbot/internal/lazy"
)

// Backend is the embedding model plus the store it indexes into.
type Backend struct {
	Embedder Embedder
	Store    Store
}

// VectorRetriever embeds queries and searches the store. The backend is
// initialized on first use and re-attempted after a failed initialization.
type VectorRetriever struct {
	backend *lazy.Handle[Backend]
	log     *zap.Logger
}

func NewVectorRetriever(init lazy.InitFunc[Backend], log *zap.Logger) *VectorRetriever {
	if log == nil {
		log = zap.NewNop()
	}
	return &VectorRetriever{backend: lazy.New(init), log: log}
}

func (r *VectorRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Passage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	b, err := r.backend.Get(ctx)
	if err != nil {
		return nil, errs.VectorStore("error initializing vector store", err)
	}
	vectors, err := b.Embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, errs.VectorStore("error embedding query", err)
	}
	if len(vectors) != 1 {
		return nil, errs.VectorStore("error embedding query", fmt.Errorf("got %d vectors, want 1", len(vectors)))
	}
	passages, err := b.Store.Search(ctx, vectors[0], topK)
	if err != nil {
		return nil, errs.VectorStore("error searching vector store", err)
	}
	r.log.Debug("retrieved passages", zap.Int("count", len(passages)), zap.Int("top_k", topK))
	return passages, nil
}

// IsOperational initializes the backend if needed and checks the store answers.
// It never panics or returns an error; failures read as false.
func (r *VectorRetriever) IsOperational(ctx context.Context) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Warn("knowledge base probe panicked", zap.Any("panic", rec))
			ok = false
		}
	}()
	b, err := r.backend.Get(ctx)
	if err != nil {
		r.log.Warn("knowledge base probe failed", zap.Error(err))
		return false
	}
	if _, err := b.Store.Count(ctx); err != nil {
		r.log.Warn("knowledge base probe failed", zap.Error(err))
		return false
	}
	return true
}

// Close releases the store if it was ever opened.
func (r *VectorRetriever) Close() error {
	if !r.backend.Ready() {
		return nil
	}
	b, err := r.backend.Get(context.Background())
	if err != nil {
		return nil
	}
	return b.Store.Close()
}
