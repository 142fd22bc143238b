package knowledge

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ent0n29/aspbot/internal/errs"
)

var chunkNamespace = uuid.MustParse("5b0f3c0e-8d1e-4f57-9a0b-3c1f2a6d7e41")

// Document is one loaded source file.
type Document struct {
	Source  string
	Content string
}

// IndexStats summarizes one indexing run.
type IndexStats struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
}

// Indexer loads, splits, embeds and stores documents.
type Indexer struct {
	Splitter  Splitter
	Embedder  Embedder
	Store     Store
	BatchSize int
	Log       *zap.Logger
}

// LoadDocuments reads every .txt and .md file under dir.
func LoadDocuments(dir string) ([]Document, error) {
	var docs []Document
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".txt", ".md":
		default:
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			rel = path
		}
		docs = append(docs, Document{Source: filepath.ToSlash(rel), Content: string(b)})
		return nil
	})
	if err != nil {
		return nil, errs.Document("error loading documents", err)
	}
	return docs, nil
}

// Chunks splits docs into chunks with deterministic ids so re-indexing overwrites.
func (ix *Indexer) Chunks(docs []Document) []Chunk {
	var out []Chunk
	for _, doc := range docs {
		for i, text := range ix.Splitter.Split(doc.Content) {
			out = append(out, Chunk{
				ID:      uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s#%d", doc.Source, i))).String(),
				Content: text,
				Metadata: map[string]any{
					"source":      doc.Source,
					"chunk_index": i,
				},
			})
		}
	}
	return out
}

// Index embeds and stores docs in batches.
func (ix *Indexer) Index(ctx context.Context, docs []Document) (IndexStats, error) {
	log := ix.Log
	if log == nil {
		log = zap.NewNop()
	}
	chunks := ix.Chunks(docs)
	if len(chunks) == 0 {
		return IndexStats{Documents: len(docs)}, errs.Document("no content to index", nil)
	}

	batch := ix.BatchSize
	if batch <= 0 {
		batch = 64
	}
	for start := 0; start < len(chunks); start += batch {
		end := start + batch
		if end > len(chunks) {
			end = len(chunks)
		}
		part := chunks[start:end]
		texts := make([]string, len(part))
		for i, c := range part {
			texts[i] = c.Content
		}
		vectors, err := ix.Embedder.Embed(ctx, texts)
		if err != nil {
			return IndexStats{}, errs.VectorStore("error embedding chunks", err)
		}
		if len(vectors) != len(part) {
			return IndexStats{}, errs.VectorStore("error embedding chunks", fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(part)))
		}
		for i := range part {
			part[i].Embedding = vectors[i]
		}
		if err := ix.Store.Upsert(ctx, part); err != nil {
			return IndexStats{}, errs.VectorStore("error storing chunks", err)
		}
		log.Info("indexed batch", zap.Int("from", start), zap.Int("to", end), zap.Int("total", len(chunks)))
	}
	return IndexStats{Documents: len(docs), Chunks: len(chunks)}, nil
}

// IndexDirectory loads dir and indexes its documents.
func (ix *Indexer) IndexDirectory(ctx context.Context, dir string) (IndexStats, error) {
	docs, err := LoadDocuments(dir)
	if err != nil {
		return IndexStats{}, err
	}
	if len(docs) == 0 {
		return IndexStats{}, errs.Document(fmt.Sprintf("no .txt or .md documents in %s", dir), nil)
	}
	return ix.Index(ctx, docs)
}
