package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ent0n29/aspbot/internal/errs"
	"github.com/ent0n29/aspbot/internal/reliability"
)

type panickyStore struct{ InMemoryStore }

func (*panickyStore) Count(context.Context) (int, error) { panic("boom") }

func TestVectorRetrieverRetriesInitialization(t *testing.T) {
	var inits int
	r := NewVectorRetriever(func(context.Context) (Backend, error) {
		inits++
		if inits == 1 {
			return Backend{}, errors.New("store unreachable")
		}
		store := NewInMemoryStore()
		emb := NewHashEmbedder(64)
		vecs, _ := emb.Embed(context.Background(), []string{"работно време на офиса"})
		_ = store.Upsert(context.Background(), []Chunk{{ID: "1", Content: "работно време на офиса", Embedding: vecs[0]}})
		return Backend{Embedder: emb, Store: store}, nil
	}, nil)

	_, err := r.Retrieve(context.Background(), "работно време", 3)
	if !errors.Is(err, errs.ErrVectorStore) {
		t.Fatalf("first Retrieve() error = %v, want vector store error", err)
	}

	got, err := r.Retrieve(context.Background(), "работно време", 3)
	if err != nil {
		t.Fatalf("second Retrieve() error = %v", err)
	}
	if len(got) != 1 || got[0].Score <= 0 {
		t.Fatalf("Retrieve() = %+v, want one scored passage", got)
	}
	if inits != 2 {
		t.Fatalf("inits = %d, want 2", inits)
	}
}

func TestVectorRetrieverProbe(t *testing.T) {
	ok := NewVectorRetriever(func(context.Context) (Backend, error) {
		return Backend{Embedder: NewHashEmbedder(8), Store: NewInMemoryStore()}, nil
	}, nil)
	if !ok.IsOperational(context.Background()) {
		t.Fatalf("IsOperational() = false, want true")
	}

	failing := NewVectorRetriever(func(context.Context) (Backend, error) {
		return Backend{}, errors.New("down")
	}, nil)
	if failing.IsOperational(context.Background()) {
		t.Fatalf("IsOperational() = true for failing init")
	}

	panicking := NewVectorRetriever(func(context.Context) (Backend, error) {
		return Backend{Embedder: NewHashEmbedder(8), Store: &panickyStore{}}, nil
	}, nil)
	if panicking.IsOperational(context.Background()) {
		t.Fatalf("IsOperational() = true for panicking store")
	}
}

func TestHTTPEmbedderOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var req embeddingsRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "text-embedding-3-small" || len(req.Input) != 2 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(srv.URL, "text-embedding-3-small", "k", reliability.NewClient("embeddings", time.Second, nil))
	got, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if got[0][0] != 1 || got[1][1] != 1 {
		t.Fatalf("Embed() = %v, want vectors ordered by index", got)
	}
}

func TestIndexerIndexesDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "services.md"), []byte("АСП предлага социални услуги.\n\nПриемно време: 9-17 ч."), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "skip.pdf"), []byte("%PDF"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := NewInMemoryStore()
	ix := &Indexer{Splitter: Splitter{Size: 40, Overlap: 0}, Embedder: NewHashEmbedder(64), Store: store}
	stats, err := ix.IndexDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("IndexDirectory() error = %v", err)
	}
	if stats.Documents != 1 || stats.Chunks != 2 {
		t.Fatalf("stats = %+v, want 1 document / 2 chunks", stats)
	}

	// Re-indexing overwrites by deterministic chunk id.
	if _, err := ix.IndexDirectory(context.Background(), dir); err != nil {
		t.Fatalf("second IndexDirectory() error = %v", err)
	}
	if n, _ := store.Count(context.Background()); n != 2 {
		t.Fatalf("Count() = %d, want 2", n)
	}

	passages, _ := store.Search(context.Background(), mustEmbed(t, ix.Embedder, "приемно време"), 1)
	if len(passages) != 1 || passages[0].Metadata["source"] != "services.md" || passages[0].Metadata["chunk_index"] != 1 {
		t.Fatalf("Search() = %+v, want chunk 1 of services.md", passages)
	}
}

func TestIndexDirectoryEmpty(t *testing.T) {
	ix := &Indexer{Splitter: Splitter{Size: 40}, Embedder: NewHashEmbedder(8), Store: NewInMemoryStore()}
	_, err := ix.IndexDirectory(context.Background(), t.TempDir())
	if !errors.Is(err, errs.ErrDocumentProcessing) {
		t.Fatalf("IndexDirectory() error = %v, want document processing error", err)
	}
}

func mustEmbed(t *testing.T, e Embedder, text string) []float32 {
	t.Helper()
	v, err := e.Embed(context.Background(), []string{text})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	return v[0]
}
