package knowledge

import (
	"context"
	"fmt"
	"strings"
)

// StoreOptions selects and configures a vector store.
type StoreOptions struct {
	Kind         string // auto|memory|sqlite|postgres
	SQLitePath   string
	DatabaseURL  string
	EmbeddingDim int
}

// NewStore opens the configured store. auto prefers postgres when DATABASE_URL
// is set, then the sqlite file, then memory.
func NewStore(ctx context.Context, opts StoreOptions) (Store, error) {
	kind := strings.ToLower(strings.TrimSpace(opts.Kind))
	if kind == "" || kind == "auto" {
		switch {
		case strings.TrimSpace(opts.DatabaseURL) != "":
			kind = "postgres"
		case strings.TrimSpace(opts.SQLitePath) != "":
			kind = "sqlite"
		default:
			kind = "memory"
		}
	}

	switch kind {
	case "memory":
		return NewInMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(ctx, opts.SQLitePath)
	case "postgres":
		return NewPostgresStore(ctx, opts.DatabaseURL, opts.EmbeddingDim)
	default:
		return nil, fmt.Errorf("unknown vector store %q", opts.Kind)
	}
}
