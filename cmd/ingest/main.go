package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ent0n29/aspbot/internal/app"
	"github.com/ent0n29/aspbot/internal/config"
	"github.com/ent0n29/aspbot/internal/logging"
)

func main() {
	dir := flag.String("dir", "data/documents", "directory of .txt and .md documents to index")
	flag.Parse()

	if err := run(*dir); err != nil {
		fmt.Fprintf(os.Stderr, "ingest: %v\n", err)
		os.Exit(1)
	}
}

func run(dir string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	indexer, err := app.NewIndexer(ctx, cfg, log.Named("ingest"))
	if err != nil {
		return err
	}
	defer func() {
		if err := indexer.Store.Close(); err != nil {
			log.Warn("closing vector store failed", zap.Error(err))
		}
	}()

	log.Info("indexing documents", zap.String("dir", dir), zap.String("vector_store", cfg.VectorStore))
	stats, err := indexer.IndexDirectory(ctx, dir)
	if err != nil {
		return err
	}
	total, err := indexer.Store.Count(ctx)
	if err != nil {
		log.Warn("counting stored chunks failed", zap.Error(err))
	}
	fmt.Printf("indexed %d documents into %d chunks (store now holds %d chunks)\n", stats.Documents, stats.Chunks, total)
	return nil
}
