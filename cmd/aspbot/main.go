package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/aspbot/internal/app"
	"github.com/ent0n29/aspbot/internal/config"
	"github.com/ent0n29/aspbot/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()

	built, err := app.Build(runCtx, cfg, nil, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}
	log.Info("providers resolved",
		zap.String("voice", built.Providers.Voice),
		zap.String("brain", built.Providers.Brain),
		zap.String("vector_store", built.Providers.VectorStore),
		zap.String("embedder", built.Providers.Embedder),
	)

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           built.API.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	built.Sessions.StartJanitor(runCtx, 5*time.Second)

	go func() {
		log.Info("server listening", zap.String("addr", cfg.BindAddr), zap.String("environment", cfg.Environment))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutdown signal received")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := built.Cleanup(); err != nil {
		log.Error("cleanup failed", zap.Error(err))
	}
}
