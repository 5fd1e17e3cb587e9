package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/iteira-dev/consult-agent/internal/config"
	"github.com/iteira-dev/consult-agent/internal/ingest"
	"github.com/iteira-dev/consult-agent/internal/retrieval/embeddings"
	"github.com/iteira-dev/consult-agent/internal/retrieval/qdrant"
	logx "github.com/iteira-dev/consult-agent/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cfg config.Ingest
	if err := config.Load(&cfg); err != nil {
		logx.Fatal().Err(err).Msg("failed to load configuration")
	}
	logx.Init(logx.LoggerOpts{Environment: cfg.Env()})

	embedder, err := embeddings.NewGeminiEmbedder(ctx, cfg.Embedding)
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to create embedder")
	}

	store, err := qdrant.New(cfg.Qdrant)
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to create qdrant client")
	}

	mgr := ingest.NewRegenerationManager(embedder, store, cfg.Docs)
	n, err := mgr.Regenerate(ctx)
	if err != nil {
		logx.Fatal().Err(err).Msg("knowledge base regeneration failed")
	}

	total, err := store.Count(ctx)
	if err != nil {
		logx.Warn().Err(err).Msg("failed to count stored chunks")
	}
	logx.Info().Int("written", n).Uint64("total", total).Msg("ingestion complete")
}
