package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/iteira-dev/consult-agent/internal/agent"
	"github.com/iteira-dev/consult-agent/internal/agent/graph"
	"github.com/iteira-dev/consult-agent/internal/agent/repo"
	"github.com/iteira-dev/consult-agent/internal/channels/telegram"
	"github.com/iteira-dev/consult-agent/internal/config"
	"github.com/iteira-dev/consult-agent/internal/retrieval"
	"github.com/iteira-dev/consult-agent/internal/retrieval/embeddings"
	"github.com/iteira-dev/consult-agent/internal/retrieval/qdrant"
	logx "github.com/iteira-dev/consult-agent/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cfg config.TelegramBot
	if err := config.Load(&cfg); err != nil {
		logx.Fatal().Err(err).Msg("failed to load configuration")
	}
	logx.Init(logx.LoggerOpts{Environment: cfg.Env()})

	rdb, err := cfg.Redis.New()
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer rdb.Close()

	embedder, err := embeddings.NewGeminiEmbedder(ctx, cfg.Embedding)
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to create embedder")
	}

	store, err := qdrant.New(cfg.Qdrant)
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to create qdrant client")
	}

	comps, err := graph.BuildConsultationGraph(ctx, graph.Config{
		APIKey:          cfg.Gemini.APIKey,
		BaseURL:         cfg.BaseURL,
		ProfileModel:    cfg.Profile,
		ClassifierModel: cfg.Classifier,
		ResponseModel:   cfg.Response,
		SummaryModel:    cfg.Summary,
		Conversation:    cfg.Conversation,
		Retrieval:       cfg.Retrieval,
		SessionRepo:     repo.NewRedisSessionRepository(rdb, cfg.Conversation.TTL),
		Searcher:        retrieval.NewVectorSearcher(embedder, store),
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to build consultation graph")
	}

	svc := agent.NewService(comps.Runner, comps.Sessions, nil)
	bot := telegram.NewBot(telegram.NewClient(cfg.Telegram), svc)

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logx.Fatal().Err(err).Msg("telegram bot exited")
	}
}
