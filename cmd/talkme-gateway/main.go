package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/iteira-dev/consult-agent/internal/agent"
	"github.com/iteira-dev/consult-agent/internal/agent/graph"
	"github.com/iteira-dev/consult-agent/internal/agent/repo"
	"github.com/iteira-dev/consult-agent/internal/channels/talkme"
	"github.com/iteira-dev/consult-agent/internal/config"
	"github.com/iteira-dev/consult-agent/internal/retrieval"
	"github.com/iteira-dev/consult-agent/internal/retrieval/embeddings"
	"github.com/iteira-dev/consult-agent/internal/retrieval/qdrant"
	logx "github.com/iteira-dev/consult-agent/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cfg config.TalkMeGateway
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

	// TalkMe dialogs can be handed over to a human operator, so this gateway
	// moderates every inbound message.
	moderator := agent.NewModerator(comps.Models.Classifier)
	svc := agent.NewService(comps.Runner, comps.Sessions, moderator)

	server := talkme.NewServer(svc, talkme.NewClient(cfg.TalkMeClient), cfg.TalkMeServer)
	httpServer := &http.Server{
		Addr:              cfg.TalkMeServer.ListenAddr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logx.Error().Err(err).Msg("server shutdown failed")
		}
	}()

	logx.Info().Str("addr", cfg.TalkMeServer.ListenAddr).Msg("talkme gateway listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logx.Fatal().Err(err).Msg("talkme gateway exited")
	}
}
