// Package config loads per-binary configuration from the environment,
// with a local .env file as a convenience for development runs.
package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/iteira-dev/consult-agent/internal/agent/model"
	"github.com/iteira-dev/consult-agent/internal/channels/talkme"
	"github.com/iteira-dev/consult-agent/internal/channels/telegram"
	"github.com/iteira-dev/consult-agent/internal/core"
	"github.com/iteira-dev/consult-agent/internal/ingest"
	"github.com/iteira-dev/consult-agent/internal/retrieval/embeddings"
	"github.com/iteira-dev/consult-agent/internal/retrieval/qdrant"
	pkgredis "github.com/iteira-dev/consult-agent/pkg/redis"
)

// Agent is the configuration shared by every binary that runs the
// consultation graph: infrastructure, provider credentials and model tuning.
type Agent struct {
	Environment string `envconfig:"APP_ENV" default:"development"`

	// Infrastructure
	Redis  pkgredis.Config
	Qdrant qdrant.Config

	// LLM provider
	Gemini    model.GeminiConfig
	BaseURL   string `envconfig:"GEMINI_BASE_URL"`
	Embedding embeddings.Config

	// Agent tuning
	Profile      model.ProfileModelConfig
	Classifier   model.ClassifierModelConfig
	Response     model.ResponseModelConfig
	Summary      model.SummaryModelConfig
	Conversation model.ConversationConfig
	Retrieval    model.RetrievalConfig
}

// Env returns the parsed deployment environment.
func (a Agent) Env() core.Environment {
	return core.ParseEnvironment(a.Environment)
}

// TelegramBot is the telegram-bot binary configuration.
type TelegramBot struct {
	Agent
	Telegram telegram.Config
}

// TalkMeGateway is the talkme-gateway binary configuration.
type TalkMeGateway struct {
	Agent
	TalkMeClient talkme.ClientConfig
	TalkMeServer talkme.ServerConfig
}

// Ingest is the kb-ingest binary configuration. It needs no Redis and no
// chat models, only the embedder and the vector store.
type Ingest struct {
	Environment string `envconfig:"APP_ENV" default:"development"`

	Qdrant    qdrant.Config
	Embedding embeddings.Config
	Docs      ingest.Config
}

// Env returns the parsed deployment environment.
func (i Ingest) Env() core.Environment {
	return core.ParseEnvironment(i.Environment)
}

// Load fills cfg from the environment. A missing .env file is not an error;
// missing required variables are.
func Load(cfg any) error {
	_ = godotenv.Load(".env")

	if err := envconfig.Process("", cfg); err != nil {
		return fmt.Errorf("process environment config: %w", err)
	}
	return nil
}
