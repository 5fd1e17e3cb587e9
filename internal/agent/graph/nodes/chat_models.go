package nodes

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/iteira-dev/consult-agent/internal/agent/model"
	logx "github.com/iteira-dev/consult-agent/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation.
type ChatModelConfig struct {
	APIKey           string
	BaseURL          string
	ProfileConfig    *model.ProfileModelConfig
	ClassifierConfig *model.ClassifierModelConfig
	ResponseConfig   *model.ResponseModelConfig
	SummaryConfig    *model.SummaryModelConfig
}

// ChatModels holds every model role the consultation graph uses. Fields are
// interfaces so tests can inject fakes; production wiring fills them with
// Gemini models sharing one client.
type ChatModels struct {
	// Profile extracts the caller's name and gender.
	Profile einomodel.ToolCallingChatModel
	// Classifier answers the retrieval-necessity YES/NO question and doubles
	// as the moderation classifier.
	Classifier einomodel.BaseChatModel
	// Planner is the response model with the knowledge-search tool bound; it
	// decides the retrieval query.
	Planner einomodel.ToolCallingChatModel
	// Composer is the response model without tools; it writes the final reply.
	Composer einomodel.ToolCallingChatModel
	// Summary condenses transcripts at lifecycle resets.
	Summary einomodel.BaseChatModel

	ProfileModelName    string
	ClassifierModelName string
	ResponseModelName   string
	SummaryModelName    string
}

// NewChatModels creates all model roles over a single Gemini client.
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	profile, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.ProfileConfig.Model,
		Temperature: &config.ProfileConfig.Temperature,
		MaxTokens:   &config.ProfileConfig.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating profile model: %w", err)
	}

	classifier, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.ClassifierConfig.Model,
		Temperature: &config.ClassifierConfig.Temperature,
		MaxTokens:   &config.ClassifierConfig.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating classifier model: %w", err)
	}

	response, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.ResponseConfig.Model,
		Temperature: &config.ResponseConfig.Temperature,
		MaxTokens:   &config.ResponseConfig.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating response model: %w", err)
	}

	summary, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.SummaryConfig.Model,
		Temperature: &config.SummaryConfig.Temperature,
		MaxTokens:   &config.SummaryConfig.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating summary model: %w", err)
	}

	return &ChatModels{
		Profile:             profile,
		Classifier:          classifier,
		Planner:             response, // tools bound later via BindSearchTool
		Composer:            response,
		Summary:             summary,
		ProfileModelName:    config.ProfileConfig.Model,
		ClassifierModelName: config.ClassifierConfig.Model,
		ResponseModelName:   config.ResponseConfig.Model,
		SummaryModelName:    config.SummaryConfig.Model,
	}, nil
}

// BindSearchTool derives the planner model by binding the knowledge-search
// tool to the response model. The composer stays tool-free so the final
// answer phase can never loop back into retrieval.
func (cm *ChatModels) BindSearchTool(toolInfos []*schema.ToolInfo) error {
	planner, err := cm.Planner.WithTools(toolInfos)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to bind knowledge-search tool")
		return fmt.Errorf("failed to bind knowledge-search tool: %w", err)
	}
	cm.Planner = planner
	logx.Debug().Msg("Knowledge-search tool bound to planner model")
	return nil
}
