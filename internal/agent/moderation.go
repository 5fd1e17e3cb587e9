package agent

import (
	"context"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/iteira-dev/consult-agent/internal/agent/graph/parsers"
	"github.com/iteira-dev/consult-agent/internal/agent/graph/prompts"
	"github.com/iteira-dev/consult-agent/internal/agent/model"
	logx "github.com/iteira-dev/consult-agent/pkg/logger"
)

// Moderator classifies inbound messages for human-handoff signals. It runs
// outside the consultation graph; only adapters that can act on the flags
// (transfer the dialog to an operator) invoke it.
type Moderator struct {
	chatModel einomodel.BaseChatModel
}

func NewModerator(chatModel einomodel.BaseChatModel) *Moderator {
	return &Moderator{chatModel: chatModel}
}

// Classify returns the moderation flags for text. Every failure mode yields
// zero flags: moderation must never block a consultation.
func (m *Moderator) Classify(ctx context.Context, text string) model.ClassificationFlags {
	system, err := prompts.RenderModerationSystem(ctx)
	if err != nil {
		logx.Error().Err(err).Msg("moderation prompt render failed")
		return model.ClassificationFlags{}
	}

	out, err := m.chatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(text),
	})
	if err != nil || out == nil {
		logx.Error().Err(err).Msg("moderation classification failed")
		return model.ClassificationFlags{}
	}

	_, flags := parsers.ParseSignals(out.Content)
	return flags
}
