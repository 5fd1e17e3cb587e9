package conversations

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/iteira-dev/consult-agent/internal/agent/graph/prompts"
	"github.com/iteira-dev/consult-agent/internal/agent/model"
	logx "github.com/iteira-dev/consult-agent/pkg/logger"
)

// Summarizer condenses a transcript into one short paragraph for the
// lifecycle reset.
type Summarizer struct {
	chatModel einomodel.BaseChatModel
}

func NewSummarizer(chatModel einomodel.BaseChatModel) *Summarizer {
	return &Summarizer{chatModel: chatModel}
}

// Summarize produces the condensed-transcript text. It never returns an
// error: summarization failure yields the fixed failure content so the reset
// can proceed with a degraded seed instead of blocking the turn.
func (s *Summarizer) Summarize(ctx context.Context, session *model.Session) string {
	system, err := prompts.RenderSummarySystem(ctx)
	if err != nil {
		logx.Error().Err(err).Str("session_id", session.ID).Msg("summary prompt render failed")
		return model.SummaryFailureContent
	}

	lines := make([]string, 0, len(session.Messages))
	for _, msg := range session.ChatTurns() {
		switch msg.Role {
		case schema.User:
			lines = append(lines, "Пользователь: "+msg.Content)
		case schema.Assistant:
			lines = append(lines, "Ассистент: "+msg.Content)
		}
	}

	out, err := s.chatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(fmt.Sprintf("Вот диалог для обобщения:\n\n%s", strings.Join(lines, "\n"))),
	})
	if err != nil || out == nil || strings.TrimSpace(out.Content) == "" {
		logx.Error().Err(err).Str("session_id", session.ID).Msg("conversation summarization failed")
		return model.SummaryFailureContent
	}

	summary := strings.TrimSpace(out.Content)
	// The seed must be detectable as a summary on the next load regardless of
	// how well the model followed instructions.
	if !strings.HasPrefix(summary, model.SummaryPrefix) {
		summary = model.SummaryPrefix + " " + summary
	}
	return summary
}
