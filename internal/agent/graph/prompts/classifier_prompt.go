package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed template/needs_retrieval.txt
var needsRetrievalSystemPrompt string

//go:embed template/moderation.txt
var moderationSystemPrompt string

// RenderNeedsRetrievalSystem renders the retrieval-necessity classifier
// prompt. Static text, rendered through the prompt component so callbacks
// still fire.
func RenderNeedsRetrievalSystem(ctx context.Context) (string, error) {
	return renderStatic(ctx, needsRetrievalSystemPrompt, "needs-retrieval")
}

// RenderModerationSystem renders the moderation classifier prompt that emits
// the classification variables.
func RenderModerationSystem(ctx context.Context) (string, error) {
	return renderStatic(ctx, moderationSystemPrompt, "moderation")
}

func renderStatic(ctx context.Context, text, name string) (string, error) {
	tpl := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("system_messages", false),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"system_messages": []*schema.Message{schema.SystemMessage(text)},
	})
	if err != nil {
		return "", fmt.Errorf("%s prompt render: %w", name, err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("%s prompt render: empty result", name)
	}
	return msgs[0].Content, nil
}
