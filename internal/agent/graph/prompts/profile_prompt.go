package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed template/identification.txt
var identificationSystemPrompt string

// RenderIdentificationSystem renders the profile-extraction system prompt via
// the Eino prompt component. The template carries a literal JSON contract, so
// it goes through a messages placeholder instead of FString interpolation:
// the braces must survive untouched.
func RenderIdentificationSystem(ctx context.Context) (string, error) {
	tpl := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("system_messages", false),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"system_messages": []*schema.Message{schema.SystemMessage(identificationSystemPrompt)},
	})
	if err != nil {
		return "", fmt.Errorf("identification prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("identification prompt render: empty result")
	}
	return msgs[0].Content, nil
}

// IdentificationUserMessage wraps the caller's latest utterance the way the
// extractor expects it.
func IdentificationUserMessage(userQuery string) *schema.Message {
	if userQuery == "" {
		userQuery = "последний запрос"
	}
	return schema.UserMessage(fmt.Sprintf("Ответ пользователя: '%s'\n\n", userQuery))
}
