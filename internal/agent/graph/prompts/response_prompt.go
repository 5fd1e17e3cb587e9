package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed template/retrieval.txt
var retrievalSystemPrompt string

//go:embed template/consultation.txt
var consultationSystemPrompt string

// Profile-at-prompt-time fallbacks. The stored profile stays empty until
// extraction succeeds; only the rendered prompt substitutes these.
const (
	DefaultClientName = "клиент"
	DefaultGender     = "неизвестен"
)

// PlannerUserInstruction is the fixed user turn that drives the forced
// retrieval call.
const PlannerUserInstruction = "Выполни поиск по запросу пользователя"

// RenderRetrievalSystem renders the planner prompt that forces a
// knowledge-search tool call.
func RenderRetrievalSystem(ctx context.Context) (string, error) {
	return renderStatic(ctx, retrievalSystemPrompt, "retrieval")
}

// RenderConsultationSystem renders the final-response system prompt with the
// caller's profile substituted. Empty profile fields fall back to neutral
// placeholders so the model never sees raw template holes.
func RenderConsultationSystem(ctx context.Context, clientName, gender string) (string, error) {
	if clientName == "" {
		clientName = DefaultClientName
	}
	if gender == "" {
		gender = DefaultGender
	}

	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(consultationSystemPrompt),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"ClientName": clientName,
		"Gender":     gender,
	})
	if err != nil {
		return "", fmt.Errorf("consultation prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("consultation prompt render: empty result")
	}
	return msgs[0].Content, nil
}

// ConsultationUserMessage pairs the caller's question with whatever the
// retrieval step produced (or the no-retrieval placeholder).
func ConsultationUserMessage(userQuery, retrievedInfo string) *schema.Message {
	if userQuery == "" {
		userQuery = "последний запрос"
	}
	return schema.UserMessage(fmt.Sprintf(
		"Запрос пользователя: '%s'\n\nРелевантная информация:\n%s\n\nСформулируй финальный ответ пользователю на основе этой информации.",
		userQuery, retrievedInfo,
	))
}
