package prompts

import (
	"context"
	"strings"
	"testing"

	"github.com/iteira-dev/consult-agent/internal/agent/model"
)

func TestIdentificationSystemKeepsJSONContract(t *testing.T) {
	system, err := RenderIdentificationSystem(context.Background())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	// The JSON contract braces must survive templating untouched.
	if !strings.Contains(system, `{"client_name":`) {
		t.Errorf("rendered prompt lost the JSON contract:\n%s", system)
	}
	if !strings.Contains(system, model.ClarifyProcedurePhrase) {
		t.Errorf("rendered prompt does not instruct the clarify phrase %q", model.ClarifyProcedurePhrase)
	}
}

func TestIdentificationUserMessageWrapsQuery(t *testing.T) {
	msg := IdentificationUserMessage("Меня зовут Анна")
	if !strings.Contains(msg.Content, "Ответ пользователя: 'Меня зовут Анна'") {
		t.Errorf("content = %q", msg.Content)
	}
	if msg = IdentificationUserMessage(""); !strings.Contains(msg.Content, "последний запрос") {
		t.Errorf("empty query fallback missing: %q", msg.Content)
	}
}

func TestConsultationSystemSubstitutesProfile(t *testing.T) {
	system, err := RenderConsultationSystem(context.Background(), "Анна", "женский")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(system, "Анна") || !strings.Contains(system, "женский") {
		t.Errorf("profile fields not substituted:\n%s", system)
	}
	if strings.Contains(system, "{{") {
		t.Errorf("template holes survived rendering:\n%s", system)
	}
}

func TestConsultationSystemDefaults(t *testing.T) {
	system, err := RenderConsultationSystem(context.Background(), "", "")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(system, DefaultClientName) || !strings.Contains(system, DefaultGender) {
		t.Errorf("defaults not substituted:\n%s", system)
	}
}

func TestConsultationUserMessageShape(t *testing.T) {
	msg := ConsultationUserMessage("сколько стоит маникюр?", "[Source: prices.md]\nМаникюр — 2000 рублей.")
	for _, want := range []string{
		"Запрос пользователя: 'сколько стоит маникюр?'",
		"Релевантная информация:",
		"[Source: prices.md]",
		"Сформулируй финальный ответ",
	} {
		if !strings.Contains(msg.Content, want) {
			t.Errorf("content missing %q:\n%s", want, msg.Content)
		}
	}
}

func TestStaticPromptsRender(t *testing.T) {
	ctx := context.Background()
	for name, render := range map[string]func(context.Context) (string, error){
		"needs_retrieval": RenderNeedsRetrievalSystem,
		"moderation":      RenderModerationSystem,
		"retrieval":       RenderRetrievalSystem,
		"summary":         RenderSummarySystem,
	} {
		out, err := render(ctx)
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if strings.TrimSpace(out) == "" {
			t.Errorf("%s: rendered empty", name)
		}
	}
}
