package graph

import (
	"context"
	"errors"
	"strings"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/iteira-dev/consult-agent/internal/agent/graph/conversations"
	"github.com/iteira-dev/consult-agent/internal/agent/graph/nodes"
	"github.com/iteira-dev/consult-agent/internal/agent/graph/tools"
	"github.com/iteira-dev/consult-agent/internal/agent/model"
	"github.com/iteira-dev/consult-agent/internal/agent/repo"
	"github.com/iteira-dev/consult-agent/internal/retrieval"
)

// scriptedModel replays canned responses; each Generate call consumes one.
type scriptedModel struct {
	replies []*schema.Message
	errs    []error
	calls   int
	inputs  [][]*schema.Message
}

func (m *scriptedModel) Generate(_ context.Context, in []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	m.inputs = append(m.inputs, in)
	i := m.calls
	m.calls++
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i < len(m.replies) {
		return m.replies[i], nil
	}
	return schema.AssistantMessage("ok", nil), nil
}

func (m *scriptedModel) Stream(_ context.Context, _ []*schema.Message, _ ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported in tests")
}

func (m *scriptedModel) WithTools(_ []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	return m, nil
}

type stubSearcher struct {
	docs []retrieval.Document
	err  error
}

func (s *stubSearcher) Search(_ context.Context, _ string, _ int) ([]retrieval.Document, error) {
	return s.docs, s.err
}

func toolCallReply(query string) *schema.Message {
	return &schema.Message{
		Role: schema.Assistant,
		ToolCalls: []schema.ToolCall{{
			// No ID on purpose: the post-handler must synthesize one.
			Function: schema.FunctionCall{
				Name:      tools.ToolKnowledgeSearch,
				Arguments: `{"user_query": "` + query + `"}`,
			},
		}},
	}
}

type fixture struct {
	repo     *repo.MemorySessionRepository
	sessions *conversations.Manager
	runner   Runner
}

func buildFixture(t *testing.T, cms *nodes.ChatModels, searcher retrieval.Searcher) *fixture {
	t.Helper()

	store := repo.NewMemorySessionRepository()
	sessions := conversations.NewManager(
		store,
		conversations.NewSummarizer(cms.Summary),
		model.ConversationConfig{SummaryThreshold: 10},
	)

	runnable, err := BuildGraph(context.Background(), &GraphConfig{
		ChatModels: cms,
		Sessions:   sessions,
		SearchTool: tools.NewKnowledgeSearchTool(searcher, model.RetrievalConfig{TopK: 5, SubqueryDelimiter: ";"}),
	})
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}

	return &fixture{
		repo:     store,
		sessions: sessions,
		runner:   &graphRunner{runnable: runnable},
	}
}

func defaultModels(profile, classifier, planner, composer, summary *scriptedModel) *nodes.ChatModels {
	return &nodes.ChatModels{
		Profile:             profile,
		Classifier:          classifier,
		Planner:             planner,
		Composer:            composer,
		Summary:             summary,
		ProfileModelName:    "gemini-2.5-flash-lite",
		ClassifierModelName: "gemini-2.5-flash-lite",
		ResponseModelName:   "gemini-2.5-flash",
		SummaryModelName:    "gemini-2.5-flash-lite",
	}
}

func TestFirstMessageExtractsProfileAndTerminates(t *testing.T) {
	profile := &scriptedModel{replies: []*schema.Message{
		schema.AssistantMessage(`{"client_name": "Анна", "gender": "женский", "response": "Здравствуйте, Анна! расскажите, какая процедура вас интересует?"}`, nil),
	}}
	classifier := &scriptedModel{}
	f := buildFixture(t, defaultModels(profile, classifier, &scriptedModel{}, &scriptedModel{}, &scriptedModel{}), &stubSearcher{})

	reply, err := f.runner.Invoke(context.Background(), model.QueryInput{SessionID: "tg:1", Query: "Здравствуйте, меня зовут Анна"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !strings.Contains(reply, "Анна") {
		t.Errorf("reply = %q, want the greeting", reply)
	}
	if classifier.calls != 0 {
		t.Error("classifier must not run on an identification leaf turn")
	}

	stored, err := f.repo.Load(context.Background(), "tg:1")
	if err != nil || stored == nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if stored.ClientName != "Анна" || stored.Gender != "женский" {
		t.Errorf("profile = %q/%q", stored.ClientName, stored.Gender)
	}
	if len(stored.Messages) != 2 {
		t.Errorf("history len = %d, want 2 (user + greeting)", len(stored.Messages))
	}
}

func TestUnparseableExtractionLeavesProfileUnsetAndNoReply(t *testing.T) {
	profile := &scriptedModel{replies: []*schema.Message{
		schema.AssistantMessage("Здравствуйте! Как к вам можно обращаться?", nil),
	}}
	f := buildFixture(t, defaultModels(profile, &scriptedModel{}, &scriptedModel{}, &scriptedModel{}, &scriptedModel{}), &stubSearcher{})

	reply, err := f.runner.Invoke(context.Background(), model.QueryInput{SessionID: "tg:2", Query: "привет"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if reply != "" {
		t.Errorf("reply = %q, want empty when extraction is unparseable", reply)
	}

	stored, _ := f.repo.Load(context.Background(), "tg:2")
	if stored == nil {
		t.Fatal("session must still be persisted")
	}
	if stored.ClientName != "" || stored.Gender != "" {
		t.Error("profile must stay unset")
	}
	if len(stored.Messages) != 1 {
		t.Errorf("history len = %d, want only the user turn", len(stored.Messages))
	}
}

func seedProfile(t *testing.T, f *fixture, id string) {
	t.Helper()
	s := model.NewSession(id)
	s.SetProfile("Анна", "женский")
	s.Append(schema.UserMessage("меня зовут Анна"))
	s.Append(schema.AssistantMessage("Здравствуйте, Анна! расскажите, какая процедура вас интересует?", nil))
	if err := f.repo.Save(context.Background(), s); err != nil {
		t.Fatalf("seed session: %v", err)
	}
}

func TestRetrievalFlowGrowsHistoryByThree(t *testing.T) {
	classifier := &scriptedModel{replies: []*schema.Message{schema.AssistantMessage("YES", nil)}}
	planner := &scriptedModel{replies: []*schema.Message{toolCallReply("стоимость маникюра")}}
	composer := &scriptedModel{replies: []*schema.Message{
		schema.AssistantMessage("Маникюр стоит 2000 рублей.", nil),
	}}
	searcher := &stubSearcher{docs: []retrieval.Document{{Content: "Маникюр — 2000р", Source: "prices.md"}}}

	f := buildFixture(t, defaultModels(&scriptedModel{}, classifier, planner, composer, &scriptedModel{}), searcher)
	seedProfile(t, f, "tg:3")

	reply, err := f.runner.Invoke(context.Background(), model.QueryInput{SessionID: "tg:3", Query: "сколько стоит маникюр?"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if reply != "Маникюр стоит 2000 рублей." {
		t.Errorf("reply = %q", reply)
	}

	stored, _ := f.repo.Load(context.Background(), "tg:3")
	// Seeded 2 + user turn + tool-invocation + tool-result + final reply.
	if len(stored.Messages) != 6 {
		t.Fatalf("history len = %d, want 6", len(stored.Messages))
	}
	if !model.IsToolInvocation(stored.Messages[3]) {
		t.Error("fourth turn should be the tool invocation")
	}
	if stored.Messages[3].ToolCalls[0].ID == "" {
		t.Error("tool call id must be synthesized when the provider omits it")
	}
	if stored.Messages[4].Role != schema.Tool {
		t.Error("fifth turn should be the tool result")
	}
	if !strings.Contains(stored.Messages[4].Content, "Маникюр — 2000р") {
		t.Errorf("tool result = %q", stored.Messages[4].Content)
	}
	if !stored.NeedsRetrieval {
		t.Error("needs_retrieval should be true after a YES verdict")
	}

	// The composer must have seen the retrieved passages.
	last := composer.inputs[0][len(composer.inputs[0])-1]
	if !strings.Contains(last.Content, "Маникюр — 2000р") {
		t.Errorf("composer input missing passages: %q", last.Content)
	}
}

func TestNoRetrievalPathUsesPlaceholder(t *testing.T) {
	classifier := &scriptedModel{replies: []*schema.Message{schema.AssistantMessage("NO", nil)}}
	planner := &scriptedModel{}
	composer := &scriptedModel{replies: []*schema.Message{
		schema.AssistantMessage("Рада помочь!", nil),
	}}

	f := buildFixture(t, defaultModels(&scriptedModel{}, classifier, planner, composer, &scriptedModel{}), &stubSearcher{})
	seedProfile(t, f, "tg:4")

	reply, err := f.runner.Invoke(context.Background(), model.QueryInput{SessionID: "tg:4", Query: "спасибо!"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if reply != "Рада помочь!" {
		t.Errorf("reply = %q", reply)
	}
	if planner.calls != 0 {
		t.Error("planner must not run when retrieval is not needed")
	}

	last := composer.inputs[0][len(composer.inputs[0])-1]
	if !strings.Contains(last.Content, model.NoRetrievalPlaceholder) {
		t.Errorf("composer input missing placeholder: %q", last.Content)
	}

	stored, _ := f.repo.Load(context.Background(), "tg:4")
	if len(stored.Messages) != 4 {
		t.Errorf("history len = %d, want 4 (seeded 2 + user + reply)", len(stored.Messages))
	}
	if stored.NeedsRetrieval {
		t.Error("needs_retrieval should be false after a NO verdict")
	}
}

func TestClassifierFailureDefaultsToRetrieval(t *testing.T) {
	classifier := &scriptedModel{errs: []error{errors.New("model down")}}
	planner := &scriptedModel{replies: []*schema.Message{toolCallReply("педикюр")}}
	composer := &scriptedModel{replies: []*schema.Message{
		schema.AssistantMessage("Педикюр стоит 2500 рублей.", nil),
	}}
	searcher := &stubSearcher{docs: []retrieval.Document{{Content: "Педикюр — 2500р", Source: "prices.md"}}}

	f := buildFixture(t, defaultModels(&scriptedModel{}, classifier, planner, composer, &scriptedModel{}), searcher)
	seedProfile(t, f, "tg:5")

	reply, err := f.runner.Invoke(context.Background(), model.QueryInput{SessionID: "tg:5", Query: "сколько стоит педикюр?"})
	if err != nil {
		t.Fatalf("classifier failure must not abort the turn: %v", err)
	}
	if reply != "Педикюр стоит 2500 рублей." {
		t.Errorf("reply = %q", reply)
	}
	if planner.calls != 1 {
		t.Error("planner should run on the fail-safe retrieval default")
	}
}

func TestRetrievalErrorStillProducesReply(t *testing.T) {
	classifier := &scriptedModel{replies: []*schema.Message{schema.AssistantMessage("YES", nil)}}
	planner := &scriptedModel{replies: []*schema.Message{toolCallReply("массаж")}}
	composer := &scriptedModel{replies: []*schema.Message{
		schema.AssistantMessage("К сожалению, сейчас не могу уточнить детали.", nil),
	}}
	searcher := &stubSearcher{err: errors.New("qdrant down")}

	f := buildFixture(t, defaultModels(&scriptedModel{}, classifier, planner, composer, &scriptedModel{}), searcher)
	seedProfile(t, f, "tg:6")

	_, err := f.runner.Invoke(context.Background(), model.QueryInput{SessionID: "tg:6", Query: "а массаж есть?"})
	if err != nil {
		t.Fatalf("retrieval failure must not abort the turn: %v", err)
	}

	last := composer.inputs[0][len(composer.inputs[0])-1]
	if !strings.Contains(last.Content, tools.RetrievalFailureText) {
		t.Errorf("composer input should carry the failure literal: %q", last.Content)
	}
}

func TestPlannerPlainAnswerSkipsRetrieval(t *testing.T) {
	classifier := &scriptedModel{replies: []*schema.Message{schema.AssistantMessage("YES", nil)}}
	planner := &scriptedModel{replies: []*schema.Message{
		schema.AssistantMessage("Уточните, пожалуйста, какая процедура вас интересует?", nil),
	}}
	composer := &scriptedModel{}

	f := buildFixture(t, defaultModels(&scriptedModel{}, classifier, planner, composer, &scriptedModel{}), &stubSearcher{})
	seedProfile(t, f, "tg:7")

	reply, err := f.runner.Invoke(context.Background(), model.QueryInput{SessionID: "tg:7", Query: "а что вообще есть?"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if reply != "Уточните, пожалуйста, какая процедура вас интересует?" {
		t.Errorf("reply = %q", reply)
	}
	if composer.calls != 0 {
		t.Error("composer must not run when the planner already answered")
	}
}

func TestLifecycleResetAfterThreshold(t *testing.T) {
	// Seed 9 finalized replies; this turn's reply is the 10th.
	s := model.NewSession("tg:8")
	s.SetProfile("Анна", "женский")
	for i := 0; i < 9; i++ {
		s.Append(schema.UserMessage("вопрос"))
		s.Append(schema.AssistantMessage("ответ", nil))
	}

	classifier := &scriptedModel{replies: []*schema.Message{schema.AssistantMessage("NO", nil)}}
	composer := &scriptedModel{replies: []*schema.Message{
		schema.AssistantMessage("Хорошего дня!", nil),
	}}
	summary := &scriptedModel{replies: []*schema.Message{
		schema.AssistantMessage("Предыдущий диалог: Анна спрашивала про услуги.", nil),
	}}

	f := buildFixture(t, defaultModels(&scriptedModel{}, classifier, &scriptedModel{}, composer, summary), &stubSearcher{})
	if err := f.repo.Save(context.Background(), s); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	reply, err := f.runner.Invoke(context.Background(), model.QueryInput{SessionID: "tg:8", Query: "спасибо, до свидания"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if reply != "Хорошего дня!" {
		t.Errorf("reply = %q", reply)
	}

	stored, _ := f.repo.Load(context.Background(), "tg:8")
	if len(stored.Messages) != 2 {
		t.Fatalf("post-reset history len = %d, want 2", len(stored.Messages))
	}
	if !stored.HasSummarySeed() {
		t.Errorf("first turn should be the summary seed: %q", stored.Messages[0].Content)
	}
	if stored.Messages[1].Content != "Хорошего дня!" {
		t.Errorf("second turn should be the last reply: %q", stored.Messages[1].Content)
	}
	if stored.ClientName != "Анна" || stored.Gender != "женский" {
		t.Error("profile must survive the reset")
	}
	if !stored.NeedsRetrieval {
		t.Error("retrieval flag must return to its default after reset")
	}
}
