package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/iteira-dev/consult-agent/internal/agent/model"
	"github.com/iteira-dev/consult-agent/internal/retrieval"
)

type fakeSearcher struct {
	byQuery map[string][]retrieval.Document
	err     error
	queries []string
	topK    int
}

func (f *fakeSearcher) Search(_ context.Context, query string, topK int) ([]retrieval.Document, error) {
	f.queries = append(f.queries, query)
	f.topK = topK
	if f.err != nil {
		return nil, f.err
	}
	return f.byQuery[query], nil
}

func newTool(s retrieval.Searcher) *KnowledgeSearchTool {
	return NewKnowledgeSearchTool(s, model.RetrievalConfig{TopK: 5, SubqueryDelimiter: ";"})
}

func TestKnowledgeSearchFormatsPassages(t *testing.T) {
	s := &fakeSearcher{byQuery: map[string][]retrieval.Document{
		"стоимость маникюра": {
			{Content: "Маникюр классический — 2000р", Source: "prices.md"},
			{Content: "Маникюр аппаратный — 2500р", Source: ""},
		},
	}}

	out, err := newTool(s).InvokableRun(context.Background(), `{"user_query": "стоимость маникюра"}`)
	if err != nil {
		t.Fatalf("InvokableRun: %v", err)
	}
	if !strings.Contains(out, "[Source: prices.md]\nМаникюр классический — 2000р") {
		t.Errorf("missing sourced passage in %q", out)
	}
	if !strings.Contains(out, "[Source: N/A]") {
		t.Errorf("empty source should fall back to N/A: %q", out)
	}
	if s.topK != 5 {
		t.Errorf("topK = %d, want 5", s.topK)
	}
}

func TestKnowledgeSearchSplitsSubqueries(t *testing.T) {
	s := &fakeSearcher{byQuery: map[string][]retrieval.Document{
		"маникюр": {{Content: "про маникюр", Source: "a"}},
	}}

	out, err := newTool(s).InvokableRun(context.Background(), `{"user_query": " маникюр ; педикюр ; "}`)
	if err != nil {
		t.Fatalf("InvokableRun: %v", err)
	}
	if len(s.queries) != 2 || s.queries[0] != "маникюр" || s.queries[1] != "педикюр" {
		t.Fatalf("queries = %v, want [маникюр педикюр]", s.queries)
	}
	if !strings.Contains(out, "про маникюр") {
		t.Errorf("hit missing: %q", out)
	}
	if !strings.Contains(out, "Нет информации по запросу: педикюр") {
		t.Errorf("miss marker absent: %q", out)
	}
}

func TestKnowledgeSearchErrorYieldsLiteral(t *testing.T) {
	s := &fakeSearcher{err: errors.New("qdrant down")}
	out, err := newTool(s).InvokableRun(context.Background(), `{"user_query": "маникюр"}`)
	if err != nil {
		t.Fatalf("search failure must not propagate as error, got %v", err)
	}
	if out != RetrievalFailureText {
		t.Errorf("out = %q, want failure literal", out)
	}
}

func TestKnowledgeSearchBadArguments(t *testing.T) {
	s := &fakeSearcher{}
	out, err := newTool(s).InvokableRun(context.Background(), `{"user_query": `)
	if err != nil {
		t.Fatalf("malformed args must not propagate as error, got %v", err)
	}
	if out != RetrievalFailureText {
		t.Errorf("out = %q, want failure literal", out)
	}
	if len(s.queries) != 0 {
		t.Errorf("searcher should not be called on bad args")
	}
}

func TestKnowledgeSearchEmptyQuery(t *testing.T) {
	out, err := newTool(&fakeSearcher{}).InvokableRun(context.Background(), `{"user_query": " ; ; "}`)
	if err != nil {
		t.Fatalf("InvokableRun: %v", err)
	}
	if out != RetrievalFailureText {
		t.Errorf("out = %q, want failure literal for an all-blank query", out)
	}
}
