package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/iteira-dev/consult-agent/internal/agent/model"
	"github.com/iteira-dev/consult-agent/internal/retrieval"
	logx "github.com/iteira-dev/consult-agent/pkg/logger"
)

// ToolKnowledgeSearch is the tool name the planner model is told to call.
const ToolKnowledgeSearch = "knowledge_search"

// RetrievalFailureText is returned as the tool result when search fails. The
// composer reads it like any other passage, so a broken vector store degrades
// to an honest "couldn't find it" reply instead of aborting the turn.
const RetrievalFailureText = "Произошла ошибка при поиске документов."

// KnowledgeSearchInput is the tool-call argument contract.
type KnowledgeSearchInput struct {
	UserQuery string `json:"user_query"`
}

// KnowledgeSearchTool searches the salon knowledge base. It implements
// tool.InvokableTool directly so the tool result is the formatted passage
// text itself, not a JSON envelope around it.
type KnowledgeSearchTool struct {
	searcher  retrieval.Searcher
	topK      int
	delimiter string
}

func NewKnowledgeSearchTool(searcher retrieval.Searcher, cfg model.RetrievalConfig) *KnowledgeSearchTool {
	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	delimiter := cfg.SubqueryDelimiter
	if delimiter == "" {
		delimiter = ";"
	}
	return &KnowledgeSearchTool{searcher: searcher, topK: topK, delimiter: delimiter}
}

func (t *KnowledgeSearchTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: ToolKnowledgeSearch,
		Desc: "Поиск информации об услугах, ценах, процедурах и мастерах салона красоты в базе знаний. Несколько независимых подзапросов можно перечислить через точку с запятой.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"user_query": {
				Type:     "string",
				Desc:     "Поисковый запрос по вопросу клиента. Несколько подзапросов разделяются символом ';'.",
				Required: true,
			},
		}),
	}, nil
}

// InvokableRun executes the search. The compound query is split into
// sub-queries, each searched independently; per-sub-query misses produce a
// "Нет информации" marker so the composer can answer honestly per topic.
func (t *KnowledgeSearchTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var in KnowledgeSearchInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &in); err != nil {
		logx.Warn().Err(err).Str("arguments", argumentsInJSON).Msg("malformed knowledge_search arguments")
		return RetrievalFailureText, nil
	}

	subqueries := splitSubqueries(in.UserQuery, t.delimiter)
	if len(subqueries) == 0 {
		return RetrievalFailureText, nil
	}

	results := make([]string, 0, len(subqueries))
	for _, subquery := range subqueries {
		docs, err := t.searcher.Search(ctx, subquery, t.topK)
		if err != nil {
			logx.Error().Err(err).Str("subquery", subquery).Msg("knowledge base search failed")
			return RetrievalFailureText, nil
		}
		results = append(results, formatPassages(subquery, docs))
	}

	return strings.Join(results, "\n\n"), nil
}

func splitSubqueries(query, delimiter string) []string {
	parts := strings.Split(query, delimiter)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func formatPassages(subquery string, docs []retrieval.Document) string {
	if len(docs) == 0 {
		return fmt.Sprintf("Нет информации по запросу: %s", subquery)
	}
	blocks := make([]string, 0, len(docs))
	for _, doc := range docs {
		source := doc.Source
		if source == "" {
			source = "N/A"
		}
		blocks = append(blocks, fmt.Sprintf("[Source: %s]\n%s", source, doc.Content))
	}
	return strings.Join(blocks, "\n\n")
}

var _ tool.InvokableTool = (*KnowledgeSearchTool)(nil)
