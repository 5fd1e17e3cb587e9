// Package graph assembles the consultation state machine: session gate,
// profile identification, retrieval-necessity classification, knowledge
// retrieval, response composition and session lifecycle, compiled into one
// Eino runnable.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/iteira-dev/consult-agent/internal/agent/graph/conversations"
	"github.com/iteira-dev/consult-agent/internal/agent/graph/nodes"
	"github.com/iteira-dev/consult-agent/internal/agent/graph/observers"
	"github.com/iteira-dev/consult-agent/internal/agent/graph/tools"
	"github.com/iteira-dev/consult-agent/internal/agent/model"
	"github.com/iteira-dev/consult-agent/internal/retrieval"
	logx "github.com/iteira-dev/consult-agent/pkg/logger"
)

// Runner executes the compiled graph for one inbound message and returns the
// reply text. An empty reply means the turn produced no assistant message.
type Runner interface {
	Invoke(ctx context.Context, in model.QueryInput) (string, error)
}

// Config holds everything needed to compose the full consultation graph
// end-to-end. This is a convenience layer over GraphConfig that also
// constructs ChatModels and the session Manager.
type Config struct {
	APIKey          string
	BaseURL         string
	ProfileModel    model.ProfileModelConfig
	ClassifierModel model.ClassifierModelConfig
	ResponseModel   model.ResponseModelConfig
	SummaryModel    model.SummaryModelConfig
	Conversation    model.ConversationConfig
	Retrieval       model.RetrievalConfig
	SessionRepo     model.SessionRepository
	Searcher        retrieval.Searcher
}

// GraphConfig holds the prebuilt collaborators the graph wires together.
type GraphConfig struct {
	ChatModels   *nodes.ChatModels
	Sessions     *conversations.Manager
	SearchTool   tool.InvokableTool
	ToolMaxCalls int
}

// GraphBuilder handles the construction of the consultation graph.
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[model.QueryInput, *schema.Message]
}

type graphRunner struct {
	runnable compose.Runnable[model.QueryInput, *schema.Message]
}

func (r *graphRunner) Invoke(ctx context.Context, in model.QueryInput) (string, error) {
	out, err := r.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		return "", err
	}
	if out == nil {
		return "", nil
	}
	return out.Content, nil
}

// Components bundles what BuildConsultationGraph constructs. Callers reuse
// the session manager for recovery/clearing and the chat models for
// moderation outside the graph.
type Components struct {
	Runner   Runner
	Sessions *conversations.Manager
	Models   *nodes.ChatModels
}

// BuildConsultationGraph composes chat models, the session manager and the
// knowledge-search tool, builds the graph, and returns the assembled
// components.
func BuildConsultationGraph(ctx context.Context, cfg Config) (*Components, error) {
	if cfg.SessionRepo == nil {
		return nil, fmt.Errorf("session repo is nil")
	}
	if cfg.Searcher == nil {
		return nil, fmt.Errorf("searcher is nil")
	}

	cms, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		APIKey:           cfg.APIKey,
		BaseURL:          cfg.BaseURL,
		ProfileConfig:    &cfg.ProfileModel,
		ClassifierConfig: &cfg.ClassifierModel,
		ResponseConfig:   &cfg.ResponseModel,
		SummaryConfig:    &cfg.SummaryModel,
	})
	if err != nil {
		return nil, err
	}

	sessions := conversations.NewManager(
		cfg.SessionRepo,
		conversations.NewSummarizer(cms.Summary),
		cfg.Conversation,
	)

	searchTool := tools.NewKnowledgeSearchTool(cfg.Searcher, cfg.Retrieval)

	runnable, err := BuildGraph(ctx, &GraphConfig{
		ChatModels:   cms,
		Sessions:     sessions,
		SearchTool:   searchTool,
		ToolMaxCalls: cfg.Conversation.ToolMaxCalls,
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("Consultation graph built successfully")
	return &Components{
		Runner:   &graphRunner{runnable: runnable},
		Sessions: sessions,
		Models:   cms,
	}, nil
}

// BuildGraph constructs and returns the compiled consultation graph.
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	cms := config.ChatModels
	if cms == nil || cms.Profile == nil || cms.Classifier == nil || cms.Planner == nil || cms.Composer == nil {
		return nil, fmt.Errorf("chat models are not properly initialized")
	}
	if config.Sessions == nil {
		return nil, fmt.Errorf("session manager is nil")
	}
	if config.SearchTool == nil {
		return nil, fmt.Errorf("search tool is nil")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.QueryInput, *schema.Message](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}

	if err := builder.setupTools(ctx); err != nil {
		return nil, err
	}

	builder.addNodes()
	builder.addEdges()

	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// setupTools binds the knowledge-search tool to the planner model and adds
// the executor node.
func (b *GraphBuilder) setupTools(ctx context.Context) error {
	info, err := b.config.SearchTool.Info(ctx)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to get search tool info")
		return fmt.Errorf("failed to get search tool info: %w", err)
	}

	if err := b.config.ChatModels.BindSearchTool([]*schema.ToolInfo{info}); err != nil {
		return err
	}

	toolsNode, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:               []tool.BaseTool{b.config.SearchTool},
		ExecuteSequentially: true,
		UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
			// A hallucinated tool name degrades to the retrieval-failure text
			// so the composer can still answer honestly.
			logx.Warn().
				Str("tool_name", name).
				Str("arguments", input).
				Msg("Unknown tool call; returning fallback result")
			return tools.RetrievalFailureText, nil
		},
		ToolArgumentsHandler: func(ctx context.Context, name, arguments string) (string, error) {
			// Best-effort sanitize; never fail hard here.
			var m map[string]any
			if err := json.Unmarshal([]byte(arguments), &m); err != nil {
				return arguments, nil
			}
			if v, ok := m["user_query"]; ok {
				switch vv := v.(type) {
				case string:
					m["user_query"] = strings.TrimSpace(vv)
				default:
					m["user_query"] = strings.TrimSpace(fmt.Sprint(v))
				}
			}
			sanitized, err := json.Marshal(m)
			if err != nil {
				return arguments, nil
			}
			return string(sanitized), nil
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Failed to create tools node")
		return fmt.Errorf("failed to create tools node: %w", err)
	}

	b.graph.AddToolsNode(nodes.NodeToolExecutor, toolsNode,
		compose.WithStatePreHandler(nodes.NewToolExecutorPreHandler(b.config.ToolMaxCalls)),
		compose.WithStatePostHandler(nodes.NewToolExecutorPostHandler()),
	)

	return nil
}

// addNodes adds all processing nodes to the graph.
func (b *GraphBuilder) addNodes() {
	cms := b.config.ChatModels

	b.graph.AddLambdaNode(nodes.NodeSessionGate,
		nodes.NewSessionGateNode(b.config.Sessions),
		compose.WithStatePreHandler(nodes.NewSessionGatePreHandler()),
	)

	b.graph.AddLambdaNode(nodes.NodeIdentifyPrompt, nodes.NewIdentifyPromptNode())

	b.graph.AddChatModelNode(nodes.NodeIdentifyModel, cms.Profile,
		compose.WithStatePostHandler(nodes.NewIdentifyModelPostHandler(cms.ProfileModelName)),
	)

	b.graph.AddLambdaNode(nodes.NodeIdentifyParser, nodes.NewIdentifyParserNode())

	b.graph.AddLambdaNode(nodes.NodeClassifier, nodes.NewClassifierNode(cms.Classifier))

	b.graph.AddLambdaNode(nodes.NodePlannerPrompt, nodes.NewPlannerPromptNode())

	b.graph.AddChatModelNode(nodes.NodePlannerModel, cms.Planner,
		compose.WithStatePostHandler(nodes.NewPlannerModelPostHandler(cms.ResponseModelName)),
	)

	b.graph.AddLambdaNode(nodes.NodeToolCollect, nodes.NewToolCollectNode())

	b.graph.AddLambdaNode(nodes.NodeComposePrompt, nodes.NewComposePromptNode())

	b.graph.AddChatModelNode(nodes.NodeComposeModel, cms.Composer,
		compose.WithStatePostHandler(nodes.NewComposeModelPostHandler(cms.ResponseModelName)),
	)

	b.graph.AddLambdaNode(nodes.NodeLifecycle, nodes.NewLifecycleNode(b.config.Sessions))
}

// addEdges creates the unconditional flow connections between nodes.
func (b *GraphBuilder) addEdges() {
	edges := [][2]string{
		{compose.START, nodes.NodeSessionGate},
		{nodes.NodeIdentifyPrompt, nodes.NodeIdentifyModel},
		{nodes.NodeIdentifyModel, nodes.NodeIdentifyParser},
		{nodes.NodePlannerPrompt, nodes.NodePlannerModel},
		{nodes.NodeToolExecutor, nodes.NodeToolCollect},
		{nodes.NodeToolCollect, nodes.NodeComposePrompt},
		{nodes.NodeComposePrompt, nodes.NodeComposeModel},
		{nodes.NodeComposeModel, nodes.NodeLifecycle},
		{nodes.NodeLifecycle, compose.END},
	}

	for _, edge := range edges {
		b.graph.AddEdge(edge[0], edge[1])
	}
}

// addBranches creates the conditional routing branches.
func (b *GraphBuilder) addBranches() error {
	identificationBranch := compose.NewGraphBranch(
		nodes.NewIdentificationCondition(),
		map[string]bool{
			nodes.NodeIdentifyPrompt: true,
			nodes.NodeClassifier:     true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeSessionGate, identificationBranch); err != nil {
		return fmt.Errorf("error adding identification branch: %w", err)
	}

	postIdentificationBranch := compose.NewGraphBranch(
		nodes.NewPostIdentificationCondition(),
		map[string]bool{
			nodes.NodeLifecycle:  true,
			nodes.NodeClassifier: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeIdentifyParser, postIdentificationBranch); err != nil {
		return fmt.Errorf("error adding post-identification branch: %w", err)
	}

	retrievalBranch := compose.NewGraphBranch(
		nodes.NewRetrievalCondition(),
		map[string]bool{
			nodes.NodePlannerPrompt: true,
			nodes.NodeComposePrompt: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeClassifier, retrievalBranch); err != nil {
		return fmt.Errorf("error adding retrieval branch: %w", err)
	}

	toolBranch := compose.NewGraphBranch(
		nodes.NewToolExecutorCondition(),
		map[string]bool{
			nodes.NodeToolExecutor: true,
			nodes.NodeLifecycle:    true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodePlannerModel, toolBranch); err != nil {
		return fmt.Errorf("error adding tool branch: %w", err)
	}

	return nil
}

// compile finalizes and compiles the graph.
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	// Limit total run steps to avoid infinite loops in branching or tool retries.
	maxSteps := 10 + b.config.ToolMaxCalls*2
	if maxSteps < 20 {
		maxSteps = 20
	}

	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxSteps))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}
