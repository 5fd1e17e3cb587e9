package nodes

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/iteira-dev/consult-agent/internal/agent/graph/conversations"
	"github.com/iteira-dev/consult-agent/internal/agent/graph/parsers"
	"github.com/iteira-dev/consult-agent/internal/agent/graph/prompts"
	"github.com/iteira-dev/consult-agent/internal/agent/model"
	logx "github.com/iteira-dev/consult-agent/pkg/logger"
)

// Graph node names.
const (
	NodeSessionGate    = "SessionGate"
	NodeIdentifyPrompt = "IdentificationPrompt"
	NodeIdentifyModel  = "IdentificationModel"
	NodeIdentifyParser = "IdentificationParser"
	NodeClassifier     = "RetrievalClassifier"
	NodePlannerPrompt  = "RetrievalPlannerPrompt"
	NodePlannerModel   = "RetrievalPlannerModel"
	NodeToolExecutor   = "KnowledgeSearchExecutor"
	NodeToolCollect    = "RetrievalCollector"
	NodeComposePrompt  = "ConsultationPrompt"
	NodeComposeModel   = "ConsultationModel"
	NodeLifecycle      = "SessionLifecycle"
)

// NewSessionGatePreHandler resets per-turn counters before each invocation.
func NewSessionGatePreHandler() func(context.Context, model.QueryInput, *model.AppState) (model.QueryInput, error) {
	return func(ctx context.Context, in model.QueryInput, s *model.AppState) (model.QueryInput, error) {
		if s.SessionID == "" {
			s.SessionID = in.SessionID
		}
		s.Retrieved = ""
		s.ToolCallCount = 0
		s.ToolCallLimitReached = false
		s.ToolCallIDSeq = 0
		s.TotalCostUSD = 0
		return in, nil
	}
}

// NewSessionGateNode loads (or creates) the session, appends the inbound user
// turn and hands that turn on. Everything downstream reads the session from
// state.
func NewSessionGateNode(mgr *conversations.Manager) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, input model.QueryInput) (*schema.Message, error) {
		if strings.TrimSpace(input.Query) == "" {
			return nil, fmt.Errorf("empty query for session %s", input.SessionID)
		}

		session, err := mgr.LoadOrCreate(ctx, input.SessionID)
		if err != nil {
			return nil, fmt.Errorf("load session: %w", err)
		}

		userTurn := schema.UserMessage(input.Query)
		session.Append(userTurn)

		err = compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			state.Session = session
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("store session in state: %w", err)
		}
		return userTurn, nil
	})
}

// NewIdentificationCondition routes a new turn either into profile
// extraction or straight to classification when the profile is already
// known.
func NewIdentificationCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, _ *schema.Message) (string, error) {
		var complete bool
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			complete = state.Session != nil && state.Session.ProfileComplete()
			return nil
		})
		if err != nil {
			return "", err
		}
		if complete {
			logx.Debug().Msg("Profile known - skipping identification")
			return NodeClassifier, nil
		}
		return NodeIdentifyPrompt, nil
	}
}

// NewIdentifyPromptNode builds the profile-extraction prompt: system
// instructions, the filtered chat history, and the caller's latest utterance.
func NewIdentifyPromptNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, userTurn *schema.Message) ([]*schema.Message, error) {
		system, err := prompts.RenderIdentificationSystem(ctx)
		if err != nil {
			return nil, fmt.Errorf("render identification prompt: %w", err)
		}

		var history []*schema.Message
		err = compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			if state.Session == nil {
				return fmt.Errorf("missing session in state")
			}
			history = state.Session.ChatTurns()
			return nil
		})
		if err != nil {
			return nil, err
		}

		// The inbound user turn is already the history tail; the extractor
		// additionally receives it in its dedicated wrapper.
		messages := make([]*schema.Message, 0, len(history)+2)
		messages = append(messages, schema.SystemMessage(system))
		messages = append(messages, history...)
		messages = append(messages, prompts.IdentificationUserMessage(userTurn.Content))
		return messages, nil
	})
}

// NewIdentifyParserNode decodes the extractor's JSON, merges the profile into
// the session and appends the greeting reply. A malformed response leaves the
// profile untouched and appends nothing, ending the turn without a reply.
func NewIdentifyParserNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, resp *schema.Message) (*schema.Message, error) {
		result, err := parsers.ParseProfile(resp.Content)

		var out *schema.Message
		stateErr := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			if state.Session == nil {
				return fmt.Errorf("missing session in state")
			}
			if err != nil {
				logx.Warn().Err(err).Str("session_id", state.SessionID).Msg("profile extraction not parseable")
				out = resp
				return nil
			}

			state.Session.SetProfile(result.ClientName, result.Gender)
			if result.Response != "" {
				reply := schema.AssistantMessage(result.Response, nil)
				state.Session.Append(reply)
				out = reply
			} else {
				out = resp
			}
			return nil
		})
		if stateErr != nil {
			return nil, stateErr
		}
		return out, nil
	})
}

// NewPostIdentificationCondition decides whether the identification turn is a
// leaf. The turn ends when the profile is still incomplete or when the
// extractor already replied (greeting or the fixed clarifying question);
// otherwise classification proceeds.
func NewPostIdentificationCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, _ *schema.Message) (string, error) {
		var terminal bool
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			if state.Session == nil {
				terminal = true
				return nil
			}
			if !state.Session.ProfileComplete() {
				terminal = true
				return nil
			}
			last := state.Session.LastMessage()
			terminal = last != nil && last.Role == schema.Assistant
			return nil
		})
		if err != nil {
			return "", err
		}
		if terminal {
			logx.Debug().Msg("Identification turn is terminal")
			return NodeLifecycle, nil
		}
		return NodeClassifier, nil
	}
}

// NewClassifierNode decides whether this turn needs knowledge retrieval. The
// model call happens inside the lambda so every failure mode can collapse to
// the fail-safe default (retrieve) without aborting the turn.
func NewClassifierNode(classifier einomodel.BaseChatModel) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, userTurn *schema.Message) (*schema.Message, error) {
		needs := true

		system, err := prompts.RenderNeedsRetrievalSystem(ctx)
		if err == nil {
			out, genErr := classifier.Generate(ctx, []*schema.Message{
				schema.SystemMessage(system),
				schema.UserMessage(userTurn.Content),
			})
			if genErr != nil || out == nil {
				logx.Error().Err(genErr).Msg("retrieval classifier failed; defaulting to retrieval")
			} else {
				needs = parsers.ParseClassifierVerdict(out.Content)
			}
		} else {
			logx.Error().Err(err).Msg("classifier prompt render failed; defaulting to retrieval")
		}

		stateErr := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			if state.Session == nil {
				return fmt.Errorf("missing session in state")
			}
			state.Session.NeedsRetrieval = needs
			return nil
		})
		if stateErr != nil {
			return nil, stateErr
		}

		logx.Debug().Bool("needs_retrieval", needs).Msg("Classified inbound message")
		return userTurn, nil
	})
}

// NewRetrievalCondition routes to the planner when retrieval is needed and
// straight to composition otherwise.
func NewRetrievalCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, _ *schema.Message) (string, error) {
		var needs bool
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			needs = state.Session != nil && state.Session.NeedsRetrieval
			return nil
		})
		if err != nil {
			return "", err
		}
		if needs {
			return NodePlannerPrompt, nil
		}
		return NodeComposePrompt, nil
	}
}

// NewPlannerPromptNode builds the prompt that drives the forced retrieval
// call: system instructions, filtered history, and the fixed instruction to
// search.
func NewPlannerPromptNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *schema.Message) ([]*schema.Message, error) {
		system, err := prompts.RenderRetrievalSystem(ctx)
		if err != nil {
			return nil, fmt.Errorf("render retrieval prompt: %w", err)
		}

		var history []*schema.Message
		err = compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			if state.Session == nil {
				return fmt.Errorf("missing session in state")
			}
			history = state.Session.ChatTurns()
			return nil
		})
		if err != nil {
			return nil, err
		}

		messages := make([]*schema.Message, 0, len(history)+2)
		messages = append(messages, schema.SystemMessage(system))
		messages = append(messages, history...)
		messages = append(messages, schema.UserMessage(prompts.PlannerUserInstruction))
		return messages, nil
	})
}

// NewPlannerModelPostHandler accounts usage, normalizes tool-call IDs (the
// provider sometimes omits them) and appends the planner's output to the
// transcript: a tool-invocation turn when it called the tool, a final reply
// when it answered in plain text.
func NewPlannerModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		accountUsage(out, state, NodePlannerModel, modelName)

		if out == nil {
			return nil, fmt.Errorf("planner model returned nil message")
		}

		for i := range out.ToolCalls {
			if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
				state.ToolCallIDSeq++
				out.ToolCalls[i].ID = fmt.Sprintf("call_%d", state.ToolCallIDSeq)
			}
		}

		if state.Session != nil {
			state.Session.Append(out)
		}

		if len(out.ToolCalls) > 0 {
			logx.Debug().Int("tool_count", len(out.ToolCalls)).Msg("Planner requested knowledge search")
		} else {
			logx.Debug().Msg("Planner answered without retrieval")
		}
		return out, nil
	}
}

// NewToolExecutorCondition routes planner output to the tool executor or, if
// there are no tool calls (or the per-turn cap is spent), on to lifecycle.
func NewToolExecutorCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, input *schema.Message) (string, error) {
		var limitReached bool
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			limitReached = state.ToolCallLimitReached
			return nil
		})
		if err != nil {
			return "", err
		}

		if limitReached {
			logx.Warn().Msg("Tool call limit reached - finishing turn")
			return NodeLifecycle, nil
		}
		if len(input.ToolCalls) > 0 {
			return NodeToolExecutor, nil
		}
		return NodeLifecycle, nil
	}
}

// NewToolExecutorPreHandler counts executed searches against the per-turn cap.
func NewToolExecutorPreHandler(maxToolCalls int) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, in *schema.Message, state *model.AppState) (*schema.Message, error) {
		if incrementToolCallAndCheck(state, maxToolCalls) {
			logx.Warn().
				Int("tool_call_count", state.ToolCallCount).
				Str("session_id", state.SessionID).
				Msg("Tool call limit exceeded - flagging and continuing")
		}
		return in, nil
	}
}

// NewToolExecutorPostHandler appends tool results to the transcript and
// captures the combined passage text for the composer.
func NewToolExecutorPostHandler() func(context.Context, []*schema.Message, *model.AppState) ([]*schema.Message, error) {
	return func(ctx context.Context, out []*schema.Message, state *model.AppState) ([]*schema.Message, error) {
		var collected []string
		for _, msg := range out {
			if msg == nil {
				continue
			}
			if state.Session != nil {
				state.Session.Append(msg)
			}
			if strings.TrimSpace(msg.Content) != "" {
				collected = append(collected, msg.Content)
			}
		}
		state.Retrieved = strings.Join(collected, "\n\n")
		return out, nil
	}
}

// NewToolCollectNode narrows the tool executor's output back to a single
// message so the composer prompt node has one predecessor shape.
func NewToolCollectNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, results []*schema.Message) (*schema.Message, error) {
		if len(results) == 0 {
			return nil, fmt.Errorf("tool executor returned no results")
		}
		return results[len(results)-1], nil
	})
}

// NewComposePromptNode builds the final-response prompt from the session
// profile, the filtered history, and whatever retrieval produced (or the
// placeholder when none was needed).
func NewComposePromptNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *schema.Message) ([]*schema.Message, error) {
		var (
			history   []*schema.Message
			userQuery string
			retrieved string
			name      string
			gender    string
		)
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			if state.Session == nil {
				return fmt.Errorf("missing session in state")
			}
			history = state.Session.ChatTurns()
			userQuery = state.Session.LastUserContent()
			retrieved = state.Retrieved
			name = state.Session.ClientName
			gender = state.Session.Gender
			return nil
		})
		if err != nil {
			return nil, err
		}

		if retrieved == "" {
			retrieved = model.NoRetrievalPlaceholder
		}

		system, err := prompts.RenderConsultationSystem(ctx, name, gender)
		if err != nil {
			return nil, fmt.Errorf("render consultation prompt: %w", err)
		}

		messages := make([]*schema.Message, 0, len(history)+2)
		messages = append(messages, schema.SystemMessage(system))
		messages = append(messages, history...)
		messages = append(messages, prompts.ConsultationUserMessage(userQuery, retrieved))
		return messages, nil
	})
}

// NewComposeModelPostHandler accounts usage and appends the final reply to
// the transcript.
func NewComposeModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		accountUsage(out, state, NodeComposeModel, modelName)

		if out == nil {
			return nil, fmt.Errorf("compose model returned nil message")
		}
		// The composer has no tools bound; anything it returns is the reply.
		out.ToolCalls = nil
		if state.Session != nil {
			state.Session.Append(out)
		}
		logx.Debug().Str("session_id", state.SessionID).Msg("Final reply composed")
		return out, nil
	}
}

// NewIdentifyModelPostHandler accounts usage for the extraction model.
func NewIdentifyModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		accountUsage(out, state, NodeIdentifyModel, modelName)
		return out, nil
	}
}

// NewLifecycleNode persists the session, first resetting it around a summary
// when the transcript has crossed the threshold. Its output is the final
// assistant reply of the turn (empty content when the turn produced none).
func NewLifecycleNode(mgr *conversations.Manager) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in *schema.Message) (*schema.Message, error) {
		var reply *schema.Message

		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			if state.Session == nil {
				return fmt.Errorf("missing session in state")
			}

			if mgr.ShouldReset(state.Session) {
				state.Session = mgr.Reset(ctx, state.Session)
			}
			if err := mgr.Persist(ctx, state.Session); err != nil {
				return fmt.Errorf("persist session: %w", err)
			}

			last := state.Session.LastMessage()
			if model.IsFinalAssistant(last) {
				reply = last
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		if reply == nil {
			// No reply produced this turn (e.g. unparseable extraction).
			reply = schema.AssistantMessage("", nil)
		}
		return reply, nil
	})
}

// accountUsage computes and logs per-call cost, accumulating the running
// total in state and exposing it in the message Extra.
func accountUsage(out *schema.Message, state *model.AppState, node, modelName string) {
	if out == nil || out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return
	}
	pricing := model.ResolvePricing(modelName)
	inC, outC, totalC := model.ComputeCost(out.ResponseMeta.Usage, pricing)
	if out.Extra == nil {
		out.Extra = map[string]any{}
	}
	out.Extra["usage_cost"] = map[string]any{
		"currency":          "USD",
		"model":             modelName,
		"prompt_tokens":     out.ResponseMeta.Usage.PromptTokens,
		"completion_tokens": out.ResponseMeta.Usage.CompletionTokens,
		"total_tokens":      out.ResponseMeta.Usage.TotalTokens,
		"input_cost":        inC,
		"output_cost":       outC,
		"total_cost":        totalC,
	}
	state.TotalCostUSD += totalC
	out.Extra["usage_cost_total_usd"] = state.TotalCostUSD

	logx.Debug().
		Str("session_id", state.SessionID).
		Str("node", node).
		Str("model", modelName).
		Int("prompt_tokens", out.ResponseMeta.Usage.PromptTokens).
		Int("completion_tokens", out.ResponseMeta.Usage.CompletionTokens).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")
}
