package model

// AppState stores per-turn state for the consultation graph.
// Concurrency model:
//   - This struct is registered as Graph Local State via compose.WithGenLocalState.
//   - All reads/writes happen only inside Eino state handlers:
//     WithStatePreHandler, WithStatePostHandler, or compose.ProcessState.
//   - Eino serializes access to state within these handlers, so no additional
//     mutex/atomic is required as long as you never touch it outside handlers.
//   - Persistence goes through the session manager, never through this struct.
type AppState struct {
	SessionID string
	Session   *Session // loaded by the session gate, persisted by lifecycle/finalize

	// Retrieved holds the latest tool-result text for the composer. Empty
	// means no retrieval happened this turn.
	Retrieved string

	ToolCallCount        int  // maintained in handlers (reset/increment)
	ToolCallLimitReached bool // set when the retrieval-call cap is exceeded
	ToolCallIDSeq        int  // synthesizes tool_call_id when the provider omits it

	// Accumulated total LLM cost (USD) across model invocations for this turn.
	TotalCostUSD float64
}

// QueryInput is the graph's public input: one inbound user message.
type QueryInput struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}
