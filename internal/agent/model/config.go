package model

import "time"

// GeminiConfig carries provider credentials shared by every model role.
type GeminiConfig struct {
	APIKey string `envconfig:"GEMINI_API_KEY" required:"true"`
}

// ProfileModelConfig configures the identification extractor. It runs on a
// small model with low temperature so the JSON contract stays stable.
type ProfileModelConfig struct {
	Model       string  `envconfig:"PROFILE_MODEL" default:"gemini-2.5-flash-lite"`
	Temperature float32 `envconfig:"PROFILE_MODEL_TEMPERATURE" default:"0.1"`
	MaxTokens   int     `envconfig:"PROFILE_MODEL_MAX_TOKENS" default:"1024"`
}

// ClassifierModelConfig configures the retrieval-necessity / moderation
// classifier. Output is a one-word verdict, so the token cap is tiny.
type ClassifierModelConfig struct {
	Model       string  `envconfig:"CLASSIFIER_MODEL" default:"gemini-2.5-flash-lite"`
	Temperature float32 `envconfig:"CLASSIFIER_MODEL_TEMPERATURE" default:"0.0"`
	MaxTokens   int     `envconfig:"CLASSIFIER_MODEL_MAX_TOKENS" default:"64"`
}

// ResponseModelConfig configures the planner/composer model that produces
// client-facing replies and decides retrieval tool calls.
type ResponseModelConfig struct {
	Model       string  `envconfig:"RESPONSE_MODEL" default:"gemini-2.5-flash"`
	Temperature float32 `envconfig:"RESPONSE_MODEL_TEMPERATURE" default:"0.6"`
	MaxTokens   int     `envconfig:"RESPONSE_MODEL_MAX_TOKENS" default:"4096"`
}

// SummaryModelConfig configures the lifecycle summarizer.
type SummaryModelConfig struct {
	Model       string  `envconfig:"SUMMARY_MODEL" default:"gemini-2.5-flash-lite"`
	Temperature float32 `envconfig:"SUMMARY_MODEL_TEMPERATURE" default:"0.3"`
	MaxTokens   int     `envconfig:"SUMMARY_MODEL_MAX_TOKENS" default:"2048"`
}

// ConversationConfig tunes session lifecycle behavior.
type ConversationConfig struct {
	// TTL bounds how long an idle session document survives in the store.
	TTL time.Duration `envconfig:"CONVERSATION_TTL" default:"24h"`

	// SummaryThreshold is the finalized-assistant-turn count at which the
	// transcript is condensed and reset.
	SummaryThreshold int `envconfig:"CONVERSATION_SUMMARY_THRESHOLD" default:"10"`

	// ToolMaxCalls caps knowledge-search invocations within a single turn so
	// a looping planner cannot spin forever.
	ToolMaxCalls int `envconfig:"CONVERSATION_TOOL_MAX_CALLS" default:"10"`
}

// RetrievalConfig tunes the knowledge-base search tool.
type RetrievalConfig struct {
	// TopK is the per-sub-query result cap.
	TopK int `envconfig:"RETRIEVAL_TOP_K" default:"5"`

	// SubqueryDelimiter splits a compound tool query into independent
	// sub-queries before searching.
	SubqueryDelimiter string `envconfig:"RETRIEVAL_SUBQUERY_DELIMITER" default:";"`
}
