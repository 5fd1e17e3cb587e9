package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
)

// User-facing literals. The salon operates in Russian; channel adapters send
// these verbatim. Changing them breaks downstream detection (summary-seed
// recognition at load time, the clarify-phrase contract in the extraction
// prompt).
const (
	// SummaryPrefix marks the condensed transcript that replaces full history
	// after a lifecycle reset. It is stored as a user-role turn so the model
	// reads it as prior conversation context.
	SummaryPrefix = "Предыдущий диалог:"

	// ClarifyProcedurePhrase is the fixed clarifying question the profile
	// extractor emits when it wants the caller to name a procedure. The
	// orchestrator treats a reply containing it as a leaf and ends the turn.
	ClarifyProcedurePhrase = "расскажите, какая процедура вас интересует?"

	// TurnFailureReply is appended when a whole turn fails before producing
	// any assistant reply.
	TurnFailureReply = "Извините, произошла ошибка при обработке вашего запроса. Пожалуйста, попробуйте еще раз."

	// NoRetrievalPlaceholder is fed to the composer when classification
	// decided the turn does not need knowledge-base retrieval.
	NoRetrievalPlaceholder = "Для данного запроса не требовался поиск в базе знаний."

	// SummaryFailureContent seeds the reset history when summarization fails.
	SummaryFailureContent = "Извините, произошла ошибка при суммаризации."
)

// Session is the full per-conversation state record. It is persisted as a
// single document and replaced wholesale on save; a lifecycle reset builds a
// brand-new Session rather than mutating the old one.
type Session struct {
	ID             string    `json:"session_id"`
	NeedsRetrieval bool      `json:"needs_retrieval"`
	ClientName     string    `json:"client_name,omitempty"`
	Gender         string    `json:"gender,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// Messages is the literal transcript fed to the models. Order matters.
	Messages []*schema.Message `json:"messages"`
}

// NewSession creates the initial state for a first-time caller: retrieval
// assumed needed, profile unknown, empty history.
func NewSession(id string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:             id,
		NeedsRetrieval: true,
		CreatedAt:      now,
		UpdatedAt:      now,
		Messages:       []*schema.Message{},
	}
}

// ProfileComplete reports whether both profile fields have been captured.
// Once true, later extraction attempts are skipped entirely.
func (s *Session) ProfileComplete() bool {
	return s.ClientName != "" && s.Gender != ""
}

// SetProfile fills profile fields that are still empty. Values are copied
// verbatim; fields already set are never overwritten (write-once-then-stable).
func (s *Session) SetProfile(clientName, gender string) {
	if s.ClientName == "" {
		s.ClientName = clientName
	}
	if s.Gender == "" {
		s.Gender = gender
	}
}

// Append adds a turn to the transcript.
func (s *Session) Append(msg *schema.Message) {
	if msg == nil {
		return
	}
	s.Messages = append(s.Messages, msg)
}

// LastMessage returns the most recent turn, or nil for an empty transcript.
func (s *Session) LastMessage() *schema.Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return s.Messages[len(s.Messages)-1]
}

// IsToolInvocation reports whether msg is an assistant turn that requests a
// tool call rather than carrying a final reply.
func IsToolInvocation(msg *schema.Message) bool {
	return msg != nil && msg.Role == schema.Assistant && len(msg.ToolCalls) > 0
}

// IsFinalAssistant reports whether msg is a finalized assistant reply (no
// pending tool calls). These are the turns the lifecycle threshold counts.
func IsFinalAssistant(msg *schema.Message) bool {
	return msg != nil && msg.Role == schema.Assistant && len(msg.ToolCalls) == 0
}

// ChatTurns returns the user/assistant transcript with tool invocations and
// tool results filtered out: the history shape every prompt consumes.
func (s *Session) ChatTurns() []*schema.Message {
	out := make([]*schema.Message, 0, len(s.Messages))
	for _, msg := range s.Messages {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.User:
			out = append(out, msg)
		case schema.Assistant:
			if len(msg.ToolCalls) == 0 {
				out = append(out, msg)
			}
		}
	}
	return out
}

// FinalAssistantCount counts finalized assistant turns, the lifecycle metric.
func (s *Session) FinalAssistantCount() int {
	n := 0
	for _, msg := range s.Messages {
		if IsFinalAssistant(msg) {
			n++
		}
	}
	return n
}

// LastFinalAssistant returns the most recent finalized assistant reply, or
// nil when the transcript has none.
func (s *Session) LastFinalAssistant() *schema.Message {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if IsFinalAssistant(s.Messages[i]) && strings.TrimSpace(s.Messages[i].Content) != "" {
			return s.Messages[i]
		}
	}
	return nil
}

// LastUserContent returns the content of the most recent user turn.
func (s *Session) LastUserContent() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i] != nil && s.Messages[i].Role == schema.User {
			return s.Messages[i].Content
		}
	}
	return ""
}

// HasSummarySeed reports whether the transcript starts with a lifecycle
// summary turn.
func (s *Session) HasSummarySeed() bool {
	if len(s.Messages) == 0 || s.Messages[0] == nil {
		return false
	}
	return s.Messages[0].Role == schema.User &&
		strings.HasPrefix(s.Messages[0].Content, SummaryPrefix)
}

// Validate checks structural invariants at load/save boundaries. Transcript
// ordering violations are deliberately not errors (best-effort continuation).
func (s *Session) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("session id is empty")
	}
	for i, msg := range s.Messages {
		if msg == nil {
			return fmt.Errorf("nil message at index %d", i)
		}
		switch msg.Role {
		case schema.User, schema.Assistant, schema.Tool, schema.System:
		default:
			return fmt.Errorf("unknown role %q at index %d", msg.Role, i)
		}
	}
	return nil
}
