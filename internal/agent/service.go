// Package agent exposes the consultation agent to channel adapters: one
// entrypoint per inbound message, with per-session serialization and
// turn-level failure recovery.
package agent

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/iteira-dev/consult-agent/internal/agent/graph"
	"github.com/iteira-dev/consult-agent/internal/agent/graph/conversations"
	"github.com/iteira-dev/consult-agent/internal/agent/model"
	"github.com/iteira-dev/consult-agent/pkg/keylock"
	logx "github.com/iteira-dev/consult-agent/pkg/logger"
)

// Service is the channel-facing facade over the consultation graph.
type Service struct {
	runner    graph.Runner
	sessions  *conversations.Manager
	moderator *Moderator
	locks     *keylock.KeyLock
}

func NewService(runner graph.Runner, sessions *conversations.Manager, moderator *Moderator) *Service {
	return &Service{
		runner:    runner,
		sessions:  sessions,
		moderator: moderator,
		locks:     keylock.New(),
	}
}

// HandleMessage runs one conversational turn. Turns sharing a session id are
// serialized; concurrent turns for different sessions proceed in parallel.
//
// A graph failure does not surface as an error to the adapter: the apology
// turn is appended to the transcript, persisted, and returned as the reply,
// so the caller always gets something to send.
func (s *Service) HandleMessage(ctx context.Context, sessionID, text string) (model.ReplySignal, error) {
	s.locks.Lock(sessionID)
	defer s.locks.Unlock(sessionID)

	reply, err := s.runner.Invoke(ctx, model.QueryInput{SessionID: sessionID, Query: text})
	if err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("consultation turn failed")
		s.recoverTurn(ctx, sessionID, text)
		return model.ReplySignal{Kind: model.SignalPlainReply, Text: model.TurnFailureReply}, nil
	}

	return model.ReplySignal{Kind: model.SignalPlainReply, Text: reply}, nil
}

// recoverTurn records the failed exchange so the transcript stays coherent:
// the user's message followed by the apology.
func (s *Service) recoverTurn(ctx context.Context, sessionID, text string) {
	session, err := s.sessions.LoadOrCreate(ctx, sessionID)
	if err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to load session for turn recovery")
		return
	}

	if session.LastUserContent() != text {
		session.Append(schema.UserMessage(text))
	}
	session.Append(schema.AssistantMessage(model.TurnFailureReply, nil))

	if err := s.sessions.Persist(ctx, session); err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to persist recovered turn")
	}
}

// Moderate classifies an inbound message for handoff signals. Adapters that
// can transfer a dialog to a human (TalkMe) call this before consulting.
func (s *Service) Moderate(ctx context.Context, text string) model.ClassificationFlags {
	if s.moderator == nil {
		return model.ClassificationFlags{}
	}
	return s.moderator.Classify(ctx, text)
}

// ClearSession drops a session entirely (operator command).
func (s *Service) ClearSession(ctx context.Context, sessionID string) error {
	s.locks.Lock(sessionID)
	defer s.locks.Unlock(sessionID)
	return s.sessions.Clear(ctx, sessionID)
}
