// Package conversations owns session lifecycle: loading or creating the
// session document, deciding when a transcript has grown past the summary
// threshold, and rebuilding it around a condensed seed.
package conversations

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/iteira-dev/consult-agent/internal/agent/model"
	logx "github.com/iteira-dev/consult-agent/pkg/logger"
)

// Manager coordinates the session store with the lifecycle rules.
type Manager struct {
	repo       model.SessionRepository
	summarizer *Summarizer
	threshold  int
}

func NewManager(repo model.SessionRepository, summarizer *Summarizer, cfg model.ConversationConfig) *Manager {
	threshold := cfg.SummaryThreshold
	if threshold <= 0 {
		threshold = 10
	}
	return &Manager{repo: repo, summarizer: summarizer, threshold: threshold}
}

// LoadOrCreate returns the stored session or a fresh one for a first-time
// caller.
func (m *Manager) LoadOrCreate(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("empty session id")
	}
	session, err := m.repo.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		logx.Debug().Str("session_id", sessionID).Msg("starting new session")
		return model.NewSession(sessionID), nil
	}
	return session, nil
}

// Persist saves the session document.
func (m *Manager) Persist(ctx context.Context, session *model.Session) error {
	return m.repo.Save(ctx, session)
}

// Clear drops the session entirely.
func (m *Manager) Clear(ctx context.Context, sessionID string) error {
	return m.repo.Clear(ctx, sessionID)
}

// ShouldReset reports whether the transcript has reached the summary
// threshold of finalized assistant turns.
func (m *Manager) ShouldReset(session *model.Session) bool {
	return session.FinalAssistantCount() >= m.threshold
}

// Reset condenses the transcript and rebuilds the session around it: a
// user-role summary seed plus the last finalized assistant reply, with the
// profile carried over and the retrieval flag back to its default. The old
// document is replaced wholesale on the next Persist.
func (m *Manager) Reset(ctx context.Context, session *model.Session) *model.Session {
	summary := m.summarizer.Summarize(ctx, session)

	fresh := model.NewSession(session.ID)
	fresh.ClientName = session.ClientName
	fresh.Gender = session.Gender
	fresh.CreatedAt = session.CreatedAt

	fresh.Append(schema.UserMessage(summary))
	if last := session.LastFinalAssistant(); last != nil {
		fresh.Append(last)
	}

	logx.Info().
		Str("session_id", session.ID).
		Int("old_len", len(session.Messages)).
		Int("new_len", len(fresh.Messages)).
		Msg("conversation reset with summary")
	return fresh
}
