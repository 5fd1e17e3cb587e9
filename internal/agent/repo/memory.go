package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/iteira-dev/consult-agent/internal/agent/model"
)

// MemorySessionRepository keeps sessions in a map. It exists for tests and
// local development without Redis; documents round-trip through JSON so the
// behavior matches the Redis driver, including isolation between the stored
// copy and the caller's pointer.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string][]byte
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{sessions: make(map[string][]byte)}
}

func (r *MemorySessionRepository) Load(_ context.Context, sessionID string) (*model.Session, error) {
	r.mu.RLock()
	raw, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	var session model.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &session, nil
}

func (r *MemorySessionRepository) Save(_ context.Context, session *model.Session) error {
	if session == nil {
		return fmt.Errorf("nil session")
	}
	if err := session.Validate(); err != nil {
		return err
	}

	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", session.ID, err)
	}

	r.mu.Lock()
	r.sessions[session.ID] = raw
	r.mu.Unlock()
	return nil
}

func (r *MemorySessionRepository) Clear(_ context.Context, sessionID string) error {
	r.mu.Lock()
	delete(r.sessions, sessionID)
	r.mu.Unlock()
	return nil
}

var _ model.SessionRepository = (*MemorySessionRepository)(nil)
