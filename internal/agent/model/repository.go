package model

import "context"

// SessionRepository persists full session documents. Save is a full replace,
// never a merge; a lifecycle reset writes a brand-new record over the old
// one. Backing store consistency is the driver's concern.
type SessionRepository interface {
	// Load retrieves the session, or (nil, nil) when none exists yet.
	Load(ctx context.Context, sessionID string) (*Session, error)

	// Save replaces the stored session document.
	Save(ctx context.Context, session *Session) error

	// Clear removes the session entirely (operator "clear session").
	Clear(ctx context.Context, sessionID string) error
}
