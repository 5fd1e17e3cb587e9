package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/iteira-dev/consult-agent/internal/agent/model"
	errx "github.com/iteira-dev/consult-agent/internal/core/error"
)

// RedisSessionRepository stores each session as one JSON document under a
// single key. Save replaces the whole document and refreshes the TTL, which
// matches the lifecycle model: a reset is a wholesale rewrite, not an edit.
type RedisSessionRepository struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

func NewRedisSessionRepository(client *redis.Client, ttl time.Duration) *RedisSessionRepository {
	return &RedisSessionRepository{
		client:    client,
		keyPrefix: "session:",
		ttl:       ttl,
	}
}

func (r *RedisSessionRepository) key(sessionID string) string {
	return r.keyPrefix + sessionID
}

// Load retrieves the stored session, or (nil, nil) when the key is absent.
func (r *RedisSessionRepository) Load(ctx context.Context, sessionID string) (*model.Session, error) {
	raw, err := r.client.Get(ctx, r.key(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to load session")
		return nil, errx.WrapRedis(err)
	}

	var session model.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		// A corrupt document is unrecoverable; surface it so the caller can
		// decide to start fresh rather than silently lose the profile.
		log.Error().Err(err).Str("session_id", sessionID).Msg("corrupt session document")
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}

	if err := session.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session %s: %w", sessionID, err)
	}

	return &session, nil
}

// Save replaces the session document and refreshes its TTL.
func (r *RedisSessionRepository) Save(ctx context.Context, session *model.Session) error {
	if session == nil {
		return fmt.Errorf("nil session")
	}
	if err := session.Validate(); err != nil {
		return err
	}

	session.UpdatedAt = time.Now().UTC()

	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", session.ID, err)
	}

	if err := r.client.Set(ctx, r.key(session.ID), raw, r.ttl).Err(); err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("failed to save session")
		return errx.WrapRedis(err)
	}

	return nil
}

// Clear removes the session document. Missing keys are not an error.
func (r *RedisSessionRepository) Clear(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, r.key(sessionID)).Err(); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to clear session")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.SessionRepository = (*RedisSessionRepository)(nil)
