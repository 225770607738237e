package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	redis "github.com/redis/go-redis/v9"
)

// SessionRepository stores snapshots under <ns>:session:<id>.
type SessionRepository struct {
	client redis.UniversalClient
	keys   keys
	logger *slog.Logger
}

func (r *SessionRepository) SessionByID(ctx context.Context, id string) (*models.Session, error) {
	raw, err := r.client.Get(ctx, r.keys.session(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.NewSessionError("SessionByID", id, persistence.ErrSessionNotFound)
		}

		return nil, persistence.NewSessionError("SessionByID", id, err)
	}

	var session models.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, persistence.NewSessionError("SessionByID", id, fmt.Errorf("failed to decode snapshot: %w", err))
	}

	return &session, nil
}

// SaveSession writes the snapshot and keeps the active index in step with its status.
func (r *SessionRepository) SaveSession(ctx context.Context, session *models.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return persistence.NewSessionError("SaveSession", session.ID, fmt.Errorf("failed to encode snapshot: %w", err))
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.keys.session(session.ID), raw, 0)

		if session.IsActive() {
			pipe.ZAdd(ctx, r.keys.activeSessions(), redis.Z{
				Score:  float64(session.LastActivityAt.UnixMilli()),
				Member: session.ID,
			})
		} else {
			pipe.ZRem(ctx, r.keys.activeSessions(), session.ID)
		}

		return nil
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "error while saving session snapshot", "session_id", session.ID, "error", err)

		return persistence.NewSessionError("SaveSession", session.ID, err)
	}

	return nil
}

func (r *SessionRepository) ActiveSessionsIdleSince(ctx context.Context, cutoff time.Time) ([]*models.Session, error) {
	ids, err := r.client.ZRangeByScore(ctx, r.keys.activeSessions(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, persistence.NewSessionError("ActiveSessionsIdleSince", "", err)
	}

	sessions := make([]*models.Session, 0, len(ids))

	for _, id := range ids {
		session, err := r.SessionByID(ctx, id)
		if err != nil {
			if persistence.IsSessionNotFound(err) {
				r.logger.WarnContext(ctx, "dropping stale active index entry", "session_id", id)
				r.client.ZRem(ctx, r.keys.activeSessions(), id)

				continue
			}

			return nil, err
		}

		sessions = append(sessions, session)
	}

	return sessions, nil
}

func (r *SessionRepository) DeleteSession(ctx context.Context, id string) error {
	var deleted *redis.IntCmd

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, r.keys.session(id))
		pipe.ZRem(ctx, r.keys.activeSessions(), id)

		return nil
	})
	if err != nil {
		return persistence.NewSessionError("DeleteSession", id, err)
	}

	if deleted.Val() == 0 {
		return persistence.NewSessionError("DeleteSession", id, persistence.ErrSessionNotFound)
	}

	return nil
}
