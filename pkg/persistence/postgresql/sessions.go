package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
)

// SessionRepository stores session snapshots as JSONB documents.
type SessionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSessionRepository(db *sql.DB, logger *slog.Logger) *SessionRepository {
	return &SessionRepository{db: db, logger: logger}
}

func (r *SessionRepository) SessionByID(ctx context.Context, id string) (*models.Session, error) {
	var snapshot []byte

	err := r.db.QueryRowContext(ctx, "SELECT snapshot FROM sessions WHERE id = $1", id).Scan(&snapshot)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewSessionError("SessionByID", id, persistence.ErrSessionNotFound)
		}

		return nil, persistence.NewSessionError("SessionByID", id, err)
	}

	var session models.Session
	if err := json.Unmarshal(snapshot, &session); err != nil {
		return nil, persistence.NewSessionError("SessionByID", id, fmt.Errorf("failed to unmarshal snapshot: %w", err))
	}

	return &session, nil
}

func (r *SessionRepository) SaveSession(ctx context.Context, session *models.Session) error {
	snapshot, err := json.Marshal(session)
	if err != nil {
		return persistence.NewSessionError("SaveSession", session.ID, fmt.Errorf("failed to marshal snapshot: %w", err))
	}

	query := `
		INSERT INTO sessions (id, flow_id, tenant_id, status, snapshot, created_at, last_activity_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			snapshot = EXCLUDED.snapshot,
			last_activity_at = EXCLUDED.last_activity_at
	`

	_, err = r.db.ExecContext(ctx, query,
		session.ID,
		session.FlowID,
		session.TenantID,
		string(session.Status),
		snapshot,
		session.CreatedAt,
		session.LastActivityAt,
	)
	if err != nil {
		return persistence.NewSessionError("SaveSession", session.ID, fmt.Errorf("failed to save session: %w", err))
	}

	return nil
}

func (r *SessionRepository) ActiveSessionsIdleSince(ctx context.Context, cutoff time.Time) ([]*models.Session, error) {
	query := `
		SELECT snapshot
		FROM sessions
		WHERE status = $1 AND last_activity_at < $2
		ORDER BY last_activity_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, string(models.SessionStatusActive), cutoff)
	if err != nil {
		return nil, persistence.NewSessionError("ActiveSessionsIdleSince", "", fmt.Errorf("failed to query sessions: %w", err))
	}

	defer closeRows(ctx, r.logger, rows)

	var sessions []*models.Session

	for rows.Next() {
		var snapshot []byte
		if err := rows.Scan(&snapshot); err != nil {
			return nil, persistence.NewSessionError("ActiveSessionsIdleSince", "", err)
		}

		var session models.Session
		if err := json.Unmarshal(snapshot, &session); err != nil {
			return nil, persistence.NewSessionError("ActiveSessionsIdleSince", "", fmt.Errorf("failed to unmarshal snapshot: %w", err))
		}

		sessions = append(sessions, &session)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewSessionError("ActiveSessionsIdleSince", "", fmt.Errorf("error iterating sessions: %w", err))
	}

	return sessions, nil
}

func (r *SessionRepository) DeleteSession(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = $1", id)
	if err != nil {
		return persistence.NewSessionError("DeleteSession", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewSessionError("DeleteSession", id, err)
	}

	if affected == 0 {
		return persistence.NewSessionError("DeleteSession", id, persistence.ErrSessionNotFound)
	}

	return nil
}
