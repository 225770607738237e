package file

import (
	"context"
	"path"
	"sort"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
)

// SessionRepository stores one snapshot file per session under <root>/sessions.
type SessionRepository struct {
	docs documents
}

func NewSessionRepository(root string) *SessionRepository {
	return &SessionRepository{docs: documents{dir: path.Join(root, "sessions")}}
}

func (r *SessionRepository) SessionByID(_ context.Context, id string) (*models.Session, error) {
	var session models.Session

	err := r.docs.read(id, &session)
	if err != nil {
		if isNotExist(err) {
			return nil, persistence.NewSessionError("SessionByID", id, persistence.ErrSessionNotFound)
		}

		return nil, persistence.NewSessionError("SessionByID", id, err)
	}

	return &session, nil
}

func (r *SessionRepository) SaveSession(_ context.Context, session *models.Session) error {
	if err := r.docs.write(session.ID, session); err != nil {
		return persistence.NewSessionError("SaveSession", session.ID, err)
	}

	return nil
}

// ActiveSessionsIdleSince scans every snapshot; file persistence is meant for
// development and single-node setups.
func (r *SessionRepository) ActiveSessionsIdleSince(ctx context.Context, cutoff time.Time) ([]*models.Session, error) {
	ids, err := r.docs.ids()
	if err != nil {
		return nil, persistence.NewSessionError("ActiveSessionsIdleSince", "", err)
	}

	var idle []*models.Session

	for _, id := range ids {
		session, err := r.SessionByID(ctx, id)
		if err != nil {
			if persistence.IsSessionNotFound(err) {
				continue
			}

			return nil, err
		}

		if session.IsActive() && session.LastActivityAt.Before(cutoff) {
			idle = append(idle, session)
		}
	}

	sort.SliceStable(idle, func(i, j int) bool {
		return idle[i].LastActivityAt.Before(idle[j].LastActivityAt)
	})

	return idle, nil
}

func (r *SessionRepository) DeleteSession(_ context.Context, id string) error {
	err := r.docs.remove(id)
	if err != nil {
		if isNotExist(err) {
			return persistence.NewSessionError("DeleteSession", id, persistence.ErrSessionNotFound)
		}

		return persistence.NewSessionError("DeleteSession", id, err)
	}

	return nil
}
