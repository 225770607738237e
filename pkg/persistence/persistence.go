// Package persistence provides the storage abstraction for flow definitions and session snapshots.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/chatflow/pkg/models"
)

// FlowFilter narrows a flow listing. Zero values match everything.
type FlowFilter struct {
	TenantID string
	Status   models.FlowStatus
}

// Matches reports whether flow passes the filter.
func (f FlowFilter) Matches(flow *models.Flow) bool {
	if f.TenantID != "" && flow.TenantID != f.TenantID {
		return false
	}

	if f.Status != "" && flow.Status != f.Status {
		return false
	}

	return true
}

type FlowRepository interface {
	Flows(ctx context.Context, filter FlowFilter) ([]*models.Flow, error)
	FlowByID(ctx context.Context, id string) (*models.Flow, error)
	SaveFlow(ctx context.Context, flow *models.Flow) error
	DeleteFlow(ctx context.Context, id string) error
}

// SessionRepository stores session snapshots. A saved snapshot replaces the previous one.
type SessionRepository interface {
	SessionByID(ctx context.Context, id string) (*models.Session, error)
	SaveSession(ctx context.Context, session *models.Session) error
	// ActiveSessionsIdleSince returns active sessions whose last activity is
	// strictly before cutoff, oldest first.
	ActiveSessionsIdleSince(ctx context.Context, cutoff time.Time) ([]*models.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

type Persistence interface {
	FlowRepository() FlowRepository
	SessionRepository() SessionRepository
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
