package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
)

// FlowRepository handles flow-related database operations.
type FlowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewFlowRepository creates a new flow repository.
func NewFlowRepository(db *sql.DB, logger *slog.Logger) *FlowRepository {
	return &FlowRepository{db: db, logger: logger}
}

const flowColumns = `
	id
  , tenant_id
  , name
  , type
  , description
  , status
  , nodes
  , edges
  , variables
  , settings
  , created_at
  , updated_at
  , published_at
  , archived_at
`

// Flows returns the flows matching filter, newest first.
func (r *FlowRepository) Flows(ctx context.Context, filter persistence.FlowFilter) ([]*models.Flow, error) {
	var (
		where []string
		args  []any
	)

	if filter.TenantID != "" {
		args = append(args, filter.TenantID)
		where = append(where, fmt.Sprintf("tenant_id = $%d", len(args)))
	}

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := "SELECT " + flowColumns + " FROM flows"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.NewFlowError("Flows", "", fmt.Errorf("failed to query flows: %w", err))
	}

	defer closeRows(ctx, r.logger, rows)

	flows := make([]*models.Flow, 0)

	for rows.Next() {
		flow, err := scanFlow(rows)
		if err != nil {
			return nil, persistence.NewFlowError("Flows", "", err)
		}

		flows = append(flows, flow)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewFlowError("Flows", "", fmt.Errorf("error iterating flows: %w", err))
	}

	return flows, nil
}

func (r *FlowRepository) FlowByID(ctx context.Context, id string) (*models.Flow, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+flowColumns+" FROM flows WHERE id = $1", id)

	flow, err := scanFlow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewFlowError("FlowByID", id, persistence.ErrFlowNotFound)
		}

		return nil, persistence.NewFlowError("FlowByID", id, err)
	}

	return flow, nil
}

// SaveFlow inserts or replaces the flow row.
func (r *FlowRepository) SaveFlow(ctx context.Context, flow *models.Flow) error {
	nodesJSON, err := json.Marshal(nonNil(flow.Nodes))
	if err != nil {
		return persistence.NewFlowError("SaveFlow", flow.ID, fmt.Errorf("failed to marshal nodes: %w", err))
	}

	edgesJSON, err := json.Marshal(nonNil(flow.Edges))
	if err != nil {
		return persistence.NewFlowError("SaveFlow", flow.ID, fmt.Errorf("failed to marshal edges: %w", err))
	}

	variablesJSON, err := json.Marshal(nonNil(flow.Variables))
	if err != nil {
		return persistence.NewFlowError("SaveFlow", flow.ID, fmt.Errorf("failed to marshal variables: %w", err))
	}

	// nil settings map to SQL NULL
	var settingsJSON any
	if flow.Settings != nil {
		encoded, err := json.Marshal(flow.Settings)
		if err != nil {
			return persistence.NewFlowError("SaveFlow", flow.ID, fmt.Errorf("failed to marshal settings: %w", err))
		}

		settingsJSON = encoded
	}

	query := `
		INSERT INTO flows (id, tenant_id, name, type, description, status, nodes, edges,
variables, settings, created_at, updated_at, published_at, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			variables = EXCLUDED.variables,
			settings = EXCLUDED.settings,
			updated_at = EXCLUDED.updated_at,
			published_at = EXCLUDED.published_at,
			archived_at = EXCLUDED.archived_at
	`

	_, err = r.db.ExecContext(ctx, query,
		flow.ID,
		flow.TenantID,
		flow.Name,
		flow.Type,
		flow.Description,
		string(flow.Status),
		nodesJSON,
		edgesJSON,
		variablesJSON,
		settingsJSON,
		flow.CreatedAt,
		flow.UpdatedAt,
		flow.PublishedAt,
		flow.ArchivedAt,
	)
	if err != nil {
		return persistence.NewFlowError("SaveFlow", flow.ID, fmt.Errorf("failed to save flow: %w", err))
	}

	return nil
}

func (r *FlowRepository) DeleteFlow(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM flows WHERE id = $1", id)
	if err != nil {
		return persistence.NewFlowError("DeleteFlow", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewFlowError("DeleteFlow", id, err)
	}

	if affected == 0 {
		return persistence.NewFlowError("DeleteFlow", id, persistence.ErrFlowNotFound)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFlow(row scanner) (*models.Flow, error) {
	var (
		flow                    models.Flow
		status                  string
		nodesJSON, edgesJSON    []byte
		variablesJSON           []byte
		settingsJSON            []byte
		publishedAt, archivedAt sql.NullTime
	)

	err := row.Scan(
		&flow.ID,
		&flow.TenantID,
		&flow.Name,
		&flow.Type,
		&flow.Description,
		&status,
		&nodesJSON,
		&edgesJSON,
		&variablesJSON,
		&settingsJSON,
		&flow.CreatedAt,
		&flow.UpdatedAt,
		&publishedAt,
		&archivedAt,
	)
	if err != nil {
		return nil, err
	}

	flow.Status = models.FlowStatus(status)

	if err := json.Unmarshal(nodesJSON, &flow.Nodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
	}

	if err := json.Unmarshal(edgesJSON, &flow.Edges); err != nil {
		return nil, fmt.Errorf("failed to unmarshal edges: %w", err)
	}

	if err := json.Unmarshal(variablesJSON, &flow.Variables); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
	}

	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &flow.Settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
		}
	}

	if publishedAt.Valid {
		flow.PublishedAt = &publishedAt.Time
	}

	if archivedAt.Valid {
		flow.ArchivedAt = &archivedAt.Time
	}

	return &flow, nil
}

// nonNil keeps JSONB columns as [] instead of null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}

	return s
}
