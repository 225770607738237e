package file

import (
	"context"
	"path"
	"sort"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
)

// FlowRepository handles flow-related file operations under <root>/flows.
type FlowRepository struct {
	docs documents
}

// NewFlowRepository creates a new flow repository.
func NewFlowRepository(root string) *FlowRepository {
	return &FlowRepository{docs: documents{dir: path.Join(root, "flows")}}
}

// Flows returns the flows matching filter, newest first.
func (r *FlowRepository) Flows(ctx context.Context, filter persistence.FlowFilter) ([]*models.Flow, error) {
	ids, err := r.docs.ids()
	if err != nil {
		return nil, persistence.NewFlowError("Flows", "", err)
	}

	flows := make([]*models.Flow, 0, len(ids))

	for _, id := range ids {
		flow, err := r.FlowByID(ctx, id)
		if err != nil {
			if persistence.IsFlowNotFound(err) {
				continue
			}

			return nil, err
		}

		if filter.Matches(flow) {
			flows = append(flows, flow)
		}
	}

	sort.SliceStable(flows, func(i, j int) bool {
		return flows[i].CreatedAt.After(flows[j].CreatedAt)
	})

	return flows, nil
}

func (r *FlowRepository) FlowByID(_ context.Context, id string) (*models.Flow, error) {
	var flow models.Flow

	err := r.docs.read(id, &flow)
	if err != nil {
		if isNotExist(err) {
			return nil, persistence.NewFlowError("FlowByID", id, persistence.ErrFlowNotFound)
		}

		return nil, persistence.NewFlowError("FlowByID", id, err)
	}

	return &flow, nil
}

func (r *FlowRepository) SaveFlow(_ context.Context, flow *models.Flow) error {
	if err := r.docs.write(flow.ID, flow); err != nil {
		return persistence.NewFlowError("SaveFlow", flow.ID, err)
	}

	return nil
}

func (r *FlowRepository) DeleteFlow(_ context.Context, id string) error {
	err := r.docs.remove(id)
	if err != nil {
		if isNotExist(err) {
			return persistence.NewFlowError("DeleteFlow", id, persistence.ErrFlowNotFound)
		}

		return persistence.NewFlowError("DeleteFlow", id, err)
	}

	return nil
}
