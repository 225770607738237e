package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	redis "github.com/redis/go-redis/v9"
)

// FlowRepository stores each flow under <ns>:flow:<id> and tracks ids in <ns>:flows.
type FlowRepository struct {
	client redis.UniversalClient
	keys   keys
}

func (r *FlowRepository) Flows(ctx context.Context, filter persistence.FlowFilter) ([]*models.Flow, error) {
	ids, err := r.client.SMembers(ctx, r.keys.flowIndex()).Result()
	if err != nil {
		return nil, persistence.NewFlowError("Flows", "", err)
	}

	if len(ids) == 0 {
		return []*models.Flow{}, nil
	}

	flowKeys := make([]string, len(ids))
	for i, id := range ids {
		flowKeys[i] = r.keys.flow(id)
	}

	values, err := r.client.MGet(ctx, flowKeys...).Result()
	if err != nil {
		return nil, persistence.NewFlowError("Flows", "", err)
	}

	flows := make([]*models.Flow, 0, len(values))

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}

		var flow models.Flow
		if err := json.Unmarshal([]byte(raw), &flow); err != nil {
			return nil, persistence.NewFlowError("Flows", ids[i], fmt.Errorf("failed to decode flow: %w", err))
		}

		if filter.Matches(&flow) {
			flows = append(flows, &flow)
		}
	}

	sort.SliceStable(flows, func(i, j int) bool {
		return flows[i].CreatedAt.After(flows[j].CreatedAt)
	})

	return flows, nil
}

func (r *FlowRepository) FlowByID(ctx context.Context, id string) (*models.Flow, error) {
	raw, err := r.client.Get(ctx, r.keys.flow(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.NewFlowError("FlowByID", id, persistence.ErrFlowNotFound)
		}

		return nil, persistence.NewFlowError("FlowByID", id, err)
	}

	var flow models.Flow
	if err := json.Unmarshal(raw, &flow); err != nil {
		return nil, persistence.NewFlowError("FlowByID", id, fmt.Errorf("failed to decode flow: %w", err))
	}

	return &flow, nil
}

func (r *FlowRepository) SaveFlow(ctx context.Context, flow *models.Flow) error {
	raw, err := json.Marshal(flow)
	if err != nil {
		return persistence.NewFlowError("SaveFlow", flow.ID, fmt.Errorf("failed to encode flow: %w", err))
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.keys.flow(flow.ID), raw, 0)
		pipe.SAdd(ctx, r.keys.flowIndex(), flow.ID)

		return nil
	})
	if err != nil {
		return persistence.NewFlowError("SaveFlow", flow.ID, err)
	}

	return nil
}

func (r *FlowRepository) DeleteFlow(ctx context.Context, id string) error {
	var deleted *redis.IntCmd

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, r.keys.flow(id))
		pipe.SRem(ctx, r.keys.flowIndex(), id)

		return nil
	})
	if err != nil {
		return persistence.NewFlowError("DeleteFlow", id, err)
	}

	if deleted.Val() == 0 {
		return persistence.NewFlowError("DeleteFlow", id, persistence.ErrFlowNotFound)
	}

	return nil
}
