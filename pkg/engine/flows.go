package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/patrickmn/go-cache"
)

// FlowSource resolves flow definitions by id. Implementations return
// ErrFlowNotFound (wrapped or not) for unknown ids.
type FlowSource interface {
	Flow(ctx context.Context, id string) (*models.Flow, error)
}

// FlowSourceFunc adapts a function to FlowSource.
type FlowSourceFunc func(ctx context.Context, id string) (*models.Flow, error)

// Flow calls f.
func (f FlowSourceFunc) Flow(ctx context.Context, id string) (*models.Flow, error) {
	return f(ctx, id)
}

// MemoryFlowSource is a FlowSource over an in-memory set of flows.
type MemoryFlowSource struct {
	mu    sync.RWMutex
	flows map[string]*models.Flow
}

// NewMemoryFlowSource creates a source holding flows.
func NewMemoryFlowSource(flows ...*models.Flow) *MemoryFlowSource {
	m := &MemoryFlowSource{flows: make(map[string]*models.Flow, len(flows))}
	for _, f := range flows {
		m.flows[f.ID] = f
	}

	return m
}

// Put adds or replaces a flow.
func (m *MemoryFlowSource) Put(flow *models.Flow) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.flows[flow.ID] = flow
}

// Flow implements FlowSource.
func (m *MemoryFlowSource) Flow(_ context.Context, id string) (*models.Flow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	flow, ok := m.flows[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFlowNotFound, id)
	}

	return flow, nil
}

// CachedFlowSource keeps published flows in memory. Published flows are
// immutable, so a cached copy never goes stale until it is unpublished or
// archived, which callers signal with Invalidate.
type CachedFlowSource struct {
	next  FlowSource
	cache *cache.Cache
}

// NewCachedFlowSource wraps next with a cache whose entries expire after ttl.
func NewCachedFlowSource(next FlowSource, ttl time.Duration) *CachedFlowSource {
	return &CachedFlowSource{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

// Flow implements FlowSource.
func (c *CachedFlowSource) Flow(ctx context.Context, id string) (*models.Flow, error) {
	if cached, ok := c.cache.Get(id); ok {
		if flow, ok := cached.(*models.Flow); ok {
			return flow, nil
		}
	}

	flow, err := c.next.Flow(ctx, id)
	if err != nil {
		return nil, err
	}

	if flow.IsPublished() {
		c.cache.SetDefault(id, flow)
	}

	return flow, nil
}

// Invalidate drops the cached copy of a flow.
func (c *CachedFlowSource) Invalidate(id string) {
	c.cache.Delete(id)
}

// Len returns the number of cached flows.
func (c *CachedFlowSource) Len() int {
	return c.cache.ItemCount()
}
