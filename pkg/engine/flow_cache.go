package engine

import (
	"context"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	gocache "github.com/patrickmn/go-cache"
)

// DefaultFlowCacheTTL bounds how long a worker keeps running a flow version
// after it was republished by another process.
const DefaultFlowCacheTTL = 30 * time.Second

// FlowCache sits in front of the flow repository. Cached flows are shared
// between sessions and must not be mutated.
type FlowCache struct {
	repo  persistence.FlowRepository
	cache *gocache.Cache
}

func NewFlowCache(repo persistence.FlowRepository, ttl time.Duration) *FlowCache {
	return &FlowCache{
		repo:  repo,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (c *FlowCache) Get(ctx context.Context, id string) (*models.Flow, error) {
	if cached, found := c.cache.Get(id); found {
		return cached.(*models.Flow), nil
	}

	flow, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	c.cache.SetDefault(id, flow)

	return flow, nil
}

// Invalidate drops id so the next Get reads the repository.
func (c *FlowCache) Invalidate(id string) {
	c.cache.Delete(id)
}
