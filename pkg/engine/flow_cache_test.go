package engine

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/persistence/file"
	"github.com/dukex/chatflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlowCache(t *testing.T) {
	ctx := context.Background()
	repo := file.NewPersistence(t.TempDir()).FlowRepository()
	cache := NewFlowCache(repo, time.Minute)

	flow := testutil.CreateTestFlow(nil, nil)
	flow.Name = "v1"
	require.NoError(t, repo.Save(ctx, flow))

	cached, err := cache.Get(ctx, flow.ID)
	require.NoError(t, err)
	assert.Equal(t, "v1", cached.Name)

	updated := flow.Clone()
	updated.Name = "v2"
	require.NoError(t, repo.Save(ctx, updated))

	cached, err = cache.Get(ctx, flow.ID)
	require.NoError(t, err)
	assert.Equal(t, "v1", cached.Name, "served from the cache")

	cache.Invalidate(flow.ID)

	cached, err = cache.Get(ctx, flow.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", cached.Name)

	_, err = cache.Get(ctx, "missing")
	require.ErrorIs(t, err, persistence.ErrFlowNotFound)
}
