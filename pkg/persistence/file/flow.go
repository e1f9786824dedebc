package file

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/google/uuid"
)

// FlowRepository handles flow-related file operations.
type FlowRepository struct {
	mu    sync.RWMutex
	flows store[models.Flow]
}

func NewFlowRepository(root string) *FlowRepository {
	return &FlowRepository{flows: newStore[models.Flow](root, "flows")}
}

func (r *FlowRepository) GetAll(_ context.Context, organizationID string) ([]*models.Flow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all, err := r.flows.list()
	if err != nil {
		return nil, err
	}

	flows := make([]*models.Flow, 0, len(all))
	for _, f := range all {
		if organizationID == "" || f.OrganizationID == organizationID {
			flows = append(flows, f)
		}
	}

	sort.SliceStable(flows, func(i, j int) bool {
		return flows[i].CreatedAt.After(flows[j].CreatedAt)
	})

	return flows, nil
}

func (r *FlowRepository) GetByID(_ context.Context, id string) (*models.Flow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	flow, err := r.flows.read(id)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewFlowError("GetByID", id, persistence.ErrFlowNotFound)
		}

		return nil, persistence.NewFlowError("GetByID", id, err)
	}

	return flow, nil
}

// Save stores the flow, assigning an id and timestamps when missing.
func (r *FlowRepository) Save(_ context.Context, flow *models.Flow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if flow.ID == "" {
		flow.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}

	flow.UpdatedAt = now

	err := r.flows.write(flow.ID, flow)
	if err != nil {
		return persistence.NewFlowError("Save", flow.ID, err)
	}

	return nil
}

func (r *FlowRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.flows.remove(id)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return persistence.NewFlowError("Delete", id, persistence.ErrFlowNotFound)
		}

		return persistence.NewFlowError("Delete", id, err)
	}

	return nil
}
