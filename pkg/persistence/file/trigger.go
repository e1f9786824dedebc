package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/google/uuid"
)

// TriggerRepository handles trigger-related file operations.
type TriggerRepository struct {
	mu       sync.RWMutex
	triggers store[models.Trigger]
}

func NewTriggerRepository(root string) *TriggerRepository {
	return &TriggerRepository{triggers: newStore[models.Trigger](root, "triggers")}
}

func (r *TriggerRepository) GetByID(_ context.Context, id string) (*models.Trigger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	trigger, err := r.triggers.read(id)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("trigger %s: %w", id, persistence.ErrTriggerNotFound)
		}

		return nil, fmt.Errorf("failed to read trigger %s: %w", id, err)
	}

	return trigger, nil
}

func (r *TriggerRepository) GetByFlow(_ context.Context, flowID string) ([]*models.Trigger, error) {
	return r.filter(func(t *models.Trigger) bool { return t.FlowID == flowID })
}

func (r *TriggerRepository) GetActive(_ context.Context, organizationID string, triggerType models.TriggerType) ([]*models.Trigger, error) {
	return r.filter(func(t *models.Trigger) bool {
		return t.IsActive &&
			t.Type == triggerType &&
			(organizationID == "" || t.OrganizationID == organizationID)
	})
}

func (r *TriggerRepository) filter(keep func(*models.Trigger) bool) ([]*models.Trigger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all, err := r.triggers.list()
	if err != nil {
		return nil, err
	}

	triggers := make([]*models.Trigger, 0, len(all))
	for _, t := range all {
		if keep(t) {
			triggers = append(triggers, t)
		}
	}

	sortByDefinition(triggers)

	return triggers, nil
}

func sortByDefinition(triggers []*models.Trigger) {
	sort.SliceStable(triggers, func(i, j int) bool {
		if !triggers[i].CreatedAt.Equal(triggers[j].CreatedAt) {
			return triggers[i].CreatedAt.Before(triggers[j].CreatedAt)
		}

		return triggers[i].ID < triggers[j].ID
	})
}

func (r *TriggerRepository) Save(_ context.Context, trigger *models.Trigger) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if trigger.ID == "" {
		trigger.ID = uuid.NewString()
	}

	if trigger.CreatedAt.IsZero() {
		trigger.CreatedAt = time.Now().UTC()
	}

	return r.triggers.write(trigger.ID, trigger)
}

func (r *TriggerRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.triggers.remove(id)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("trigger %s: %w", id, persistence.ErrTriggerNotFound)
	}

	return err
}
