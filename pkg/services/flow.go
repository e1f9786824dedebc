package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/variables"
	"github.com/google/uuid"
)

// Invalidator drops cached copies of a flow after it changes.
type Invalidator interface {
	Invalidate(flowID string)
}

type Flow struct {
	persistence persistence.Persistence
	invalidator Invalidator
}

// NewFlow creates a new flow service. invalidator may be nil when no process
// caches flows.
func NewFlow(persistence persistence.Persistence, invalidator Invalidator) *Flow {
	return &Flow{
		persistence: persistence,
		invalidator: invalidator,
	}
}

// HealthCheck checks the health of the persistence layer.
func (f *Flow) HealthCheck(ctx context.Context) (string, bool) {
	if f.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := f.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// List returns the flows of an organization, newest first.
func (f *Flow) List(ctx context.Context, organizationID string) ([]*models.Flow, error) {
	flows, err := f.persistence.FlowRepository().GetAll(ctx, strings.TrimSpace(organizationID))
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}

	return flows, nil
}

// FetchByID retrieves a flow by its ID.
func (f *Flow) FetchByID(ctx context.Context, id string) (*models.Flow, error) {
	return f.persistence.FlowRepository().GetByID(ctx, id)
}

// DraftRequest carries the editable parts of a flow.
type DraftRequest struct {
	Name            string
	OrganizationID  string
	Nodes           []*models.Node
	Edges           []*models.Connection
	Variables       []models.Variable
	Viewport        models.Viewport
	CreatedByPrompt string
}

// Create stores a new unpublished flow. The draft must be structurally valid
// but may be empty.
func (f *Flow) Create(ctx context.Context, req DraftRequest) (*models.Flow, error) {
	now := time.Now().UTC()

	flow := &models.Flow{
		ID:              uuid.New().String(),
		OrganizationID:  req.OrganizationID,
		CreatedByPrompt: req.CreatedByPrompt,
		CreatedAt:       now,
	}

	err := f.applyDraft(flow, req, now)
	if err != nil {
		return nil, err
	}

	err = f.persistence.FlowRepository().Save(ctx, flow)
	if err != nil {
		return nil, fmt.Errorf("failed to create flow: %w", err)
	}

	return flow, nil
}

// UpdateDraft replaces the draft of a flow. The published snapshot is left
// untouched, so running sessions keep their graph until the next publish.
func (f *Flow) UpdateDraft(ctx context.Context, flowID string, req DraftRequest) (*models.Flow, error) {
	flow, err := f.persistence.FlowRepository().GetByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	err = f.applyDraft(flow, req, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	err = f.persistence.FlowRepository().Save(ctx, flow)
	if err != nil {
		return nil, fmt.Errorf("failed to update flow: %w", err)
	}

	return flow, nil
}

func (f *Flow) applyDraft(flow *models.Flow, req DraftRequest, now time.Time) error {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return NewValidationError("applyDraft", "FLOW_NAME_REQUIRED", "flow name is required", ErrFlowNameRequired)
	}

	draft := &models.Graph{Nodes: req.Nodes, Edges: req.Edges}

	err := draft.Validate()
	if err != nil {
		return err
	}

	flow.Name = name
	flow.DraftNodes = draft.Nodes
	flow.DraftEdges = draft.Edges
	flow.Variables = variables.DedupeNames(req.Variables)
	flow.Viewport = req.Viewport
	flow.UpdatedAt = now

	return nil
}

// Delete removes a flow and its triggers, so no trigger is left pointing at a
// missing flow.
func (f *Flow) Delete(ctx context.Context, flowID string) error {
	_, err := f.persistence.FlowRepository().GetByID(ctx, flowID)
	if err != nil {
		return err
	}

	triggers, err := f.persistence.TriggerRepository().GetByFlow(ctx, flowID)
	if err != nil {
		return fmt.Errorf("failed to load triggers of flow %s: %w", flowID, err)
	}

	for _, t := range triggers {
		err := f.persistence.TriggerRepository().Delete(ctx, t.ID)
		if err != nil && !persistence.IsTriggerNotFound(err) {
			return fmt.Errorf("failed to delete trigger %s: %w", t.ID, err)
		}
	}

	err = f.persistence.FlowRepository().Delete(ctx, flowID)
	if err != nil {
		return err
	}

	f.invalidate(flowID)

	return nil
}

func (f *Flow) invalidate(flowID string) {
	if f.invalidator != nil {
		f.invalidator.Invalidate(flowID)
	}
}
