package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/registry"
)

// Publishing copies validated drafts into the snapshot the runtime executes.
type Publishing struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	invalidator Invalidator
}

// NewPublishing creates a new flow publishing service.
func NewPublishing(persistence persistence.Persistence, registry *registry.Registry, invalidator Invalidator) *Publishing {
	return &Publishing{
		persistence: persistence,
		registry:    registry,
		invalidator: invalidator,
	}
}

// Publish validates the draft of a flow and makes it the executed graph.
// Sessions already running pick the new graph up on their next step.
func (p *Publishing) Publish(ctx context.Context, flowID string) (*models.Flow, error) {
	flow, err := p.persistence.FlowRepository().GetByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	err = p.validateForPublishing(flow)
	if err != nil {
		return nil, fmt.Errorf("flow validation failed: %w", err)
	}

	err = p.validateTriggers(ctx, flow)
	if err != nil {
		return nil, err
	}

	err = flow.Publish(time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("flow validation failed: %w", err)
	}

	err = p.persistence.FlowRepository().Save(ctx, flow)
	if err != nil {
		return nil, fmt.Errorf("failed to publish flow: %w", err)
	}

	if p.invalidator != nil {
		p.invalidator.Invalidate(flow.ID)
	}

	return flow, nil
}

// validateForPublishing ensures a flow is ready to be published. Structural
// rules are checked by Flow.Publish; node payloads are checked here against
// the schemas of their executors.
func (p *Publishing) validateForPublishing(flow *models.Flow) error {
	if flow == nil {
		return ErrFlowNil
	}

	if flow.Name == "" {
		return ErrFlowNameRequired
	}

	if p.registry == nil {
		return nil
	}

	return p.registry.ValidateGraph(flow.Draft())
}

// validateTriggers rejects triggers that would start the flow for another
// organization.
func (p *Publishing) validateTriggers(ctx context.Context, flow *models.Flow) error {
	triggers, err := p.persistence.TriggerRepository().GetByFlow(ctx, flow.ID)
	if err != nil {
		return fmt.Errorf("failed to load triggers of flow %s: %w", flow.ID, err)
	}

	for _, t := range triggers {
		if flow.OrganizationID != "" && t.OrganizationID != flow.OrganizationID {
			return fmt.Errorf("trigger %s belongs to organization %q: %w", t.ID, t.OrganizationID, ErrTriggerOrganization)
		}
	}

	return nil
}
