package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/google/uuid"
)

// Trigger manages the triggers that start flows.
type Trigger struct {
	persistence persistence.Persistence
}

// NewTrigger creates a new trigger service.
func NewTrigger(persistence persistence.Persistence) *Trigger {
	return &Trigger{persistence: persistence}
}

// Create stores a trigger for an existing flow. An empty organization is
// taken from the flow; a different one is rejected.
func (t *Trigger) Create(ctx context.Context, trigger *models.Trigger) (*models.Trigger, error) {
	if trigger == nil {
		return nil, ErrInvalidRequest
	}

	flow, err := t.persistence.FlowRepository().GetByID(ctx, trigger.FlowID)
	if err != nil {
		return nil, err
	}

	switch trigger.OrganizationID {
	case "":
		trigger.OrganizationID = flow.OrganizationID
	case flow.OrganizationID:
	default:
		return nil, fmt.Errorf("trigger for flow %s: %w", flow.ID, ErrTriggerOrganization)
	}

	if trigger.Conditions.Operator == "" {
		trigger.Conditions.Operator = models.OperatorAnd
	}

	err = validateRules(trigger)
	if err != nil {
		return nil, err
	}

	trigger.ID = uuid.New().String()
	trigger.CreatedAt = time.Now().UTC()

	err = t.persistence.TriggerRepository().Save(ctx, trigger)
	if err != nil {
		return nil, fmt.Errorf("failed to create trigger: %w", err)
	}

	return trigger, nil
}

// validateRules decodes the params of every rule so a broken rule is rejected
// here instead of being skipped at match time.
func validateRules(trigger *models.Trigger) error {
	for i, rule := range trigger.Conditions.Rules {
		var err error

		switch rule.Type {
		case models.RuleTypeChannel:
			_, err = rule.ChannelParams()
		case models.RuleTypeSchedule:
			var params models.ScheduleParams

			params, err = rule.ScheduleParams()
			if err == nil && params.Timezone != "" {
				_, err = time.LoadLocation(params.Timezone)
			}
		case models.RuleTypeInactivity:
			var params models.InactivityParams

			params, err = rule.InactivityParams()
			if err == nil && params.Minutes <= 0 {
				err = fmt.Errorf("minutes must be positive, got %d", params.Minutes)
			}
		default:
			err = fmt.Errorf("unknown rule type %q", rule.Type)
		}

		if err != nil {
			return NewValidationError("validateRules", "INVALID_TRIGGER_RULE",
				fmt.Sprintf("rule %d: %v", i, err), ErrInvalidTriggerRule)
		}
	}

	if trigger.Type == models.TriggerTypeInactivity && !hasInactivityRule(trigger) {
		return NewValidationError("validateRules", "INVALID_TRIGGER_RULE",
			"an inactivity trigger needs an inactivity rule", ErrInvalidTriggerRule)
	}

	return nil
}

func hasInactivityRule(trigger *models.Trigger) bool {
	for _, rule := range trigger.Conditions.Rules {
		if rule.Type == models.RuleTypeInactivity {
			return true
		}
	}

	return false
}

// FetchByID retrieves a trigger by its ID.
func (t *Trigger) FetchByID(ctx context.Context, id string) (*models.Trigger, error) {
	return t.persistence.TriggerRepository().GetByID(ctx, id)
}

// ListByFlow returns the triggers of a flow in definition order.
func (t *Trigger) ListByFlow(ctx context.Context, flowID string) ([]*models.Trigger, error) {
	_, err := t.persistence.FlowRepository().GetByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	return t.persistence.TriggerRepository().GetByFlow(ctx, flowID)
}

// Delete removes a trigger by its ID.
func (t *Trigger) Delete(ctx context.Context, id string) error {
	return t.persistence.TriggerRepository().Delete(ctx, id)
}
