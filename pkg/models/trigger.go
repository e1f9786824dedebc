package models

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// TriggerType selects which path evaluates a trigger.
type TriggerType string

const (
	TriggerTypeFirstContact TriggerType = "first_contact"
	TriggerTypeInactivity   TriggerType = "inactivity"
)

// LogicalOperator combines the rules of a trigger.
type LogicalOperator string

const (
	OperatorAnd LogicalOperator = "AND"
	OperatorOr  LogicalOperator = "OR"
)

// RuleType is the discriminant of a TriggerRule.
type RuleType string

const (
	RuleTypeChannel    RuleType = "channel"
	RuleTypeSchedule   RuleType = "schedule"
	RuleTypeInactivity RuleType = "inactivity"
)

// Trigger decides when a flow starts a session for a chat. Among several
// matching triggers the highest Priority wins, then the first defined.
type Trigger struct {
	ID             string            `json:"id"`
	FlowID         string            `json:"flow_id"         validate:"required"`
	OrganizationID string            `json:"organization_id"`
	Type           TriggerType       `json:"type"            validate:"required,oneof=first_contact inactivity"`
	Conditions     TriggerConditions `json:"conditions"`
	Priority       int               `json:"priority"`
	IsActive       bool              `json:"is_active"`
	CreatedAt      time.Time         `json:"created_at"`
}

// TriggerConditions reduces Rules with Operator.
type TriggerConditions struct {
	Operator LogicalOperator `json:"operator" validate:"omitempty,oneof=AND OR"`
	Rules    []TriggerRule   `json:"rules"    validate:"dive"`
}

// TriggerRule is a tagged union keyed by Type. Params is decoded lazily into
// ChannelParams, ScheduleParams or InactivityParams.
type TriggerRule struct {
	ID     string         `json:"id"`
	Type   RuleType       `json:"type"   validate:"required,oneof=channel schedule inactivity"`
	Params map[string]any `json:"params"`
}

// ChannelParams restricts a trigger to a set of channels.
type ChannelParams struct {
	Channels []string `json:"channels"`
}

// ScheduleParams restricts a trigger to weekly time slots in a timezone.
type ScheduleParams struct {
	Timezone  string     `json:"timezone"`
	TimeSlots []TimeSlot `json:"timeSlots"`
}

// InactivitySource is whose silence an inactivity rule measures.
type InactivitySource string

const (
	InactivityCustomer InactivitySource = "customer"
	InactivityAgent    InactivitySource = "agent"
)

// InactivityParams fires after Minutes without activity from Source.
type InactivityParams struct {
	Source  InactivitySource `json:"source"`
	Minutes int              `json:"minutes"`
}

// ChannelParams decodes the params of a channel rule.
func (r TriggerRule) ChannelParams() (ChannelParams, error) {
	var params ChannelParams

	return params, r.decode(RuleTypeChannel, &params)
}

// ScheduleParams decodes the params of a schedule rule.
func (r TriggerRule) ScheduleParams() (ScheduleParams, error) {
	var params ScheduleParams

	return params, r.decode(RuleTypeSchedule, &params)
}

// InactivityParams decodes the params of an inactivity rule.
func (r TriggerRule) InactivityParams() (InactivityParams, error) {
	var params InactivityParams

	return params, r.decode(RuleTypeInactivity, &params)
}

func (r TriggerRule) decode(expected RuleType, out any) error {
	if r.Type != expected {
		return fmt.Errorf("rule %s is %s, not %s", r.ID, r.Type, expected)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}

	err = decoder.Decode(r.Params)
	if err != nil {
		return fmt.Errorf("rule %s: invalid %s params: %w", r.ID, r.Type, err)
	}

	return nil
}

// NewChannelRule builds a channel rule.
func NewChannelRule(id string, channels ...string) TriggerRule {
	list := make([]any, 0, len(channels))
	for _, c := range channels {
		list = append(list, c)
	}

	return TriggerRule{ID: id, Type: RuleTypeChannel, Params: map[string]any{"channels": list}}
}

// NewScheduleRule builds a schedule rule.
func NewScheduleRule(id, timezone string, slots ...TimeSlot) TriggerRule {
	list := make([]any, 0, len(slots))
	for _, s := range slots {
		list = append(list, map[string]any{"day": s.Day, "startTime": s.StartTime, "endTime": s.EndTime})
	}

	return TriggerRule{
		ID:     id,
		Type:   RuleTypeSchedule,
		Params: map[string]any{"timezone": timezone, "timeSlots": list},
	}
}

// NewInactivityRule builds an inactivity rule.
func NewInactivityRule(id string, source InactivitySource, minutes int) TriggerRule {
	return TriggerRule{
		ID:     id,
		Type:   RuleTypeInactivity,
		Params: map[string]any{"source": string(source), "minutes": minutes},
	}
}
