// Package trigger decides whether a flow trigger fires for an inbound event or an inactive chat.
package trigger

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dukex/chatflow/pkg/models"
)

var ErrUnknownRuleType = errors.New("unknown trigger rule type")

// Input is what rules are evaluated against. Chat is only set on the
// background inactivity path.
type Input struct {
	Channel string
	At      time.Time
	Chat    *models.Chat
}

// Evaluate reports whether a first_contact trigger fires for the event.
// Rule errors count as a non-match.
func Evaluate(trigger *models.Trigger, event *models.InboundEvent) bool {
	ok, err := CheckInbound(trigger, event)

	return ok && err == nil
}

// CheckInbound is Evaluate with the reason a rule could not be read.
func CheckInbound(trigger *models.Trigger, event *models.InboundEvent) (bool, error) {
	if !trigger.IsActive || trigger.Type != models.TriggerTypeFirstContact {
		return false, nil
	}

	if !event.FirstContact {
		return false, nil
	}

	return Check(trigger.Conditions, Input{Channel: event.Channel, At: event.Timestamp})
}

// CheckInactive reports whether an inactivity trigger fires for chat at now.
func CheckInactive(trigger *models.Trigger, chat *models.Chat, now time.Time) (bool, error) {
	if !trigger.IsActive || trigger.Type != models.TriggerTypeInactivity {
		return false, nil
	}

	hasInactivityRule := slices.ContainsFunc(trigger.Conditions.Rules, func(r models.TriggerRule) bool {
		return r.Type == models.RuleTypeInactivity
	})
	if !hasInactivityRule {
		return false, nil
	}

	return Check(trigger.Conditions, Input{Channel: chat.Channel, At: now, Chat: chat})
}

// Check reduces the rules with the conditions operator. Rules that do not
// apply to the input (inactivity rules on the inbound path) are skipped; with
// nothing left to evaluate the conditions match, since a missing rule never
// restricts.
func Check(conditions models.TriggerConditions, input Input) (bool, error) {
	evaluated := 0
	matched := 0

	for _, rule := range conditions.Rules {
		ok, applicable, err := matchRule(rule, input)
		if err != nil {
			return false, err
		}

		if !applicable {
			continue
		}

		evaluated++

		if ok {
			matched++
		}
	}

	if evaluated == 0 {
		return true, nil
	}

	if conditions.Operator == models.OperatorOr {
		return matched > 0, nil
	}

	return matched == evaluated, nil
}

func matchRule(rule models.TriggerRule, input Input) (bool, bool, error) {
	switch rule.Type {
	case models.RuleTypeChannel:
		params, err := rule.ChannelParams()
		if err != nil {
			return false, true, err
		}

		return matchChannel(params, input.Channel), true, nil
	case models.RuleTypeSchedule:
		params, err := rule.ScheduleParams()
		if err != nil {
			return false, true, err
		}

		ok, err := matchSchedule(params, input.At)

		return ok, true, err
	case models.RuleTypeInactivity:
		if input.Chat == nil {
			return false, false, nil
		}

		params, err := rule.InactivityParams()
		if err != nil {
			return false, true, err
		}

		return matchInactivity(params, input.Chat, input.At), true, nil
	default:
		return false, true, fmt.Errorf("%w: %q", ErrUnknownRuleType, rule.Type)
	}
}

func matchChannel(params models.ChannelParams, channel string) bool {
	return slices.Contains(params.Channels, channel)
}

func matchSchedule(params models.ScheduleParams, at time.Time) (bool, error) {
	loc, err := params.Location()
	if err != nil {
		return false, err
	}

	local := at.In(loc)

	for _, slot := range params.TimeSlots {
		if slot.Contains(local) {
			return true, nil
		}
	}

	return false, nil
}

func matchInactivity(params models.InactivityParams, chat *models.Chat, now time.Time) bool {
	if params.Minutes <= 0 {
		return false
	}

	last, ok := chat.LastActivity(params.Source)
	if !ok {
		if chat.StartTime.IsZero() {
			return false
		}

		last = chat.StartTime
	}

	return now.Sub(last) >= time.Duration(params.Minutes)*time.Minute
}
