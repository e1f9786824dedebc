package trigger

import (
	"log/slog"
	"slices"
	"time"

	"github.com/dukex/chatflow/pkg/models"
)

// Matcher picks the trigger that wins among several candidates: highest
// priority first, then the order in which the triggers were defined.
type Matcher struct {
	logger *slog.Logger
}

func NewMatcher(logger *slog.Logger) *Matcher {
	return &Matcher{logger: logger.With("module", "trigger_matcher")}
}

// Match returns the first first_contact trigger that fires for event.
func (m *Matcher) Match(triggers []*models.Trigger, event *models.InboundEvent) (*models.Trigger, bool) {
	for _, t := range Ordered(triggers) {
		ok, err := CheckInbound(t, event)
		if err != nil {
			m.logger.Warn("skipping trigger with invalid rules",
				"trigger_id", t.ID, "flow_id", t.FlowID, "error", err)

			continue
		}

		if ok {
			return t, true
		}
	}

	return nil, false
}

// MatchInactive returns the first inactivity trigger that fires for chat.
func (m *Matcher) MatchInactive(triggers []*models.Trigger, chat *models.Chat, now time.Time) (*models.Trigger, bool) {
	for _, t := range Ordered(triggers) {
		ok, err := CheckInactive(t, chat, now)
		if err != nil {
			m.logger.Warn("skipping trigger with invalid rules",
				"trigger_id", t.ID, "flow_id", t.FlowID, "error", err)

			continue
		}

		if ok {
			return t, true
		}
	}

	return nil, false
}

// Ordered returns the triggers sorted by descending priority, keeping the
// definition order between equal priorities.
func Ordered(triggers []*models.Trigger) []*models.Trigger {
	ordered := slices.Clone(triggers)
	slices.SortStableFunc(ordered, func(a, b *models.Trigger) int {
		return b.Priority - a.Priority
	})

	return ordered
}
