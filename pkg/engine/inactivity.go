package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/protocol"
)

// SweepInactivity starts the flows of inactivity triggers for open chats
// that went quiet. A chat with an active session is left alone, and a
// trigger fires at most once per period of silence: it is skipped when its
// flow already started for the chat after the last activity. It returns the
// number of sessions started.
func (e *Engine) SweepInactivity(ctx context.Context) (int, error) {
	if e.services.Customers == nil {
		return 0, fmt.Errorf("inactivity sweep: %w", protocol.ErrServiceUnavailable)
	}

	triggers, err := e.triggers.GetActive(ctx, "", models.TriggerTypeInactivity)
	if err != nil {
		return 0, fmt.Errorf("failed to load inactivity triggers: %w", err)
	}

	byOrganization := make(map[string][]*models.Trigger)
	for _, t := range triggers {
		byOrganization[t.OrganizationID] = append(byOrganization[t.OrganizationID], t)
	}

	organizations := make([]string, 0, len(byOrganization))
	for org := range byOrganization {
		organizations = append(organizations, org)
	}

	slices.Sort(organizations)

	var (
		started int
		errs    []error
	)

	for _, org := range organizations {
		chats, err := e.services.Customers.ListOpenChats(ctx, org)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to list chats of %q: %w", org, err))

			continue
		}

		for _, chat := range chats {
			if ctx.Err() != nil {
				return started, ctx.Err()
			}

			ok, err := e.sweepChat(ctx, byOrganization[org], chat)
			if err != nil {
				e.logger.ErrorContext(ctx, "inactivity trigger failed", "chat_id", chat.ID, "error", err)
				errs = append(errs, err)

				continue
			}

			if ok {
				started++
			}
		}
	}

	return started, errors.Join(errs...)
}

func (e *Engine) sweepChat(ctx context.Context, triggers []*models.Trigger, chat *models.Chat) (bool, error) {
	matched, ok := e.matcher.MatchInactive(triggers, chat, e.clock.Now())
	if !ok {
		return false, nil
	}

	started := false

	err := e.guard.WithLock(ctx, chat.ID, func(ctx context.Context) error {
		_, err := e.sessions.GetActiveByChat(ctx, chat.ID)
		if err == nil {
			return nil
		}

		if !persistence.IsSessionNotFound(err) {
			return err
		}

		fired, err := e.firedSinceActivity(ctx, matched, chat)
		if err != nil || fired {
			return err
		}

		_, err = e.start(ctx, StartRequest{
			FlowID:         matched.FlowID,
			TriggerID:      matched.ID,
			OrganizationID: chat.OrganizationID,
			ChatID:         chat.ID,
			CustomerID:     chat.CustomerID,
		})
		started = err == nil

		return err
	})

	return started, err
}

// firedSinceActivity reports whether the trigger's flow already ran for chat
// after the last activity its inactivity rule watches.
func (e *Engine) firedSinceActivity(ctx context.Context, t *models.Trigger, chat *models.Chat) (bool, error) {
	latest, err := e.sessions.GetLatestByFlowAndChat(ctx, t.FlowID, chat.ID)
	if err != nil {
		if persistence.IsSessionNotFound(err) {
			return false, nil
		}

		return false, err
	}

	for _, rule := range t.Conditions.Rules {
		if rule.Type != models.RuleTypeInactivity {
			continue
		}

		params, err := rule.InactivityParams()
		if err != nil {
			continue
		}

		last, known := chat.LastActivity(params.Source)
		if !known {
			last = chat.StartTime
		}

		if latest.CreatedAt.Before(last) {
			return false, nil
		}
	}

	return true, nil
}
