package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/chatflow/pkg/events"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/google/uuid"
)

// StartRequest binds a new session to a chat.
type StartRequest struct {
	FlowID         string
	TriggerID      string
	OrganizationID string
	ChatID         string
	CustomerID     string
	// Message is the customer message that caused the start, if any.
	Message string
}

// HandleInbound routes a customer message. A chat with an active session
// buffers the message for the input node it waits on; any other chat is
// offered to the first_contact triggers of the organization.
func (e *Engine) HandleInbound(ctx context.Context, event models.InboundEvent) error {
	if event.ChatID == "" {
		return ErrMissingChat
	}

	if event.OrganizationID == "" {
		return ErrMissingOrganization
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = e.clock.Now()
	}

	return e.guard.WithLock(ctx, event.ChatID, func(ctx context.Context) error {
		active, err := e.sessions.GetActiveByChat(ctx, event.ChatID)
		if err == nil {
			if active.OrganizationID != "" && active.OrganizationID != event.OrganizationID {
				return fmt.Errorf("chat %s: %w", event.ChatID, ErrOrganizationMismatch)
			}

			return e.deliver(ctx, active, event)
		}

		if !persistence.IsSessionNotFound(err) {
			return err
		}

		return e.activate(ctx, event)
	})
}

// deliver records the message on the active session. While an input node
// waits, messages accumulate and the debounce timer restarts with each one.
// A message arriving after the input deadline is kept in history but never
// becomes the answer.
func (e *Engine) deliver(ctx context.Context, session *models.FlowSession, event models.InboundEvent) error {
	now := e.clock.Now()

	session.Append(models.HistoryEntry{
		ID:        uuid.NewString(),
		Role:      models.RoleCustomer,
		Type:      string(models.MessageText),
		Content:   event.Text,
		NodeID:    session.CurrentNodeID,
		Timestamp: event.Timestamp,
	})

	if session.Waiting != models.WaitInput {
		e.logger.DebugContext(ctx, "message received while the session is not waiting for input",
			"session_id", session.ID, "chat_id", session.ChatID, "waiting", session.Waiting)

		return e.save(ctx, session)
	}

	if session.TimeoutAt != nil && !now.Before(*session.TimeoutAt) {
		e.logger.InfoContext(ctx, "message received after the input deadline",
			"session_id", session.ID, "chat_id", session.ChatID, "timeout_at", *session.TimeoutAt)

		return e.resumeWaiting(ctx, session)
	}

	session.PendingInput = append(session.PendingInput, event.Text)

	if e.debounce <= 0 {
		return e.resumeWaiting(ctx, session)
	}

	settle := now.Add(e.debounce)
	session.DebounceTimestamp = &settle

	return e.save(ctx, session)
}

// resumeWaiting runs the node the session is parked on. Buffered input is
// left on the session until the node has consumed it, so a crash in between
// replays it.
func (e *Engine) resumeWaiting(ctx context.Context, session *models.FlowSession) error {
	flow, err := e.flows.Get(ctx, session.FlowID)
	if err != nil {
		return e.fail(ctx, session, err)
	}

	switch {
	case session.Waiting == models.WaitDelay:
		return e.run(ctx, session, flow, resume{})
	case len(session.PendingInput) > 0:
		input := strings.Join(session.PendingInput, inputSeparator)

		return e.run(ctx, session, flow, resume{input: &input})
	default:
		return e.run(ctx, session, flow, resume{timedOut: true})
	}
}

func (e *Engine) activate(ctx context.Context, event models.InboundEvent) error {
	triggers, err := e.triggers.GetActive(ctx, event.OrganizationID, models.TriggerTypeFirstContact)
	if err != nil {
		return fmt.Errorf("failed to load triggers: %w", err)
	}

	matched, ok := e.matcher.Match(triggers, &event)
	if !ok {
		e.logger.DebugContext(ctx, "no trigger matched", "chat_id", event.ChatID, "channel", event.Channel)

		return nil
	}

	_, err = e.start(ctx, StartRequest{
		FlowID:         matched.FlowID,
		TriggerID:      matched.ID,
		OrganizationID: event.OrganizationID,
		ChatID:         event.ChatID,
		CustomerID:     event.CustomerID,
		Message:        event.Text,
	})

	return err
}

// Start creates a session on the published graph of a flow and runs it
// until it first waits or ends.
func (e *Engine) Start(ctx context.Context, req StartRequest) (*models.FlowSession, error) {
	if req.ChatID == "" {
		return nil, ErrMissingChat
	}

	var started *models.FlowSession

	err := e.guard.WithLock(ctx, req.ChatID, func(ctx context.Context) error {
		_, err := e.sessions.GetActiveByChat(ctx, req.ChatID)
		if err == nil {
			return ErrSessionActive
		}

		if !persistence.IsSessionNotFound(err) {
			return err
		}

		started, err = e.start(ctx, req)

		return err
	})
	if err != nil {
		return nil, err
	}

	return started, nil
}

func (e *Engine) start(ctx context.Context, req StartRequest) (*models.FlowSession, error) {
	flow, err := e.flows.Get(ctx, req.FlowID)
	if err != nil {
		return nil, err
	}

	if !flow.IsPublished {
		return nil, fmt.Errorf("flow %s: %w", flow.ID, ErrFlowNotPublished)
	}

	startNode, err := flow.Published().StartNode()
	if err != nil {
		return nil, fmt.Errorf("flow %s: %w", flow.ID, err)
	}

	now := e.clock.Now()

	organizationID := req.OrganizationID
	if organizationID == "" {
		organizationID = flow.OrganizationID
	}

	session := &models.FlowSession{
		ID:             uuid.NewString(),
		FlowID:         flow.ID,
		TriggerID:      req.TriggerID,
		OrganizationID: organizationID,
		ChatID:         req.ChatID,
		CustomerID:     req.CustomerID,
		CurrentNodeID:  startNode.ID,
		Status:         models.SessionStatusActive,
		Variables:      flow.InitialVariables(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if req.Message != "" {
		session.Append(models.HistoryEntry{
			ID:        uuid.NewString(),
			Role:      models.RoleCustomer,
			Type:      string(models.MessageText),
			Content:   req.Message,
			Timestamp: now,
		})
	}

	err = e.save(ctx, session)
	if err != nil {
		return nil, err
	}

	e.publish(ctx, events.NewSessionStarted(session, startNode.ID, now))
	e.logger.InfoContext(ctx, "session started",
		"session_id", session.ID, "flow_id", flow.ID, "chat_id", session.ChatID, "trigger_id", req.TriggerID)

	err = e.run(ctx, session, flow, resume{})
	if err != nil {
		return nil, err
	}

	return session, nil
}
