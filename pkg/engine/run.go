package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/chatflow/pkg/events"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/otelhelper"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// resume tells the node a session is parked on why it runs again.
type resume struct {
	input    *string
	timedOut bool
}

// run advances session from its current node until it suspends or ends. The
// caller holds the chat lock. Errors are only returned when the session
// state could not be persisted; node failures end the session instead.
func (e *Engine) run(ctx context.Context, session *models.FlowSession, flow *models.Flow, r resume) error {
	logger := e.logger.With("session_id", session.ID, "flow_id", session.FlowID, "chat_id", session.ChatID)
	graph := flow.Published()

	execCtx := &protocol.ExecutionContext{
		Session:  session,
		Flow:     flow,
		Customer: e.customer(ctx, logger, session),
		Chat:     e.chat(ctx, logger, session),
		Services: e.services,
		Clock:    e.clock,
		Logger:   logger,
		Input:    r.input,
		TimedOut: r.timedOut,
	}
	execCtx.Checkpoint = func(ctx context.Context) error {
		return e.checkpoint(ctx, session)
	}

	for step := 0; ; step++ {
		if step >= e.maxSteps {
			return e.fail(ctx, session, fmt.Errorf("%w: %d nodes without waiting", ErrStepLimit, step))
		}

		node, found := graph.NodeByID(session.CurrentNodeID)
		if !found {
			return e.fail(ctx, session, fmt.Errorf("node %s: %w", session.CurrentNodeID, models.ErrNodeNotFound))
		}

		err := execCtx.Checkpoint(ctx)
		if err != nil {
			if errors.Is(err, protocol.ErrCancelled) {
				return e.cancelled(ctx, session)
			}

			return err
		}

		started := e.clock.Now()
		result, execErr := e.execute(ctx, execCtx, node)
		elapsed := e.clock.Since(started)

		// Resume data belongs to the node the session was parked on.
		execCtx.Input = nil
		execCtx.TimedOut = false

		if execErr != nil {
			if errors.Is(execErr, protocol.ErrCancelled) {
				return e.cancelled(ctx, session)
			}

			if ctx.Err() != nil {
				return ctx.Err()
			}

			next, recovered := e.handleFailure(ctx, logger, execCtx, node, execErr, elapsed)
			if !recovered {
				return e.fail(ctx, session, execErr)
			}

			session.ClearWait()
			session.CurrentNodeID = next

			continue
		}

		executed := events.NewNodeExecuted(session, node, e.clock.Now())
		executed.DurationMs = elapsed.Milliseconds()

		if result.Suspend != nil {
			executed.Suspended = true
			e.suspend(session, result.Suspend)

			err := e.save(ctx, session)
			if err != nil {
				return err
			}

			e.publish(ctx, executed)
			logger.DebugContext(ctx, "session suspended", "node_id", node.ID, "waiting", session.Waiting)

			return nil
		}

		session.ClearWait()

		next, status := e.advance(graph, node, result)
		executed.Handle = result.Handle
		executed.NextNodeID = next
		e.publish(ctx, executed)

		if next == "" {
			logger.InfoContext(ctx, "session reached the end of the flow", "node_id", node.ID, "handle", result.Handle)

			return e.finish(ctx, session, status)
		}

		session.CurrentNodeID = next
	}
}

// advance resolves the node result to the next node id. An empty id ends the
// session with the returned status: an unwired timeout handle times the
// session out, any other dead end makes it inactive.
func (e *Engine) advance(graph *models.Graph, node *models.Node, result protocol.Result) (string, models.SessionStatus) {
	if result.JumpTo != "" {
		if _, found := graph.NodeByID(result.JumpTo); found {
			return result.JumpTo, models.SessionStatusActive
		}

		return "", models.SessionStatusInactive
	}

	next, wired := graph.Next(node.ID, result.Handle)
	if wired {
		return next, models.SessionStatusActive
	}

	if result.Handle == models.HandleTimeout {
		return "", models.SessionStatusTimeout
	}

	return "", models.SessionStatusInactive
}

// handleFailure records a node failure and looks for a wired error handle.
func (e *Engine) handleFailure(ctx context.Context, logger *slog.Logger, execCtx *protocol.ExecutionContext, node *models.Node, err error, elapsed time.Duration) (string, bool) {
	execCtx.Record(models.RoleError, string(node.Type), err.Error(), node.ID)

	next, wired := "", false
	if node.HasHandle(models.HandleError) {
		next, wired = execCtx.Graph().Next(node.ID, models.HandleError)
	}

	failed := events.NewNodeFailed(execCtx.Session, node, err, e.clock.Now())
	failed.Recovered = wired
	failed.DurationMs = elapsed.Milliseconds()
	e.publish(ctx, failed)

	logger.WarnContext(ctx, "node execution failed",
		"node_id", node.ID, "node_type", node.Type, "recovered", wired, "error", err)

	return next, wired
}

func (e *Engine) execute(ctx context.Context, execCtx *protocol.ExecutionContext, node *models.Node) (protocol.Result, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "chatflow.node.execute",
		attribute.String(otelhelper.SessionIDKey, execCtx.Session.ID),
		attribute.String(otelhelper.FlowIDKey, execCtx.Session.FlowID),
		attribute.String(otelhelper.ChatIDKey, execCtx.Session.ChatID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
	)
	defer span.End()

	executor, err := e.registry.Executor(node.Type)
	if err != nil {
		otelhelper.SetError(span, err)

		return protocol.Result{}, protocol.NewConfigError(node.ID, "type", err)
	}

	result, err := executor.Execute(ctx, execCtx, node)
	if err != nil {
		otelhelper.SetError(span, err)

		return protocol.Result{}, err
	}

	span.SetAttributes(attribute.String(otelhelper.NodeHandleKey, result.Handle))

	return result, nil
}

func (e *Engine) suspend(session *models.FlowSession, s *protocol.Suspension) {
	session.ClearWait()
	session.Waiting = s.Kind
	session.UpdatedAt = e.clock.Now()

	if s.Until.IsZero() {
		return
	}

	until := s.Until

	switch s.Kind {
	case models.WaitDelay:
		session.ResumeAt = &until
	case models.WaitInput:
		session.TimeoutAt = &until
	}
}

// checkpoint persists the session and reports a pending cancel request.
func (e *Engine) checkpoint(ctx context.Context, session *models.FlowSession) error {
	err := e.save(ctx, session)
	if err != nil {
		return err
	}

	requested, err := e.sessions.IsCancelRequested(ctx, session.ID)
	if err != nil {
		return err
	}

	if requested {
		return protocol.ErrCancelled
	}

	return nil
}

func (e *Engine) save(ctx context.Context, session *models.FlowSession) error {
	session.UpdatedAt = e.clock.Now()

	err := e.sessions.Save(ctx, session)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", session.ID, err)
	}

	return nil
}

// fail ends the session as inactive with the error kept in history.
func (e *Engine) fail(ctx context.Context, session *models.FlowSession, cause error) error {
	session.Error = cause.Error()

	if !hasErrorEntry(session, cause.Error()) {
		session.Append(models.HistoryEntry{
			ID:        uuid.NewString(),
			Role:      models.RoleError,
			Content:   cause.Error(),
			NodeID:    session.CurrentNodeID,
			Timestamp: e.clock.Now(),
		})
	}

	e.logger.ErrorContext(ctx, "session failed",
		"session_id", session.ID, "node_id", session.CurrentNodeID, "error", cause)

	return e.finish(ctx, session, models.SessionStatusInactive)
}

func (e *Engine) cancelled(ctx context.Context, session *models.FlowSession) error {
	session.Append(models.HistoryEntry{
		ID:        uuid.NewString(),
		Role:      models.RoleSystem,
		Type:      "cancelled",
		Content:   "session cancelled",
		NodeID:    session.CurrentNodeID,
		Timestamp: e.clock.Now(),
	})

	e.publish(ctx, events.NewSessionCancelled(session, e.clock.Now()))

	return e.finish(ctx, session, models.SessionStatusInactive)
}

func (e *Engine) finish(ctx context.Context, session *models.FlowSession, status models.SessionStatus) error {
	now := e.clock.Now()

	err := session.End(status, now)
	if err != nil {
		return nil //nolint:nilerr // already terminal
	}

	err = e.save(ctx, session)
	if err != nil {
		return err
	}

	e.publish(ctx, events.NewSessionEnded(session, now))
	e.logger.InfoContext(ctx, "session ended",
		"session_id", session.ID, "flow_id", session.FlowID, "status", status)

	return nil
}

func hasErrorEntry(session *models.FlowSession, message string) bool {
	if len(session.MessageHistory) == 0 {
		return false
	}

	last := session.MessageHistory[len(session.MessageHistory)-1]

	return last.Role == models.RoleError && last.Content == message
}

func (e *Engine) customer(ctx context.Context, logger *slog.Logger, session *models.FlowSession) *models.Customer {
	fallback := &models.Customer{ID: session.CustomerID, CustomFields: map[string]string{}}

	if e.services.Customers == nil || session.CustomerID == "" {
		return fallback
	}

	customer, err := e.services.Customers.GetCustomer(ctx, session.CustomerID)
	if err != nil {
		logger.WarnContext(ctx, "customer unavailable, customer.* resolves empty", "customer_id", session.CustomerID, "error", err)

		return fallback
	}

	return customer
}

func (e *Engine) chat(ctx context.Context, logger *slog.Logger, session *models.FlowSession) *models.Chat {
	fallback := &models.Chat{ID: session.ChatID, OrganizationID: session.OrganizationID}

	if e.services.Customers == nil {
		return fallback
	}

	chat, err := e.services.Customers.GetChat(ctx, session.ChatID)
	if err != nil {
		logger.WarnContext(ctx, "chat unavailable, chat.* resolves empty", "error", err)

		return fallback
	}

	return chat
}
