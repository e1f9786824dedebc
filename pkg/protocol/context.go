package protocol

import (
	"context"
	"log/slog"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/variables"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// ExecutionContext is the state a node executor works on. It is owned by a
// single worker for the duration of one engine step.
type ExecutionContext struct {
	Session  *models.FlowSession
	Flow     *models.Flow
	Customer *models.Customer
	Chat     *models.Chat
	Services Services
	Clock    clockwork.Clock
	Logger   *slog.Logger

	// Input holds the debounced customer reply when an input node resumes.
	Input *string
	// TimedOut is set when an input node resumes because its timeout elapsed.
	TimedOut bool

	// Checkpoint persists the session and fails with ErrCancelled when a
	// cancel was requested. The engine installs it.
	Checkpoint func(ctx context.Context) error
}

// Binding returns the variable resolver over the session, customer and chat.
func (e *ExecutionContext) Binding() *variables.Binding {
	return &variables.Binding{
		Variables: e.Session.Variables,
		Customer:  e.Customer,
		Chat:      e.Chat,
		Logger:    e.Logger,
	}
}

// Interpolate resolves {{name}} tokens in text.
func (e *ExecutionContext) Interpolate(text string) string {
	return e.Binding().Interpolate(text)
}

// SetVariable assigns a session variable. Empty names are ignored.
func (e *ExecutionContext) SetVariable(name, value string) {
	if name == "" {
		return
	}

	if e.Session.Variables == nil {
		e.Session.Variables = make(map[string]string)
	}

	e.Session.Variables[name] = value
}

// BeforeSideEffect must be called before any call leaving the engine. It
// persists the session so a crash during the call resumes on the same node,
// and stops the node if the session was cancelled.
func (e *ExecutionContext) BeforeSideEffect(ctx context.Context) error {
	err := ctx.Err()
	if err != nil {
		return err
	}

	if e.Checkpoint == nil {
		return nil
	}

	return e.Checkpoint(ctx)
}

// Send delivers msg to the customer and records it in the history.
func (e *ExecutionContext) Send(ctx context.Context, node *models.Node, msg models.OutboundMessage) error {
	if e.Services.Outbound == nil {
		return NewConfigError(node.ID, "outbound", ErrServiceUnavailable)
	}

	err := e.BeforeSideEffect(ctx)
	if err != nil {
		return err
	}

	msg.SessionID = e.Session.ID
	msg.ChatID = e.Session.ChatID
	msg.NodeID = node.ID

	err = e.Services.Outbound.Send(ctx, msg)
	if err != nil {
		return &ExternalError{NodeID: node.ID, Service: "outbound", Err: err}
	}

	content := msg.Text
	if content == "" {
		content = msg.MediaURL
	}

	if content == "" && msg.List != nil {
		content = msg.List.Title
	}

	e.Record(models.RoleBot, string(msg.Type), content, node.ID)

	return nil
}

// Record appends an entry to the session history.
func (e *ExecutionContext) Record(role models.HistoryRole, kind, content, nodeID string) {
	e.Session.Append(models.HistoryEntry{
		ID:        uuid.NewString(),
		Role:      role,
		Type:      kind,
		Content:   content,
		NodeID:    nodeID,
		Timestamp: e.Clock.Now(),
	})
}

// Graph returns the published graph being executed.
func (e *ExecutionContext) Graph() *models.Graph {
	return e.Flow.Published()
}
