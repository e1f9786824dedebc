// Package events defines the messages exchanged on the bus: inbound customer
// messages, outbound deliveries and session lifecycle notifications.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topics.
const (
	InboundTopic  = "chatflow.inbound"  // Customer messages waiting for the worker
	OutboundTopic = "chatflow.outbound" // Messages for the host to deliver
	SessionTopic  = "chatflow.sessions" // Session lifecycle notifications
)

const EventTypeMetadataKey = "event_type"

const (
	InboundReceivedEvent EventType = "inbound.received"
	MessageSentEvent     EventType = "message.sent"

	SessionStartedEvent   EventType = "session.started"
	SessionEndedEvent     EventType = "session.ended"
	SessionCancelledEvent EventType = "session.cancelled"
	NodeExecutedEvent     EventType = "node.executed"
	NodeFailedEvent       EventType = "node.failed"
)

var ErrUnknownEventType = errors.New("unknown event type")

// Event is anything published on the bus.
type Event interface {
	GetType() EventType
}

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	FlowID    string         `json:"flow_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	ChatID    string         `json:"chat_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, timestamp time.Time) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: timestamp.UTC(),
		Metadata:  make(map[string]any),
	}
}

func newSessionEvent(eventType EventType, session *models.FlowSession, at time.Time) BaseEvent {
	base := NewBaseEvent(eventType, at)
	base.FlowID = session.FlowID
	base.SessionID = session.ID
	base.ChatID = session.ChatID

	return base
}

// InboundReceived carries a customer message from the host to the worker.
type InboundReceived struct {
	BaseEvent

	Message models.InboundEvent `json:"message"`
}

func (e InboundReceived) GetType() EventType {
	return InboundReceivedEvent
}

func NewInboundReceived(message models.InboundEvent, at time.Time) InboundReceived {
	base := NewBaseEvent(InboundReceivedEvent, at)
	base.ChatID = message.ChatID

	return InboundReceived{BaseEvent: base, Message: message}
}

// MessageSent asks the host to deliver a message to the customer.
type MessageSent struct {
	BaseEvent

	Message models.OutboundMessage `json:"message"`
}

func (e MessageSent) GetType() EventType {
	return MessageSentEvent
}

func NewMessageSent(message models.OutboundMessage, at time.Time) MessageSent {
	base := NewBaseEvent(MessageSentEvent, at)
	base.SessionID = message.SessionID
	base.ChatID = message.ChatID

	return MessageSent{BaseEvent: base, Message: message}
}

type SessionStarted struct {
	BaseEvent

	TriggerID   string `json:"trigger_id,omitempty"`
	StartNodeID string `json:"start_node_id"`
}

func (e SessionStarted) GetType() EventType {
	return SessionStartedEvent
}

func NewSessionStarted(session *models.FlowSession, startNodeID string, at time.Time) SessionStarted {
	return SessionStarted{
		BaseEvent:   newSessionEvent(SessionStartedEvent, session, at),
		TriggerID:   session.TriggerID,
		StartNodeID: startNodeID,
	}
}

type SessionEnded struct {
	BaseEvent

	Status     models.SessionStatus `json:"status"`
	LastNodeID string               `json:"last_node_id"`
	Error      string               `json:"error,omitempty"`
	DurationMs int64                `json:"duration_ms"`
}

func (e SessionEnded) GetType() EventType {
	return SessionEndedEvent
}

func NewSessionEnded(session *models.FlowSession, at time.Time) SessionEnded {
	return SessionEnded{
		BaseEvent:  newSessionEvent(SessionEndedEvent, session, at),
		Status:     session.Status,
		LastNodeID: session.CurrentNodeID,
		Error:      session.Error,
		DurationMs: at.Sub(session.CreatedAt).Milliseconds(),
	}
}

type SessionCancelled struct {
	BaseEvent

	NodeID string `json:"node_id"`
}

func (e SessionCancelled) GetType() EventType {
	return SessionCancelledEvent
}

func NewSessionCancelled(session *models.FlowSession, at time.Time) SessionCancelled {
	return SessionCancelled{
		BaseEvent: newSessionEvent(SessionCancelledEvent, session, at),
		NodeID:    session.CurrentNodeID,
	}
}

type NodeExecuted struct {
	BaseEvent

	NodeID     string          `json:"node_id"`
	NodeType   models.NodeType `json:"node_type"`
	Handle     string          `json:"handle,omitempty"`
	NextNodeID string          `json:"next_node_id,omitempty"`
	Suspended  bool            `json:"suspended,omitempty"`
	DurationMs int64           `json:"duration_ms"`
}

func (e NodeExecuted) GetType() EventType {
	return NodeExecutedEvent
}

func NewNodeExecuted(session *models.FlowSession, node *models.Node, at time.Time) NodeExecuted {
	return NodeExecuted{
		BaseEvent: newSessionEvent(NodeExecutedEvent, session, at),
		NodeID:    node.ID,
		NodeType:  node.Type,
	}
}

type NodeFailed struct {
	BaseEvent

	NodeID     string          `json:"node_id"`
	NodeType   models.NodeType `json:"node_type"`
	Error      string          `json:"error"`
	Recovered  bool            `json:"recovered"`
	DurationMs int64           `json:"duration_ms"`
}

func (e NodeFailed) GetType() EventType {
	return NodeFailedEvent
}

func NewNodeFailed(session *models.FlowSession, node *models.Node, err error, at time.Time) NodeFailed {
	return NodeFailed{
		BaseEvent: newSessionEvent(NodeFailedEvent, session, at),
		NodeID:    node.ID,
		NodeType:  node.Type,
		Error:     err.Error(),
	}
}

// TopicFor returns the topic an event type is published on.
func TopicFor(eventType EventType) string {
	switch eventType {
	case InboundReceivedEvent:
		return InboundTopic
	case MessageSentEvent:
		return OutboundTopic
	default:
		return SessionTopic
	}
}

// Decode unmarshals payload into the concrete event of eventType.
func Decode(eventType EventType, payload []byte) (Event, error) {
	var event Event

	switch eventType {
	case InboundReceivedEvent:
		event = &InboundReceived{}
	case MessageSentEvent:
		event = &MessageSent{}
	case SessionStartedEvent:
		event = &SessionStarted{}
	case SessionEndedEvent:
		event = &SessionEnded{}
	case SessionCancelledEvent:
		event = &SessionCancelled{}
	case NodeExecutedEvent:
		event = &NodeExecuted{}
	case NodeFailedEvent:
		event = &NodeFailed{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}

	err := json.Unmarshal(payload, event)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", eventType, err)
	}

	return event, nil
}
