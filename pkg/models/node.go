// Package models defines the flow graph, trigger and session models used by the conversation runtime.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// NodeType is the discriminant of a node's data payload.
type NodeType string

const (
	NodeTypeStart          NodeType = "start"
	NodeTypeText           NodeType = "text"
	NodeTypeAudio          NodeType = "audio"
	NodeTypeImage          NodeType = "image"
	NodeTypeVideo          NodeType = "video"
	NodeTypeDocument       NodeType = "document"
	NodeTypeDelay          NodeType = "delay"
	NodeTypeVariable       NodeType = "variable"
	NodeTypeCondition      NodeType = "condition"
	NodeTypeInput          NodeType = "input"
	NodeTypeUpdateCustomer NodeType = "update_customer"
	NodeTypeOpenAI         NodeType = "openai"
	NodeTypeAgentIA        NodeType = "agenteia"
	NodeTypeJumpTo         NodeType = "jump_to"
	NodeTypeRequest        NodeType = "request"
	NodeTypeGroup          NodeType = "group"
	NodeTypeSystemMessage  NodeType = "system_message"
)

// NodeTypes lists every node kind the runtime understands.
var NodeTypes = []NodeType{
	NodeTypeStart,
	NodeTypeText,
	NodeTypeAudio,
	NodeTypeImage,
	NodeTypeVideo,
	NodeTypeDocument,
	NodeTypeDelay,
	NodeTypeVariable,
	NodeTypeCondition,
	NodeTypeInput,
	NodeTypeUpdateCustomer,
	NodeTypeOpenAI,
	NodeTypeAgentIA,
	NodeTypeJumpTo,
	NodeTypeRequest,
	NodeTypeGroup,
	NodeTypeSystemMessage,
}

// ErrUnknownNodeType is returned when a node's type is not part of the closed set.
var ErrUnknownNodeType = errors.New("unknown node type")

// IsMedia reports whether the type is one of the media kinds.
func (t NodeType) IsMedia() bool {
	switch t {
	case NodeTypeAudio, NodeTypeImage, NodeTypeVideo, NodeTypeDocument:
		return true
	default:
		return false
	}
}

// Valid reports whether the type belongs to the closed node set.
func (t NodeType) Valid() bool {
	for _, known := range NodeTypes {
		if t == known {
			return true
		}
	}

	return false
}

// Position is the editor placement of a node. The runtime ignores it.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a typed unit of work in a flow. Data holds one of the *Data structs
// defined in node_data.go, selected by Type.
type Node struct {
	ID       string   `json:"id"       validate:"required"`
	Type     NodeType `json:"type"     validate:"required"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

// NodeData is implemented by every per-type payload.
type NodeData interface {
	Base() *BaseData
}

// BaseData carries the fields shared by every node payload.
type BaseData struct {
	Label   string `json:"label,omitempty"`
	IsStart bool   `json:"isStart,omitempty"`
}

func (b *BaseData) Base() *BaseData { return b }

// IsStart reports whether the node is the flow entry point.
func (n *Node) IsStart() bool {
	if n.Type == NodeTypeStart {
		return true
	}

	if n.Data == nil {
		return false
	}

	return n.Data.Base().IsStart
}

// Label returns the human-readable label of the node, falling back to its id.
func (n *Node) Label() string {
	if n.Data != nil && n.Data.Base().Label != "" {
		return n.Data.Base().Label
	}

	return n.ID
}

type nodeEnvelope struct {
	ID       string          `json:"id"`
	Type     NodeType        `json:"type"`
	Position Position        `json:"position"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// UnmarshalJSON decodes the data payload using the node type as discriminant.
func (n *Node) UnmarshalJSON(raw []byte) error {
	var env nodeEnvelope

	err := json.Unmarshal(raw, &env)
	if err != nil {
		return err
	}

	data, err := NewNodeData(env.Type)
	if err != nil {
		return fmt.Errorf("node %s: %w", env.ID, err)
	}

	if len(env.Data) > 0 && string(env.Data) != "null" {
		err = json.Unmarshal(env.Data, data)
		if err != nil {
			return fmt.Errorf("node %s: invalid %s data: %w", env.ID, env.Type, err)
		}
	}

	n.ID = env.ID
	n.Type = env.Type
	n.Position = env.Position
	n.Data = data

	return nil
}

// MarshalJSON writes the node in the persisted {id, type, position, data} shape.
func (n Node) MarshalJSON() ([]byte, error) {
	data := n.Data
	if data == nil {
		empty, err := NewNodeData(n.Type)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID, err)
		}

		data = empty
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return json.Marshal(nodeEnvelope{
		ID:       n.ID,
		Type:     n.Type,
		Position: n.Position,
		Data:     payload,
	})
}

// NewNodeData returns an empty payload for the given node type.
func NewNodeData(nodeType NodeType) (NodeData, error) {
	switch nodeType {
	case NodeTypeStart:
		return &StartData{}, nil
	case NodeTypeText:
		return &TextData{}, nil
	case NodeTypeAudio, NodeTypeImage, NodeTypeVideo, NodeTypeDocument:
		return &MediaData{}, nil
	case NodeTypeDelay:
		return &DelayData{}, nil
	case NodeTypeVariable:
		return &VariableData{}, nil
	case NodeTypeCondition:
		return &ConditionData{}, nil
	case NodeTypeInput:
		return &InputData{}, nil
	case NodeTypeUpdateCustomer:
		return &UpdateCustomerData{}, nil
	case NodeTypeOpenAI:
		return &OpenAIData{}, nil
	case NodeTypeAgentIA:
		return &AgentIAData{}, nil
	case NodeTypeJumpTo:
		return &JumpToData{}, nil
	case NodeTypeRequest:
		return &RequestData{}, nil
	case NodeTypeGroup:
		return &GroupData{}, nil
	case NodeTypeSystemMessage:
		return &SystemMessageData{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, nodeType)
	}
}

// Clone returns a deep copy of the node. Node data always round-trips
// through JSON, so a failure is a programming error and panics.
func (n *Node) Clone() *Node {
	raw, err := json.Marshal(n)
	if err != nil {
		panic(fmt.Sprintf("clone node %s: %v", n.ID, err))
	}

	var clone Node

	err = json.Unmarshal(raw, &clone)
	if err != nil {
		panic(fmt.Sprintf("clone node %s: %v", n.ID, err))
	}

	return &clone
}

// NodeResult is the outcome of executing one node, recorded for observability.
type NodeResult struct {
	NodeID    string `json:"node_id"`
	NodeType  string `json:"node_type"`
	Handle    string `json:"handle,omitempty"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// NodeStatus defines the possible states of a node execution.
type NodeStatus string

const (
	NodeStatusSuccess   NodeStatus = "success"
	NodeStatusSuspended NodeStatus = "suspended"
	NodeStatusError     NodeStatus = "error"
)
