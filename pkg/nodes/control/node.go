// Package control provides the structural nodes: start, jump_to and group.
package control

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
)

// ErrNotExecutable is returned when the engine reaches a group node.
var ErrNotExecutable = errors.New("node is not executable")

type StartNode struct{}

func NewStartNode() *StartNode { return &StartNode{} }

func (n *StartNode) Type() models.NodeType { return models.NodeTypeStart }

func (n *StartNode) Name() string { return "Start" }

func (n *StartNode) Description() string { return "Entry point of the flow." }

func (n *StartNode) Schema() *models.JSONSchema {
	return &models.JSONSchema{
		Type:  "object",
		Title: "Start",
		Properties: map[string]*models.Property{
			"label":   {Type: "string"},
			"isStart": {Type: "boolean", Default: true},
		},
	}
}

func (n *StartNode) Execute(_ context.Context, _ *protocol.ExecutionContext, _ *models.Node) (protocol.Result, error) {
	return protocol.Follow(models.HandleDefault), nil
}

// JumpToNode transfers control without an edge.
type JumpToNode struct{}

func NewJumpToNode() *JumpToNode { return &JumpToNode{} }

func (n *JumpToNode) Type() models.NodeType { return models.NodeTypeJumpTo }

func (n *JumpToNode) Name() string { return "Jump To" }

func (n *JumpToNode) Description() string {
	return "Continues the conversation at another node of the flow."
}

func (n *JumpToNode) Schema() *models.JSONSchema {
	return &models.JSONSchema{
		Type:  "object",
		Title: "Jump To",
		Properties: map[string]*models.Property{
			"label":        {Type: "string"},
			"targetNodeId": {Type: "string"},
		},
		Required: []string{"targetNodeId"},
	}
}

func (n *JumpToNode) Execute(_ context.Context, execCtx *protocol.ExecutionContext, node *models.Node) (protocol.Result, error) {
	data, ok := node.Data.(*models.JumpToData)
	if !ok || data.TargetNodeID == "" {
		return protocol.Result{}, protocol.NewConfigError(node.ID, "targetNodeId", protocol.ErrMissingField)
	}

	if _, found := execCtx.Graph().NodeByID(data.TargetNodeID); !found {
		return protocol.Result{}, protocol.NewConfigError(node.ID, "targetNodeId", models.ErrNodeNotFound)
	}

	return protocol.Jump(data.TargetNodeID), nil
}

// GroupNode is a visual container. It has no handles and edges touching it
// are ignored, so the engine never reaches it through normal traversal.
type GroupNode struct{}

func NewGroupNode() *GroupNode { return &GroupNode{} }

func (n *GroupNode) Type() models.NodeType { return models.NodeTypeGroup }

func (n *GroupNode) Name() string { return "Group" }

func (n *GroupNode) Description() string { return "Visually groups nodes. Not executed." }

func (n *GroupNode) Schema() *models.JSONSchema {
	return &models.JSONSchema{
		Type:  "object",
		Title: "Group",
		Properties: map[string]*models.Property{
			"label":  {Type: "string"},
			"color":  {Type: "string"},
			"width":  {Type: "number"},
			"height": {Type: "number"},
		},
	}
}

func (n *GroupNode) Execute(_ context.Context, _ *protocol.ExecutionContext, node *models.Node) (protocol.Result, error) {
	return protocol.Result{}, fmt.Errorf("group %s: %w", node.ID, ErrNotExecutable)
}
