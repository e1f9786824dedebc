// Package variable provides the node that assigns a session variable.
package variable

import (
	"context"
	"fmt"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
)

type VariableNode struct{}

func NewVariableNode() *VariableNode { return &VariableNode{} }

func (n *VariableNode) Type() models.NodeType { return models.NodeTypeVariable }

func (n *VariableNode) Name() string { return "Set Variable" }

func (n *VariableNode) Description() string {
	return "Assigns a literal or interpolated value to a flow variable."
}

func (n *VariableNode) Schema() *models.JSONSchema {
	return &models.JSONSchema{
		Type:  "object",
		Title: "Set Variable",
		Properties: map[string]*models.Property{
			"label": {Type: "string"},
			"name":  {Type: "string", MinLength: models.Ptr(1)},
			"value": {Type: "string", Description: "Supports {{variable}} interpolation."},
		},
		Required: []string{"name"},
	}
}

func (n *VariableNode) Execute(_ context.Context, execCtx *protocol.ExecutionContext, node *models.Node) (protocol.Result, error) {
	data, ok := node.Data.(*models.VariableData)
	if !ok {
		return protocol.Result{}, protocol.NewConfigError(node.ID, "data", fmt.Errorf("%w: expected variable data", protocol.ErrInvalidField))
	}

	if data.Name == "" {
		return protocol.Result{}, protocol.NewConfigError(node.ID, "name", protocol.ErrMissingField)
	}

	execCtx.SetVariable(data.Name, execCtx.Interpolate(data.Value))

	return protocol.Follow(models.HandleDefault), nil
}
