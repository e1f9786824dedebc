// Package condition provides the branching node that routes on ordered variable comparisons.
package condition

import (
	"github.com/dukex/chatflow/pkg/models"
)

// ConditionNode evaluates its conditions in order; the first true one wins and
// else is taken when none match.
type ConditionNode struct{}

func NewConditionNode() *ConditionNode { return &ConditionNode{} }

func (n *ConditionNode) Type() models.NodeType { return models.NodeTypeCondition }

func (n *ConditionNode) Name() string { return "Condition" }

func (n *ConditionNode) Description() string {
	return "Compares variables with values and routes to the first matching branch, or to else."
}

func (n *ConditionNode) Schema() *models.JSONSchema {
	return &models.JSONSchema{
		Type:  "object",
		Title: "Condition",
		Properties: map[string]*models.Property{
			"label": {Type: "string"},
			"conditions": {
				Type: "array",
				Items: &models.Property{
					Type:     "object",
					Required: []string{"variable", "operator"},
					Properties: map[string]*models.Property{
						"variable": {Type: "string", Description: "Variable name, customer.* or chat.* field."},
						"operator": {Type: "string", Enum: []any{"==", "!=", ">", "<", ">=", "<="}},
						"value":    {Type: "string", Description: "Supports {{variable}} interpolation."},
					},
				},
			},
		},
		Required: []string{"conditions"},
	}
}
