// Package customer provides the node that mutates the customer bound to a session.
package customer

import (
	"context"
	"fmt"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
)

type UpdateCustomerNode struct{}

func NewUpdateCustomerNode() *UpdateCustomerNode { return &UpdateCustomerNode{} }

func (n *UpdateCustomerNode) Type() models.NodeType { return models.NodeTypeUpdateCustomer }

func (n *UpdateCustomerNode) Name() string { return "Update Customer" }

func (n *UpdateCustomerNode) Description() string {
	return "Moves the customer to a funnel stage, assigns a team or user, or updates a contact field."
}

func (n *UpdateCustomerNode) Schema() *models.JSONSchema {
	return &models.JSONSchema{
		Type:  "object",
		Title: "Update Customer",
		Properties: map[string]*models.Property{
			"label": {Type: "string"},
			"field": {
				Type: "string",
				Enum: []any{"funnel", "team", "user", "email", "phone", "facebook", "instagram"},
			},
			"funnelId": {Type: "string"},
			"stageId":  {Type: "string"},
			"teamId":   {Type: "string"},
			"userId":   {Type: "string"},
			"value":    {Type: "string", Description: "New contact value. Supports {{variable}} interpolation."},
		},
		Required: []string{"field"},
	}
}

func (n *UpdateCustomerNode) Execute(ctx context.Context, execCtx *protocol.ExecutionContext, node *models.Node) (protocol.Result, error) {
	data, ok := node.Data.(*models.UpdateCustomerData)
	if !ok {
		return protocol.Result{}, protocol.NewConfigError(node.ID, "data", fmt.Errorf("%w: expected update_customer data", protocol.ErrInvalidField))
	}

	update, err := buildUpdate(node.ID, data, execCtx)
	if err != nil {
		return protocol.Result{}, err
	}

	if execCtx.Services.Customers == nil {
		return protocol.Result{}, protocol.NewConfigError(node.ID, "customers", protocol.ErrServiceUnavailable)
	}

	err = execCtx.BeforeSideEffect(ctx)
	if err != nil {
		return protocol.Result{}, err
	}

	err = execCtx.Services.Customers.UpdateCustomer(ctx, execCtx.Session.CustomerID, update)
	if err != nil {
		return protocol.Result{}, &protocol.ExternalError{NodeID: node.ID, Service: "customers", Err: err}
	}

	apply(execCtx.Customer, update)

	return protocol.Follow(models.HandleDefault), nil
}

func buildUpdate(nodeID string, data *models.UpdateCustomerData, execCtx *protocol.ExecutionContext) (protocol.CustomerUpdate, error) {
	update := protocol.CustomerUpdate{Field: data.Field}

	switch data.Field {
	case models.CustomerFieldFunnel:
		if data.FunnelID == "" || data.StageID == "" {
			return update, protocol.NewConfigError(nodeID, "stageId", protocol.ErrMissingField)
		}

		update.FunnelID = data.FunnelID
		update.StageID = data.StageID
	case models.CustomerFieldTeam:
		if data.TeamID == "" {
			return update, protocol.NewConfigError(nodeID, "teamId", protocol.ErrMissingField)
		}

		update.TeamID = data.TeamID
	case models.CustomerFieldUser:
		if data.UserID == "" {
			return update, protocol.NewConfigError(nodeID, "userId", protocol.ErrMissingField)
		}

		update.UserID = data.UserID
	case models.CustomerFieldEmail, models.CustomerFieldPhone, models.CustomerFieldFacebook, models.CustomerFieldInstagram:
		update.Value = execCtx.Interpolate(data.Value)
		if update.Value == "" {
			return update, protocol.NewConfigError(nodeID, "value", protocol.ErrMissingField)
		}
	default:
		return update, protocol.NewConfigError(nodeID, "field", fmt.Errorf("%w: %q", protocol.ErrInvalidField, data.Field))
	}

	return update, nil
}

// apply mirrors the update on the in-memory record so later interpolations
// in the same run see the new values.
func apply(c *models.Customer, update protocol.CustomerUpdate) {
	if c == nil {
		return
	}

	switch update.Field {
	case models.CustomerFieldFunnel:
		c.FunnelID = update.FunnelID
		c.StageID = update.StageID
	case models.CustomerFieldTeam:
		c.TeamID = update.TeamID
	case models.CustomerFieldUser:
		c.UserID = update.UserID
	case models.CustomerFieldEmail:
		c.Email = update.Value
	case models.CustomerFieldPhone:
		c.Phone = update.Value
	case models.CustomerFieldFacebook:
		c.Facebook = update.Value
	case models.CustomerFieldInstagram:
		c.Instagram = update.Value
	}
}
