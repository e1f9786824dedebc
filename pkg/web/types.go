// Package web provides HTTP request and response types for the flow API.
package web

import (
	"encoding/json"

	"github.com/dukex/chatflow/pkg/models"
)

// FlowRequest represents the request body for creating a flow or replacing
// its draft.
type FlowRequest struct {
	Name            string               `json:"name"                        validate:"required,min=1"`
	OrganizationID  string               `json:"organization_id"`
	Nodes           []*models.Node       `json:"nodes"                       validate:"dive"`
	Edges           []*models.Connection `json:"edges"`
	Variables       []models.Variable    `json:"variables"`
	Viewport        models.Viewport      `json:"viewport"`
	CreatedByPrompt string               `json:"created_by_prompt,omitempty"`
}

// CreateNodeRequest represents the request body for adding a node to a draft.
type CreateNodeRequest struct {
	ID       string          `json:"id"`
	Type     models.NodeType `json:"type"     validate:"required"`
	Position models.Position `json:"position"`
	Data     json.RawMessage `json:"data"`
}

// UpdateNodeRequest represents the request body for updating a draft node.
// The type of a node cannot be changed.
type UpdateNodeRequest struct {
	Position models.Position `json:"position"`
	Data     json.RawMessage `json:"data"     validate:"required"`
}

// CreateTriggerRequest represents the request body for creating a trigger.
// A trigger is active unless is_active is sent as false.
type CreateTriggerRequest struct {
	OrganizationID string                   `json:"organization_id"`
	Type           models.TriggerType       `json:"type"            validate:"required,oneof=first_contact inactivity"`
	Conditions     models.TriggerConditions `json:"conditions"`
	Priority       int                      `json:"priority"`
	IsActive       *bool                    `json:"is_active"`
}

// InboundResponse acknowledges an inbound message accepted for processing.
type InboundResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}
