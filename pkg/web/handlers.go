// Package web provides HTTP handlers and REST API endpoints for flow management.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/chatflow/pkg/eventbus"
	"github.com/dukex/chatflow/pkg/events"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

// Services groups the service layer the handlers call.
type Services struct {
	Flows      *services.Flow
	Publishing *services.Publishing
	Nodes      *services.Node
	Triggers   *services.Trigger
	Sessions   *services.Session
}

type APIHandlers struct {
	services  Services
	publisher eventbus.EventPublisher
	validator *validator.Validate
}

// NewAPIHandlers creates the handlers. publisher may be nil, in which case
// inbound messages are refused with 503.
func NewAPIHandlers(services Services, publisher eventbus.EventPublisher, validator *validator.Validate) *APIHandlers {
	return &APIHandlers{
		services:  services,
		publisher: publisher,
		validator: validator,
	}
}

func (h *APIHandlers) GetFlows(c fiber.Ctx) error {
	flows, err := h.services.Flows.List(c.Context(), c.Query("organization_id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(flows)
}

func (h *APIHandlers) GetFlow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Flow ID is required")
	}

	flow, err := h.services.Flows.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(flow)
}

func (h *APIHandlers) CreateFlow(c fiber.Ctx) error {
	var req FlowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.services.Flows.Create(c.Context(), draftRequest(req))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

// UpdateFlow replaces the draft of a flow. The published graph only changes
// on publish.
func (h *APIHandlers) UpdateFlow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Flow ID is required")
	}

	var req FlowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.services.Flows.UpdateDraft(c.Context(), id, draftRequest(req))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func draftRequest(req FlowRequest) services.DraftRequest {
	return services.DraftRequest{
		Name:            req.Name,
		OrganizationID:  req.OrganizationID,
		Nodes:           req.Nodes,
		Edges:           req.Edges,
		Variables:       req.Variables,
		Viewport:        req.Viewport,
		CreatedByPrompt: req.CreatedByPrompt,
	}
}

func (h *APIHandlers) DeleteFlow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Flow ID is required")
	}

	err := h.services.Flows.Delete(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) PublishFlow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Flow ID is required")
	}

	published, err := h.services.Publishing.Publish(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(published)
}

func (h *APIHandlers) GetNodeTypes(c fiber.Ctx) error {
	return c.JSON(h.services.Nodes.NodeTypes())
}

func (h *APIHandlers) CreateFlowNode(c fiber.Ctx) error {
	flowID := c.Params("id")

	var req CreateNodeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	node, err := h.services.Nodes.CreateNode(c.Context(), flowID, services.CreateNodeRequest{
		ID:       req.ID,
		Type:     req.Type,
		Position: req.Position,
		Data:     req.Data,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(node)
}

func (h *APIHandlers) GetFlowNode(c fiber.Ctx) error {
	node, err := h.services.Nodes.GetNode(c.Context(), c.Params("id"), c.Params("nodeId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(node)
}

func (h *APIHandlers) UpdateFlowNode(c fiber.Ctx) error {
	var req UpdateNodeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	node, err := h.services.Nodes.UpdateNode(c.Context(), c.Params("id"), c.Params("nodeId"), services.UpdateNodeRequest{
		Position: req.Position,
		Data:     req.Data,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(node)
}

func (h *APIHandlers) DeleteFlowNode(c fiber.Ctx) error {
	err := h.services.Nodes.DeleteNode(c.Context(), c.Params("id"), c.Params("nodeId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetFlowTriggers(c fiber.Ctx) error {
	triggers, err := h.services.Triggers.ListByFlow(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(triggers)
}

func (h *APIHandlers) CreateFlowTrigger(c fiber.Ctx) error {
	var req CreateTriggerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	active := req.IsActive == nil || *req.IsActive

	created, err := h.services.Triggers.Create(c.Context(), &models.Trigger{
		FlowID:         c.Params("id"),
		OrganizationID: req.OrganizationID,
		Type:           req.Type,
		Conditions:     req.Conditions,
		Priority:       req.Priority,
		IsActive:       active,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetTrigger(c fiber.Ctx) error {
	trigger, err := h.services.Triggers.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(trigger)
}

func (h *APIHandlers) DeleteTrigger(c fiber.Ctx) error {
	err := h.services.Triggers.Delete(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetSession(c fiber.Ctx) error {
	session, err := h.services.Sessions.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(session)
}

func (h *APIHandlers) GetChatSession(c fiber.Ctx) error {
	session, err := h.services.Sessions.ActiveByChat(c.Context(), c.Params("chatId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(session)
}

func (h *APIHandlers) CancelSession(c fiber.Ctx) error {
	session, err := h.services.Sessions.Cancel(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(session)
}

// ReceiveInbound puts a customer message on the bus for the workers.
func (h *APIHandlers) ReceiveInbound(c fiber.Ctx) error {
	if h.publisher == nil {
		return unavailable(c, "event bus not configured")
	}

	var msg models.InboundEvent
	if err := c.Bind().JSON(&msg); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(msg); err != nil {
		return badRequest(c, err.Error())
	}

	now := time.Now().UTC()

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}

	err := h.publisher.Publish(c.Context(), events.NewInboundReceived(msg, now))
	if err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(InboundResponse{ID: msg.ID, Status: "accepted"})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	nodeTypes := len(h.services.Nodes.NodeTypes())
	registryCheck, regOk := strconv.Itoa(nodeTypes)+" node types registered", nodeTypes > 0
	repositoryCheck, repOk := h.services.Flows.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Chatflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		message = "Chatflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
