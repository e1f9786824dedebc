package web

import "github.com/gofiber/fiber/v3"

// Register mounts every API route on router.
func (h *APIHandlers) Register(router fiber.Router) {
	f := router.Group("/flows")
	f.Get("/", h.GetFlows)
	f.Post("/", h.CreateFlow)
	f.Get("/:id", h.GetFlow)
	f.Put("/:id", h.UpdateFlow)
	f.Delete("/:id", h.DeleteFlow)
	f.Post("/:id/publish", h.PublishFlow)

	f.Post("/:id/nodes", h.CreateFlowNode)
	f.Get("/:id/nodes/:nodeId", h.GetFlowNode)
	f.Patch("/:id/nodes/:nodeId", h.UpdateFlowNode)
	f.Delete("/:id/nodes/:nodeId", h.DeleteFlowNode)

	f.Get("/:id/triggers", h.GetFlowTriggers)
	f.Post("/:id/triggers", h.CreateFlowTrigger)

	router.Get("/triggers/:id", h.GetTrigger)
	router.Delete("/triggers/:id", h.DeleteTrigger)

	router.Get("/sessions/:id", h.GetSession)
	router.Post("/sessions/:id/cancel", h.CancelSession)
	router.Get("/chats/:chatId/session", h.GetChatSession)

	router.Get("/node-types", h.GetNodeTypes)
	router.Post("/events/inbound", h.ReceiveInbound)

	router.Get("/health", h.HealthCheck)
}
